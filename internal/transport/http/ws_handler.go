package http

import (
	"encoding/json"
	"net/http"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	msgRoom         = "room"
	msgAnswerResult = "answerResult"
	msgCanceled     = "canceled"
	msgError        = "error"
	msgPong         = "pong"

	writeWait = 10 * time.Second
)

// HostValidator resolves a bearer token to a host.
type HostValidator interface {
	Validate(token string) (domain.Host, error)
}

type WSHandler struct {
	ctrl     *app.RoomController
	hosts    HostValidator
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(ctrl *app.RoomController, hosts HostValidator, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		ctrl:  ctrl,
		hosts: hosts,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID     string  `json:"questionId"`
	SelectedOption *int    `json:"selectedOption"`
	TimeTaken      float64 `json:"timeTaken"`
}

type answerResult struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	Accepted       bool   `json:"accepted"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type canceledPayload struct {
	Message string `json:"message"`
}

// Handle serves GET /ws/rooms/:code. Query studentId joins as that student; query
// token joins as the room's host. Without either the socket gets the public view.
func (h *WSHandler) Handle(c *gin.Context) {
	h.ServeWS(c.Writer, c.Request, c.Param("code"))
}

// ServeWS upgrades HTTP requests to websockets and streams projected room snapshots.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request, code string) {
	ctx := r.Context()
	viewer := app.Viewer{Role: app.RoleStudent, StudentID: r.URL.Query().Get("studentId")}

	updates, cancel, err := h.ctrl.Subscribe(ctx, code)
	if err != nil {
		status, body := classify(err)
		writeJSON(w, status, body)
		return
	}
	defer cancel()

	initial, ok := <-updates
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "invalid room", Code: "invalid_room"})
		return
	}
	if token := r.URL.Query().Get("token"); token != "" && h.hosts != nil {
		host, err := h.hosts.Validate(token)
		if err != nil || !host.IsAdmin || host.UserID != initial.HostID {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"})
			return
		}
		viewer = app.Viewer{Role: app.RoleHost}
	} else if viewer.StudentID != "" {
		if _, ok := initial.Students[viewer.StudentID]; !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "student not found", Code: "unknown_student"})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.String("room", code), zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	// Single writer; a canceled message is the last frame before the socket closes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.String("room", code), zap.Error(err))
				return
			}
			if msg.Type == msgCanceled {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room canceled"),
					time.Now().Add(writeWait))
				_ = conn.Close()
				return
			}
		}
	}()

	push := func(room domain.Room) bool {
		if !enqueue(outboundMessage[any]{Type: msgRoom, Payload: h.ctrl.Project(room, viewer)}) {
			return false
		}
		if room.Canceled() {
			enqueue(outboundMessage[any]{Type: msgCanceled, Payload: canceledPayload{Message: room.CanceledMessage}})
			return false
		}
		return true
	}

	go func() {
		defer close(updatesDone)
		if !push(initial) {
			return
		}
		for {
			select {
			case room, ok := <-updates:
				if !ok {
					return
				}
				if !push(room) {
					return
				}
			case <-closeSignals:
				return
			case <-writerDone:
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(5), 10)
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			enqueue(outboundMessage[any]{Type: msgError, Payload: errorBody{Error: "too many requests", Code: "rate_limited", Retryable: true}})
			continue
		}
		switch inbound.Type {
		case "answer":
			if viewer.Role != app.RoleStudent || viewer.StudentID == "" {
				enqueue(outboundMessage[any]{Type: msgError, Payload: errorBody{Error: "join as a student to answer", Code: "unknown_student"}})
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SelectedOption == nil {
				enqueue(outboundMessage[any]{Type: msgError, Payload: errorBody{Error: "invalid answer payload", Code: "invalid_input"}})
				continue
			}
			resp, err := h.ctrl.SubmitAnswer(ctx, app.SubmitAnswerInput{
				Code:             code,
				StudentID:        viewer.StudentID,
				QuestionID:       payload.QuestionID,
				SelectedOption:   *payload.SelectedOption,
				TimeTakenSeconds: payload.TimeTaken,
			})
			if err != nil {
				_, body := classify(err)
				enqueue(outboundMessage[any]{Type: msgError, Payload: body})
				continue
			}
			enqueue(outboundMessage[any]{Type: msgAnswerResult, Payload: answerResult{
				QuestionID:     resp.QuestionID,
				SelectedOption: resp.SelectedOption,
				Accepted:       true,
			}})
		case "ping":
			enqueue(outboundMessage[any]{Type: msgPong, Payload: struct{}{}})
		default:
			enqueue(outboundMessage[any]{Type: msgError, Payload: errorBody{Error: "unsupported message type", Code: "invalid_input"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
