package http

import (
	"net/http"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/auth"
	"arena-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
)

// RoomHandler exposes the room controller over REST.
type RoomHandler struct {
	ctrl *app.RoomController
}

func NewRoomHandler(ctrl *app.RoomController) *RoomHandler {
	return &RoomHandler{ctrl: ctrl}
}

type createRoomRequest struct {
	Name          string            `json:"name"`
	Mode          domain.Mode       `json:"mode"`
	QuestionSetID string            `json:"questionSetId"`
	Questions     []domain.Question `json:"questions"`
}

type joinRequest struct {
	Name string `json:"name" binding:"required"`
}

type openRequest struct {
	Duration int `json:"duration"`
}

type cancelRequest struct {
	Message string `json:"message"`
}

type answerRequest struct {
	StudentID      string  `json:"studentId" binding:"required"`
	QuestionID     string  `json:"questionId" binding:"required"`
	SelectedOption *int    `json:"selectedOption" binding:"required"`
	TimeTaken      float64 `json:"timeTaken"`
}

type commandResponse struct {
	Applied bool         `json:"applied"`
	Room    app.RoomView `json:"room"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	host, _ := auth.HostFromContext(c)
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid room payload")
		return
	}
	if len(req.Questions) == 0 && req.QuestionSetID == "" {
		badRequest(c, "questions or questionSetId required")
		return
	}
	if req.Name != "" {
		name, err := domain.NormalizeName(req.Name, domain.MaxRoomNameLength)
		if err != nil {
			writeError(c, err)
			return
		}
		req.Name = name
	}
	code, err := h.ctrl.CreateRoom(c.Request.Context(), host, app.CreateRoomInput{
		Name:          req.Name,
		Mode:          req.Mode,
		Questions:     req.Questions,
		QuestionSetID: req.QuestionSetID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	view, err := h.ctrl.View(c.Request.Context(), code, app.Viewer{Role: app.RoleHost})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": code, "room": view})
}

func (h *RoomHandler) ActiveRooms(c *gin.Context) {
	n, err := h.ctrl.ActiveRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": n})
}

// GetRoom returns the student projection; ?studentId adds the caller's own answer.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	view, err := h.ctrl.View(c.Request.Context(), c.Param("code"), app.Viewer{
		Role:      app.RoleStudent,
		StudentID: c.Query("studentId"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *RoomHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name required")
		return
	}
	student, err := h.ctrl.JoinRoom(c.Request.Context(), req.Name, c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

func (h *RoomHandler) Open(c *gin.Context) {
	var req openRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid duration")
			return
		}
	}
	h.command(c, func(host domain.Host, code string) (bool, error) {
		return h.ctrl.OpenQuestion(c.Request.Context(), host, code, req.Duration)
	})
}

func (h *RoomHandler) Close(c *gin.Context) {
	h.command(c, func(host domain.Host, code string) (bool, error) {
		return h.ctrl.CloseQuestion(c.Request.Context(), host, code)
	})
}

func (h *RoomHandler) Reveal(c *gin.Context) {
	h.command(c, func(host domain.Host, code string) (bool, error) {
		return h.ctrl.RevealAnswers(c.Request.Context(), host, code)
	})
}

func (h *RoomHandler) Advance(c *gin.Context) {
	h.command(c, func(host domain.Host, code string) (bool, error) {
		return h.ctrl.AdminAdvance(c.Request.Context(), host, code)
	})
}

func (h *RoomHandler) End(c *gin.Context) {
	h.command(c, func(host domain.Host, code string) (bool, error) {
		return h.ctrl.EndQuiz(c.Request.Context(), host, code)
	})
}

func (h *RoomHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid cancel payload")
			return
		}
	}
	h.command(c, func(host domain.Host, code string) (bool, error) {
		return h.ctrl.CancelQuiz(c.Request.Context(), host, code, req.Message)
	})
}

// command runs a host command and answers with the resulting host view.
func (h *RoomHandler) command(c *gin.Context, run func(domain.Host, string) (bool, error)) {
	host, _ := auth.HostFromContext(c)
	code := c.Param("code")
	applied, err := run(host, code)
	if err != nil {
		writeError(c, err)
		return
	}
	view, err := h.ctrl.View(c.Request.Context(), code, app.Viewer{Role: app.RoleHost})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, commandResponse{Applied: applied, Room: view})
}

func (h *RoomHandler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "studentId, questionId and selectedOption required")
		return
	}
	resp, err := h.ctrl.SubmitAnswer(c.Request.Context(), app.SubmitAnswerInput{
		Code:             c.Param("code"),
		StudentID:        req.StudentID,
		QuestionID:       req.QuestionID,
		SelectedOption:   *req.SelectedOption,
		TimeTakenSeconds: req.TimeTaken,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *RoomHandler) Scores(c *gin.Context) {
	lb, err := h.ctrl.Scores(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (h *RoomHandler) Stats(c *gin.Context) {
	stats, err := h.ctrl.Stats(c.Request.Context(), c.Param("code"), c.Param("questionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
