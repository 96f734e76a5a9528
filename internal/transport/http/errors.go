package http

import (
	"errors"
	"net/http"

	"arena-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

// classify maps a domain error to an HTTP status and a stable client code.
func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRoomEnded):
		return http.StatusNotFound, errorBody{Error: "invalid room", Code: "invalid_room"}
	case errors.Is(err, domain.ErrStudentNotFound):
		return http.StatusNotFound, errorBody{Error: "student not found", Code: "unknown_student"}
	case errors.Is(err, domain.ErrQuestionSetNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"}
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return http.StatusConflict, errorBody{Error: "already answered", Code: "duplicate"}
	case errors.Is(err, domain.ErrStaleQuestion):
		return http.StatusConflict, errorBody{Error: "question is no longer current", Code: "stale_question"}
	case errors.Is(err, domain.ErrNotAcceptingAnswers):
		return http.StatusConflict, errorBody{Error: "answers are closed", Code: "not_accepting"}
	case errors.Is(err, domain.ErrStatsHidden):
		return http.StatusConflict, errorBody{Error: "answers not revealed yet", Code: "stats_hidden"}
	case errors.Is(err, domain.ErrInvalidOption):
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid option", Code: "invalid_option"}
	case errors.Is(err, domain.ErrInvalidQuestions), errors.Is(err, domain.ErrInvalidName):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_input"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"}
	default:
		return http.StatusServiceUnavailable, errorBody{Error: "temporarily unavailable, retry", Code: "unavailable", Retryable: true}
	}
}

func writeError(c *gin.Context, err error) {
	status, body := classify(err)
	if status == http.StatusServiceUnavailable {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: msg, Code: "invalid_input"})
}
