package app

import (
	"fmt"
	"time"

	"arena-quiz-service/internal/domain"
)

// Command names, used for logs and metrics.
const (
	CmdOpen      = "open_question"
	CmdClose     = "close_question"
	CmdAutoClose = "auto_close"
	CmdReveal    = "reveal_answers"
	CmdAdvance   = "admin_advance"
	CmdCancel    = "cancel_quiz"
	CmdEnd       = "end_quiz"
	CmdExpire    = "expire_room"
)

// DefaultCancelMessage is shown to participants when the host cancels without a message.
const DefaultCancelMessage = "The host ended this quiz"

// transition mutates the control fields of a room in place, or returns an error wrapping
// domain.ErrInvalidTransition when the room's phase does not permit it.
type transition func(r *domain.Room, now time.Time) error

func invalid(cmd string, r *domain.Room) error {
	return fmt.Errorf("%w: %s in phase %s", domain.ErrInvalidTransition, cmd, r.Phase())
}

func openQuestion(r *domain.Room, index int, duration int, now time.Time) {
	r.Status = domain.StatusActive
	r.CurrentQuestionIndex = index
	r.AcceptingAnswers = true
	r.AnswersRevealed = false
	r.QuestionStartTime = now
	r.QuestionTimer = duration
	if r.QuestionTimer <= 0 {
		r.QuestionTimer = r.Questions[index].TimeLimit
	}
}

func endRoom(r *domain.Room, now time.Time) {
	r.Status = domain.StatusEnded
	r.AcceptingAnswers = false
	r.EndedAt = now
}

// openFirst is Waiting -> Open(0).
func openFirst(duration int) transition {
	return func(r *domain.Room, now time.Time) error {
		if r.Phase() != domain.PhaseWaiting || len(r.Questions) == 0 {
			return invalid(CmdOpen, r)
		}
		if duration > domain.MaxTimeLimit {
			duration = domain.MaxTimeLimit
		}
		openQuestion(r, 0, duration, now)
		return nil
	}
}

// closeCurrent is Open(q) -> Closed(q). A non-empty questionID additionally requires
// that q is still that question, so a late auto-close never closes the next one.
func closeCurrent(cmd, questionID string) transition {
	return func(r *domain.Room, _ time.Time) error {
		if r.Phase() != domain.PhaseOpen {
			return invalid(cmd, r)
		}
		if q, _ := r.CurrentQuestion(); questionID != "" && q.ID != questionID {
			return invalid(cmd, r)
		}
		r.AcceptingAnswers = false
		return nil
	}
}

// reveal is Closed(q) -> Revealed(q).
func reveal(r *domain.Room, _ time.Time) error {
	if r.Phase() != domain.PhaseClosed {
		return invalid(CmdReveal, r)
	}
	r.AnswersRevealed = true
	return nil
}

// advance is Revealed(q) -> Open(q+1), or -> Ended after the last question.
func advance(r *domain.Room, now time.Time) error {
	if r.Phase() != domain.PhaseRevealed {
		return invalid(CmdAdvance, r)
	}
	next := r.CurrentQuestionIndex + 1
	if next >= len(r.Questions) {
		endRoom(r, now)
		return nil
	}
	openQuestion(r, next, 0, now)
	return nil
}

// cancel moves any non-ended room to Ended and records the message shown to everyone.
func cancel(message string) transition {
	return func(r *domain.Room, now time.Time) error {
		if r.Phase() == domain.PhaseEnded {
			return invalid(CmdCancel, r)
		}
		if message == "" {
			message = DefaultCancelMessage
		}
		endRoom(r, now)
		r.CanceledMessage = message
		return nil
	}
}

// end moves any non-ended room to Ended without a cancel message.
func end(r *domain.Room, now time.Time) error {
	if r.Phase() == domain.PhaseEnded {
		return invalid(CmdEnd, r)
	}
	endRoom(r, now)
	return nil
}
