package app

import (
	"context"
	"math"
	"sort"
	"time"

	"arena-quiz-service/internal/domain"
)

// Role selects how much of a room a client may see.
type Role string

const (
	RoleHost    Role = "host"
	RoleStudent Role = "student"
)

// Viewer identifies who a RoomView is rendered for.
type Viewer struct {
	Role      Role
	StudentID string
}

// QuestionView is the current question as shown to a viewer. CorrectOption stays nil
// until answers are revealed.
type QuestionView struct {
	ID            string   `json:"id"`
	Text          string   `json:"text,omitempty"`
	Options       []string `json:"options,omitempty"`
	TimeLimit     int      `json:"timeLimit"`
	CorrectOption *int     `json:"correctOption,omitempty"`
}

// RoomView is the per-viewer projection pushed to clients.
type RoomView struct {
	Code                 string              `json:"code"`
	Name                 string              `json:"name,omitempty"`
	Status               domain.Status       `json:"status"`
	Mode                 domain.Mode         `json:"mode"`
	Phase                domain.Phase        `json:"phase"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	TotalQuestions       int                 `json:"totalQuestions"`
	AcceptingAnswers     bool                `json:"acceptingAnswers"`
	AnswersRevealed      bool                `json:"answersRevealed"`
	Question             *QuestionView       `json:"question,omitempty"`
	QuestionStartTime    *time.Time          `json:"questionStartTime,omitempty"`
	QuestionTimer        int                 `json:"questionTimer,omitempty"`
	RemainingSeconds     int                 `json:"remainingSeconds"`
	StudentCount         int                 `json:"studentCount"`
	AnsweredCount        int                 `json:"answeredCount"`
	CanceledMessage      string              `json:"canceledMessage,omitempty"`
	Students             []domain.Student    `json:"students,omitempty"`
	MyAnswer             *domain.Response    `json:"myAnswer,omitempty"`
	Leaderboard          *domain.Leaderboard `json:"leaderboard,omitempty"`
	Stats                *domain.OptionStats `json:"stats,omitempty"`
}

// Project renders room for viewer at time now.
func Project(room domain.Room, viewer Viewer, scorer *Scorer, now time.Time) RoomView {
	v := RoomView{
		Code:                 room.Code,
		Name:                 room.Name,
		Status:               room.Status,
		Mode:                 room.Mode,
		Phase:                room.Phase(),
		CurrentQuestionIndex: room.CurrentQuestionIndex,
		TotalQuestions:       len(room.Questions),
		AcceptingAnswers:     room.AcceptingAnswers,
		AnswersRevealed:      room.AnswersRevealed,
		StudentCount:         len(room.Students),
		CanceledMessage:      room.CanceledMessage,
	}

	q, ok := room.CurrentQuestion()
	if ok && room.Status == domain.StatusActive {
		qv := &QuestionView{ID: q.ID, TimeLimit: q.TimeLimit, Options: q.Options}
		if viewer.Role == RoleHost || room.Mode != domain.ModeOptionOnly {
			qv.Text = q.Text
		}
		if room.AnswersRevealed {
			correct := q.CorrectOption
			qv.CorrectOption = &correct
		}
		v.Question = qv
		start := room.QuestionStartTime
		v.QuestionStartTime = &start
		v.QuestionTimer = room.QuestionTimer
		v.AnsweredCount = room.AnsweredCount(q.ID)
		if room.AcceptingAnswers {
			v.RemainingSeconds = remaining(room, now)
		}
		if room.AnswersRevealed {
			stats := OptionDistribution(room, q)
			v.Stats = &stats
		}
		if viewer.Role == RoleStudent {
			if resp, ok := room.Responses[domain.ResponseKey(viewer.StudentID, q.ID)]; ok {
				v.MyAnswer = &resp
			}
		}
	}

	if room.AnswersRevealed || room.Status == domain.StatusEnded {
		lb := BuildLeaderboard(room, scorer)
		v.Leaderboard = &lb
	}
	if viewer.Role == RoleHost {
		v.Students = make([]domain.Student, 0, len(room.Students))
		for _, s := range room.Students {
			v.Students = append(v.Students, s)
		}
		sort.Slice(v.Students, func(i, j int) bool { return v.Students[i].Seq < v.Students[j].Seq })
	}
	return v
}

// remaining is derived from the room's start time and timer, so every client agrees.
func remaining(room domain.Room, now time.Time) int {
	if room.QuestionTimer <= 0 || room.QuestionStartTime.IsZero() {
		return 0
	}
	elapsed := now.Sub(room.QuestionStartTime).Seconds()
	left := int(math.Ceil(float64(room.QuestionTimer) - elapsed))
	if left < 0 {
		return 0
	}
	if left > room.QuestionTimer {
		return room.QuestionTimer
	}
	return left
}

// View loads a room and projects it for viewer.
func (c *RoomController) View(ctx context.Context, code string, viewer Viewer) (RoomView, error) {
	room, err := c.Room(ctx, code)
	if err != nil {
		return RoomView{}, err
	}
	return c.Project(room, viewer), nil
}

// Project renders a snapshot with the controller's scorer and clock.
func (c *RoomController) Project(room domain.Room, viewer Viewer) RoomView {
	return Project(room, viewer, c.scorer, c.now())
}
