package domain

import (
	"time"
)

// Status is the persisted lifecycle status of a room.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Mode controls what students see on their own screens.
type Mode string

const (
	// ModeFullManual shows question text to students.
	ModeFullManual Mode = "full-manual"
	// ModeOptionOnly shows only the answer buttons; the question is on a shared screen.
	ModeOptionOnly Mode = "option-only"
)

// Phase is derived from the room's control fields and is never stored.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseOpen     Phase = "open"
	PhaseClosed   Phase = "closed"
	PhaseRevealed Phase = "revealed"
	PhaseEnded    Phase = "ended"
)

// OptionCount is the number of answer options every question carries.
const OptionCount = 4

// NoAnswer is the selected option recorded when a student's countdown ran out.
const NoAnswer = -1

// Question is one quiz item. It is immutable once the room is created.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	TimeLimit     int      `json:"timeLimit"` // seconds
}

// QuestionSet is a reusable, stored list of questions.
type QuestionSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Student is a participant registered to a room.
type Student struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	RoomCode string    `json:"roomCode"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
	Seq      int64     `json:"seq"` // join order within the room
}

// Response is one student's answer (or timeout) to one question.
type Response struct {
	StudentID        string    `json:"studentId"`
	QuestionID       string    `json:"questionId"`
	SelectedOption   int       `json:"selectedOption"`
	TimeTakenSeconds float64   `json:"timeTakenSeconds"`
	TimeLimitSeconds int       `json:"timeLimitSeconds"`
	SubmittedAt      time.Time `json:"submittedAt"`
}

// Key returns the merge key that makes responses unique per (student, question).
func (r Response) Key() string {
	return ResponseKey(r.StudentID, r.QuestionID)
}

// ResponseKey builds the merge key for a (student, question) pair.
func ResponseKey(studentID, questionID string) string {
	return studentID + ":" + questionID
}

// Room is the full synchronized record of one quiz session.
type Room struct {
	Code                 string              `json:"code"`
	Name                 string              `json:"name,omitempty"`
	HostID               string              `json:"hostId"`
	Status               Status              `json:"status"`
	Mode                 Mode                `json:"mode"`
	Questions            []Question          `json:"questions"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex"`
	AcceptingAnswers     bool                `json:"acceptingAnswers"`
	AnswersRevealed      bool                `json:"answersRevealed"`
	QuestionStartTime    time.Time           `json:"questionStartTime"`
	QuestionTimer        int                 `json:"questionTimer"`
	Students             map[string]Student  `json:"students"`
	Responses            map[string]Response `json:"responses"`
	CanceledMessage      string              `json:"canceledMessage,omitempty"`
	CreatedAt            time.Time           `json:"createdAt"`
	EndedAt              time.Time           `json:"endedAt,omitempty"`
}

// Phase derives the lifecycle state from the control fields.
func (r Room) Phase() Phase {
	switch {
	case r.Status == StatusEnded:
		return PhaseEnded
	case r.Status == StatusWaiting:
		return PhaseWaiting
	case r.AcceptingAnswers:
		return PhaseOpen
	case r.AnswersRevealed:
		return PhaseRevealed
	default:
		return PhaseClosed
	}
}

// CurrentQuestion returns the question under the cursor, if any.
func (r Room) CurrentQuestion() (Question, bool) {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
		return Question{}, false
	}
	return r.Questions[r.CurrentQuestionIndex], true
}

// Canceled reports whether the host aborted the room.
func (r Room) Canceled() bool {
	return r.CanceledMessage != ""
}

// AnsweredCount counts registered students holding a response for questionID.
func (r Room) AnsweredCount(questionID string) int {
	n := 0
	for id := range r.Students {
		if _, ok := r.Responses[ResponseKey(id, questionID)]; ok {
			n++
		}
	}
	return n
}

// Host is the authenticated identity issuing control commands.
type Host struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin"`
}

// ScoreEntry is one ranked line of a leaderboard.
type ScoreEntry struct {
	Rank         int    `json:"rank"`
	StudentID    string `json:"studentId"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	Correct      int    `json:"correct"`
	PreviousRank int    `json:"previousRank,omitempty"`
}

// Leaderboard is the ranked view over a room's responses.
type Leaderboard struct {
	RoomCode      string       `json:"roomCode"`
	QuestionIndex int          `json:"questionIndex"`
	Entries       []ScoreEntry `json:"entries"`
}

// OptionStats is the answer distribution for a single question.
type OptionStats struct {
	QuestionID    string `json:"questionId"`
	CorrectOption int    `json:"correctOption"`
	Counts        []int  `json:"counts"`
	NoAnswer      int    `json:"noAnswer"`
	Total         int    `json:"total"`
}

// Control holds the room fields that lifecycle commands change. Stores persist it
// separately from the append-only students and responses.
type Control struct {
	Status               Status    `json:"status"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	AcceptingAnswers     bool      `json:"acceptingAnswers"`
	AnswersRevealed      bool      `json:"answersRevealed"`
	QuestionStartTime    time.Time `json:"questionStartTime"`
	QuestionTimer        int       `json:"questionTimer"`
	CanceledMessage      string    `json:"canceledMessage,omitempty"`
	EndedAt              time.Time `json:"endedAt,omitempty"`
}

// Control returns the room's control fields.
func (r Room) Control() Control {
	return Control{
		Status:               r.Status,
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		AcceptingAnswers:     r.AcceptingAnswers,
		AnswersRevealed:      r.AnswersRevealed,
		QuestionStartTime:    r.QuestionStartTime,
		QuestionTimer:        r.QuestionTimer,
		CanceledMessage:      r.CanceledMessage,
		EndedAt:              r.EndedAt,
	}
}

// SetControl overwrites the room's control fields.
func (r *Room) SetControl(c Control) {
	r.Status = c.Status
	r.CurrentQuestionIndex = c.CurrentQuestionIndex
	r.AcceptingAnswers = c.AcceptingAnswers
	r.AnswersRevealed = c.AnswersRevealed
	r.QuestionStartTime = c.QuestionStartTime
	r.QuestionTimer = c.QuestionTimer
	r.CanceledMessage = c.CanceledMessage
	r.EndedAt = c.EndedAt
}

// Clone returns a copy that shares no mutable state with r.
func (r Room) Clone() Room {
	out := r
	out.Questions = append([]Question(nil), r.Questions...)
	out.Students = make(map[string]Student, len(r.Students))
	for k, v := range r.Students {
		out.Students[k] = v
	}
	out.Responses = make(map[string]Response, len(r.Responses))
	for k, v := range r.Responses {
		out.Responses[k] = v
	}
	return out
}
