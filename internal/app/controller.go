package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomStore abstracts the realtime store holding rooms (in-memory, Redis, etc).
//
// Update persists only the control fields of the room; students and responses are
// written exclusively through AddStudent and AddResponse. When fn or guard return an
// error nothing is written and the error is passed through.
type RoomStore interface {
	Create(ctx context.Context, room domain.Room) error
	Get(ctx context.Context, code string) (domain.Room, error)
	Update(ctx context.Context, code string, fn func(*domain.Room) error) (domain.Room, error)
	AddStudent(ctx context.Context, code string, student domain.Student) (domain.Student, error)
	AddResponse(ctx context.Context, code string, response domain.Response, guard func(domain.Room) error) error
	Subscribe(ctx context.Context, code string) (<-chan domain.Room, func(), error)
	List(ctx context.Context) ([]domain.Room, error)
	Delete(ctx context.Context, code string) error
}

// QuestionSetRepository loads stored question sets (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error)
}

// ResultArchive keeps the final standings of ended rooms.
type ResultArchive interface {
	Archive(ctx context.Context, room domain.Room, board domain.Leaderboard) error
}

// Metrics receives controller events. A nil Metrics is replaced by a no-op.
type Metrics interface {
	Transition(command string, applied bool)
	Submission(result string)
	RoomCreated()
	RoomsSwept(n int)
}

// RoomController owns room lifecycle transitions and the answer protocol.
type RoomController struct {
	rooms   RoomStore
	sets    QuestionSetRepository
	scorer  *Scorer
	log     *zap.Logger
	metrics Metrics
	archive ResultArchive
	now     func() time.Time
	newCode CodeGenerator
	newID   func() string
}

// Option customizes a RoomController.
type Option func(*RoomController)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *RoomController) { c.now = now }
}

func WithMetrics(m Metrics) Option {
	return func(c *RoomController) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithArchive(a ResultArchive) Option {
	return func(c *RoomController) { c.archive = a }
}

func WithCodeGenerator(g CodeGenerator) Option {
	return func(c *RoomController) { c.newCode = g }
}

// WithIDGenerator replaces uuid generation for students and questions.
func WithIDGenerator(g func() string) Option {
	return func(c *RoomController) { c.newID = g }
}

func NewRoomController(rooms RoomStore, sets QuestionSetRepository, scorer *Scorer, log *zap.Logger, opts ...Option) *RoomController {
	if log == nil {
		log = zap.NewNop()
	}
	c := &RoomController{
		rooms:   rooms,
		sets:    sets,
		scorer:  scorer,
		log:     log,
		metrics: noopMetrics{},
		now:     time.Now,
		newCode: RandomCode,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRoomInput carries the host's room definition. QuestionSetID is used when
// Questions is empty.
type CreateRoomInput struct {
	Name          string
	Mode          domain.Mode
	Questions     []domain.Question
	QuestionSetID string
}

// CreateRoom freezes the questions into a new waiting room and returns its code.
func (c *RoomController) CreateRoom(ctx context.Context, host domain.Host, in CreateRoomInput) (string, error) {
	if !host.IsAdmin || host.UserID == "" {
		return "", domain.ErrForbidden
	}
	if in.Mode == "" {
		in.Mode = domain.ModeFullManual
	}
	if err := domain.ValidateMode(in.Mode); err != nil {
		return "", err
	}

	questions := in.Questions
	if len(questions) == 0 && in.QuestionSetID != "" {
		if c.sets == nil {
			return "", domain.ErrQuestionSetNotFound
		}
		set, err := c.sets.GetQuestionSet(ctx, in.QuestionSetID)
		if err != nil {
			return "", err
		}
		questions = set.Questions
		if in.Name == "" {
			in.Name = set.Title
		}
	}
	if err := domain.ValidateQuestions(questions); err != nil {
		return "", err
	}
	frozen := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]string(nil), q.Options...)
		if q.ID == "" {
			q.ID = c.newID()
		}
		frozen[i] = q
	}

	room := domain.Room{
		Name:      in.Name,
		HostID:    host.UserID,
		Status:    domain.StatusWaiting,
		Mode:      in.Mode,
		Questions: frozen,
		Students:  map[string]domain.Student{},
		Responses: map[string]domain.Response{},
		CreatedAt: c.now(),
	}
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := c.newCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		room.Code = code
		err = c.rooms.Create(ctx, room)
		if errors.Is(err, domain.ErrRoomExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create room: %w", err)
		}
		c.metrics.RoomCreated()
		c.log.Info("room created",
			zap.String("room", code),
			zap.String("host", host.UserID),
			zap.Int("questions", len(frozen)),
			zap.String("mode", string(in.Mode)))
		return code, nil
	}
	return "", domain.ErrCodeSpaceExhausted
}

// JoinRoom registers a new student in a room that has not ended.
func (c *RoomController) JoinRoom(ctx context.Context, name, code string) (domain.Student, error) {
	name, err := domain.NormalizeName(name, domain.MaxNameLength)
	if err != nil {
		return domain.Student{}, err
	}
	code = domain.NormalizeCode(code)
	if !ValidCode(code) {
		return domain.Student{}, domain.ErrRoomNotFound
	}
	room, err := c.rooms.Get(ctx, code)
	if err != nil {
		return domain.Student{}, err
	}
	if room.Status == domain.StatusEnded {
		return domain.Student{}, domain.ErrRoomEnded
	}

	student, err := c.rooms.AddStudent(ctx, code, domain.Student{
		ID:       c.newID(),
		Name:     name,
		RoomCode: code,
		JoinedAt: c.now(),
	})
	if err != nil {
		return domain.Student{}, err
	}
	c.log.Info("student joined", zap.String("room", code), zap.String("student", student.ID), zap.Int64("seq", student.Seq))
	return student, nil
}

// OpenQuestion opens the first question of a waiting room. A positive duration
// overrides the question's own time limit.
func (c *RoomController) OpenQuestion(ctx context.Context, host domain.Host, code string, duration int) (bool, error) {
	return c.apply(ctx, &host, code, CmdOpen, openFirst(duration))
}

// CloseQuestion stops accepting answers for the current question. Closing an already
// closed question is a no-op.
func (c *RoomController) CloseQuestion(ctx context.Context, host domain.Host, code string) (bool, error) {
	return c.apply(ctx, &host, code, CmdClose, closeCurrent(CmdClose, ""))
}

// RevealAnswers makes correctness and the answer distribution visible.
func (c *RoomController) RevealAnswers(ctx context.Context, host domain.Host, code string) (bool, error) {
	return c.apply(ctx, &host, code, CmdReveal, reveal)
}

// AdminAdvance opens the next question, or ends the room after the last one.
func (c *RoomController) AdminAdvance(ctx context.Context, host domain.Host, code string) (bool, error) {
	return c.apply(ctx, &host, code, CmdAdvance, advance)
}

// CancelQuiz aborts the room for everyone. It cannot be undone.
func (c *RoomController) CancelQuiz(ctx context.Context, host domain.Host, code, message string) (bool, error) {
	return c.apply(ctx, &host, code, CmdCancel, cancel(message))
}

// EndQuiz finishes the room early without a cancel message.
func (c *RoomController) EndQuiz(ctx context.Context, host domain.Host, code string) (bool, error) {
	return c.apply(ctx, &host, code, CmdEnd, end)
}

// apply runs one guarded transition as a single atomic update. Transitions the current
// phase does not permit report applied=false without an error. A nil host skips the
// ownership check and is used for transitions the server triggers itself.
func (c *RoomController) apply(ctx context.Context, host *domain.Host, code, cmd string, t transition) (bool, error) {
	code = domain.NormalizeCode(code)
	now := c.now()
	room, err := c.rooms.Update(ctx, code, func(r *domain.Room) error {
		if host != nil && (!host.IsAdmin || host.UserID != r.HostID) {
			return domain.ErrForbidden
		}
		return t(r, now)
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		c.metrics.Transition(cmd, false)
		c.log.Debug("transition ignored", zap.String("room", code), zap.String("command", cmd), zap.Error(err))
		return false, nil
	}
	if err != nil {
		if !errors.Is(err, domain.ErrForbidden) && !errors.Is(err, domain.ErrRoomNotFound) {
			c.log.Error("transition failed", zap.String("room", code), zap.String("command", cmd), zap.Error(err))
		}
		return false, err
	}

	c.metrics.Transition(cmd, true)
	c.log.Info("transition applied",
		zap.String("room", code),
		zap.String("command", cmd),
		zap.String("phase", string(room.Phase())),
		zap.Int("question", room.CurrentQuestionIndex))
	if room.Status == domain.StatusEnded {
		c.archiveResults(ctx, room)
	}
	return true, nil
}

func (c *RoomController) archiveResults(ctx context.Context, room domain.Room) {
	if c.archive == nil {
		return
	}
	if err := c.archive.Archive(ctx, room, BuildLeaderboard(room, c.scorer)); err != nil {
		c.log.Error("archive results failed", zap.String("room", room.Code), zap.Error(err))
	}
}

// AnswerLatencyAllowance is how far a reported time taken may fall below the time the
// server observed between opening the question and receiving the answer.
const AnswerLatencyAllowance = 2 * time.Second

// SubmitAnswerInput is one student's answer. SelectedOption -1 records a timeout.
type SubmitAnswerInput struct {
	Code             string
	StudentID        string
	QuestionID       string
	SelectedOption   int
	TimeTakenSeconds float64
}

// SubmitAnswer records at most one response per (student, question) while the
// question is open. Each rejection is a distinct domain error.
func (c *RoomController) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (domain.Response, error) {
	code := domain.NormalizeCode(in.Code)
	room, err := c.rooms.Get(ctx, code)
	if err != nil {
		return domain.Response{}, c.rejected(err)
	}
	if room.Status == domain.StatusEnded {
		return domain.Response{}, c.rejected(domain.ErrRoomEnded)
	}
	if _, ok := room.Students[in.StudentID]; !ok {
		return domain.Response{}, c.rejected(domain.ErrStudentNotFound)
	}
	if err := acceptsAnswer(room, in.QuestionID); err != nil {
		return domain.Response{}, c.rejected(err)
	}
	if _, dup := room.Responses[domain.ResponseKey(in.StudentID, in.QuestionID)]; dup {
		return domain.Response{}, c.rejected(domain.ErrDuplicateSubmission)
	}
	q, _ := room.CurrentQuestion()
	if in.SelectedOption != domain.NoAnswer && (in.SelectedOption < 0 || in.SelectedOption >= len(q.Options)) {
		return domain.Response{}, c.rejected(domain.ErrInvalidOption)
	}

	now := c.now()
	taken := in.TimeTakenSeconds
	if math.IsNaN(taken) || taken < 0 {
		taken = 0
	}
	// reported time may undercut the server-observed time by at most the allowance
	if !room.QuestionStartTime.IsZero() {
		if floor := (now.Sub(room.QuestionStartTime) - AnswerLatencyAllowance).Seconds(); taken < floor {
			taken = floor
		}
	}
	if limit := float64(room.QuestionTimer); limit > 0 && taken > limit {
		taken = limit
	}
	resp := domain.Response{
		StudentID:        in.StudentID,
		QuestionID:       in.QuestionID,
		SelectedOption:   in.SelectedOption,
		TimeTakenSeconds: taken,
		TimeLimitSeconds: room.QuestionTimer,
		SubmittedAt:      now,
	}
	err = c.rooms.AddResponse(ctx, code, resp, func(r domain.Room) error {
		if r.Status == domain.StatusEnded {
			return domain.ErrRoomEnded
		}
		return acceptsAnswer(r, in.QuestionID)
	})
	if err != nil {
		return domain.Response{}, c.rejected(err)
	}
	c.metrics.Submission("accepted")

	c.autoClose(ctx, code, in.QuestionID)
	return resp, nil
}

// acceptsAnswer checks that questionID is the open question of the room.
func acceptsAnswer(r domain.Room, questionID string) error {
	q, ok := r.CurrentQuestion()
	if r.Phase() == domain.PhaseWaiting || !ok {
		return domain.ErrNotAcceptingAnswers
	}
	if q.ID != questionID {
		return domain.ErrStaleQuestion
	}
	if !r.AcceptingAnswers {
		return domain.ErrNotAcceptingAnswers
	}
	return nil
}

func (c *RoomController) rejected(err error) error {
	result := "error"
	switch {
	case errors.Is(err, domain.ErrDuplicateSubmission):
		result = "duplicate"
	case errors.Is(err, domain.ErrStaleQuestion):
		result = "stale"
	case errors.Is(err, domain.ErrNotAcceptingAnswers):
		result = "closed"
	case errors.Is(err, domain.ErrStudentNotFound):
		result = "unknown_student"
	case errors.Is(err, domain.ErrInvalidOption):
		result = "invalid_option"
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRoomEnded):
		result = "invalid_room"
	}
	c.metrics.Submission(result)
	if result == "error" {
		c.log.Error("submit answer failed", zap.Error(err))
		return fmt.Errorf("submit answer: %w", err)
	}
	c.log.Debug("answer rejected", zap.String("reason", result))
	return err
}

// autoClose closes the question once every registered student has answered it.
// A failure here only delays the close until the host issues it.
func (c *RoomController) autoClose(ctx context.Context, code, questionID string) {
	room, err := c.rooms.Get(ctx, code)
	if err != nil {
		c.log.Warn("auto close: read room", zap.String("room", code), zap.Error(err))
		return
	}
	if len(room.Students) == 0 || room.AnsweredCount(questionID) < len(room.Students) {
		return
	}
	if _, err := c.apply(ctx, nil, code, CmdAutoClose, closeCurrent(CmdAutoClose, questionID)); err != nil {
		c.log.Warn("auto close failed", zap.String("room", code), zap.Error(err))
	}
}

// Room returns the latest snapshot of a room.
func (c *RoomController) Room(ctx context.Context, code string) (domain.Room, error) {
	return c.rooms.Get(ctx, domain.NormalizeCode(code))
}

// Scores ranks the room's students. It is derived, never stored.
func (c *RoomController) Scores(ctx context.Context, code string) (domain.Leaderboard, error) {
	room, err := c.Room(ctx, code)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return BuildLeaderboard(room, c.scorer), nil
}

// Stats returns the answer distribution for a question. The current question's
// distribution stays hidden until answers are revealed.
func (c *RoomController) Stats(ctx context.Context, code, questionID string) (domain.OptionStats, error) {
	room, err := c.Room(ctx, code)
	if err != nil {
		return domain.OptionStats{}, err
	}
	for i, q := range room.Questions {
		if q.ID != questionID {
			continue
		}
		if i > room.CurrentQuestionIndex || (i == room.CurrentQuestionIndex && !room.AnswersRevealed && room.Status != domain.StatusEnded) {
			return domain.OptionStats{}, domain.ErrStatsHidden
		}
		return OptionDistribution(room, q), nil
	}
	return domain.OptionStats{}, domain.ErrQuestionNotFound
}

// Subscribe returns a channel of room snapshots, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (c *RoomController) Subscribe(ctx context.Context, code string) (<-chan domain.Room, func(), error) {
	return c.rooms.Subscribe(ctx, domain.NormalizeCode(code))
}

// ActiveRooms counts rooms that have not ended.
func (c *RoomController) ActiveRooms(ctx context.Context) (int, error) {
	rooms, err := c.rooms.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rooms {
		if r.Status != domain.StatusEnded {
			n++
		}
	}
	return n, nil
}

// Scorer exposes the scorer used for leaderboards.
func (c *RoomController) Scorer() *Scorer {
	return c.scorer
}

type noopMetrics struct{}

func (noopMetrics) Transition(string, bool) {}
func (noopMetrics) Submission(string)       {}
func (noopMetrics) RoomCreated()            {}
func (noopMetrics) RoomsSwept(int)          {}
