package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomEnded is returned when a room exists but has already ended or been canceled.
	ErrRoomEnded = errors.New("room has ended")
	// ErrRoomExists signals a room code collision on create.
	ErrRoomExists = errors.New("room code already in use")
	// ErrStudentNotFound is returned when a student acts before joining.
	ErrStudentNotFound = errors.New("student not found in room")
	// ErrDuplicateSubmission rejects a second answer to the same question.
	ErrDuplicateSubmission = errors.New("answer already submitted")
	// ErrStaleQuestion rejects an answer for a question the room has moved past.
	ErrStaleQuestion = errors.New("question is no longer current")
	// ErrNotAcceptingAnswers rejects an answer while the current question is closed.
	ErrNotAcceptingAnswers = errors.New("room is not accepting answers")
	// ErrInvalidOption rejects a selected option outside the question's options.
	ErrInvalidOption = errors.New("invalid option")
	// ErrInvalidTransition marks a command that the current phase does not permit.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrForbidden is returned when the caller does not own the room.
	ErrForbidden = errors.New("caller may not control this room")
	// ErrInvalidQuestions wraps validation failures of room or question set input.
	ErrInvalidQuestions = errors.New("invalid questions")
	// ErrInvalidName rejects empty or oversized display names.
	ErrInvalidName = errors.New("invalid name")
	// ErrQuestionSetNotFound indicates a stored question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrQuestionNotFound is returned for a question id the room does not contain.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrStatsHidden is returned for answer statistics requested before the reveal.
	ErrStatsHidden = errors.New("answers not revealed yet")
	// ErrCodeSpaceExhausted is returned when no free room code could be generated.
	ErrCodeSpaceExhausted = errors.New("could not allocate a room code")
)
