package domain

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	MaxQuestions      = 100
	MaxTimeLimit      = 600
	MaxNameLength     = 40
	MaxRoomNameLength = 80
)

// Validate checks a single question.
func (q Question) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Text, validation.Required, validation.Length(1, 500)),
		validation.Field(&q.Options,
			validation.Required,
			validation.Length(OptionCount, OptionCount),
			validation.Each(validation.Required, validation.Length(1, 200)),
		),
		validation.Field(&q.CorrectOption, validation.Min(0), validation.Max(OptionCount-1)),
		validation.Field(&q.TimeLimit, validation.Required, validation.Min(1), validation.Max(MaxTimeLimit)),
	)
}

// ValidateQuestions checks a room's question list and wraps failures in ErrInvalidQuestions.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidQuestions)
	}
	if len(questions) > MaxQuestions {
		return fmt.Errorf("%w: at most %d questions are allowed", ErrInvalidQuestions, MaxQuestions)
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("%w: question %d: %v", ErrInvalidQuestions, i+1, err)
		}
		if q.ID == "" {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuestions, q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// ValidateMode rejects unknown presentation modes.
func ValidateMode(mode Mode) error {
	if err := validation.Validate(mode, validation.Required, validation.In(ModeFullManual, ModeOptionOnly)); err != nil {
		return fmt.Errorf("%w: mode: %v", ErrInvalidQuestions, err)
	}
	return nil
}

// NormalizeName trims a display name and enforces its length bounds.
func NormalizeName(raw string, max int) (string, error) {
	name := strings.TrimSpace(raw)
	if err := validation.Validate(name, validation.Required, validation.RuneLength(1, max)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return name, nil
}

// NormalizeCode upper-cases and trims a room code as typed by a participant.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
