package postgres

import (
	"context"
	"fmt"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type questionSetRow struct {
	bun.BaseModel `bun:"table:question_sets"`

	ID        string             `bun:"id,pk"`
	Title     string             `bun:"title,notnull"`
	Data      domain.QuestionSet `bun:"data,type:jsonb,notnull"`
	UpdatedAt time.Time          `bun:"updated_at,notnull"`
}

// QuestionSetWriter stores question sets imported by hosts.
type QuestionSetWriter struct {
	db  *bun.DB
	now func() time.Time
}

func NewQuestionSetWriter(db *bun.DB) *QuestionSetWriter {
	return &QuestionSetWriter{db: db, now: time.Now}
}

// SaveQuestionSet inserts the set or replaces an existing one with the same id.
func (w *QuestionSetWriter) SaveQuestionSet(ctx context.Context, set domain.QuestionSet) error {
	row := questionSetRow{
		ID:        set.ID,
		Title:     set.Title,
		Data:      set,
		UpdatedAt: w.now(),
	}
	_, err := w.db.NewInsert().
		Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save question set %s: %w", set.ID, err)
	}
	return nil
}
