package postgres

import (
	"context"
	"fmt"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type roomResultRow struct {
	bun.BaseModel `bun:"table:room_results"`

	Code            string              `bun:"code,pk"`
	Name            string              `bun:"name"`
	HostID          string              `bun:"host_id,notnull"`
	CanceledMessage string              `bun:"canceled_message"`
	QuestionCount   int                 `bun:"question_count,notnull"`
	StudentCount    int                 `bun:"student_count,notnull"`
	Standings       []domain.ScoreEntry `bun:"standings,type:jsonb,notnull"`
	CreatedAt       time.Time           `bun:"created_at,notnull"`
	EndedAt         time.Time           `bun:"ended_at,notnull"`
}

// ResultArchive persists the final standings of ended rooms.
type ResultArchive struct {
	db *bun.DB
}

func NewResultArchive(db *bun.DB) *ResultArchive {
	return &ResultArchive{db: db}
}

func (a *ResultArchive) Archive(ctx context.Context, room domain.Room, board domain.Leaderboard) error {
	standings := board.Entries
	if standings == nil {
		standings = []domain.ScoreEntry{}
	}
	row := roomResultRow{
		Code:            room.Code,
		Name:            room.Name,
		HostID:          room.HostID,
		CanceledMessage: room.CanceledMessage,
		QuestionCount:   len(room.Questions),
		StudentCount:    len(room.Students),
		Standings:       standings,
		CreatedAt:       room.CreatedAt,
		EndedAt:         room.EndedAt,
	}
	_, err := a.db.NewInsert().
		Model(&row).
		On("CONFLICT (code) DO UPDATE").
		Set("standings = EXCLUDED.standings").
		Set("student_count = EXCLUDED.student_count").
		Set("canceled_message = EXCLUDED.canceled_message").
		Set("ended_at = EXCLUDED.ended_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("archive room %s: %w", room.Code, err)
	}
	return nil
}
