package app

import (
	"context"
	"errors"
	"time"

	"arena-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// ExpiredMessage is shown in rooms the janitor closes for inactivity.
const ExpiredMessage = "Room expired"

// SweepPolicy bounds how long rooms are kept around.
type SweepPolicy struct {
	// Retention is how long ended rooms stay readable before they are deleted.
	Retention time.Duration
	// StaleAfter ends rooms still open this long after creation.
	StaleAfter time.Duration
}

// SweepResult reports what a sweep did.
type SweepResult struct {
	Expired int
	Purged  int
}

// Sweep expires stale rooms and deletes ended rooms past retention. Per-room failures
// are logged and skipped; only a failure to list rooms aborts the sweep.
func (c *RoomController) Sweep(ctx context.Context, policy SweepPolicy) (SweepResult, error) {
	rooms, err := c.rooms.List(ctx)
	if err != nil {
		return SweepResult{}, err
	}
	now := c.now()

	var res SweepResult
	for _, r := range rooms {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch {
		case r.Status == domain.StatusEnded && policy.Retention > 0:
			endedAt := r.EndedAt
			if endedAt.IsZero() {
				endedAt = r.CreatedAt
			}
			if now.Sub(endedAt) < policy.Retention {
				continue
			}
			if err := c.rooms.Delete(ctx, r.Code); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
				c.log.Warn("purge room failed", zap.String("room", r.Code), zap.Error(err))
				continue
			}
			res.Purged++
		case r.Status != domain.StatusEnded && policy.StaleAfter > 0:
			if now.Sub(r.CreatedAt) < policy.StaleAfter {
				continue
			}
			applied, err := c.apply(ctx, nil, r.Code, CmdExpire, cancel(ExpiredMessage))
			if err != nil {
				c.log.Warn("expire room failed", zap.String("room", r.Code), zap.Error(err))
				continue
			}
			if applied {
				res.Expired++
			}
		}
	}

	if n := res.Expired + res.Purged; n > 0 {
		c.metrics.RoomsSwept(n)
		c.log.Info("rooms swept", zap.Int("expired", res.Expired), zap.Int("purged", res.Purged))
	}
	return res, nil
}
