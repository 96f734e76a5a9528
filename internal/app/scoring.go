package app

import (
	"fmt"
	"math"

	"arena-quiz-service/internal/domain"
)

// Curve names the time-decay applied to correct answers.
type Curve string

const (
	CurveLinear    Curve = "linear"
	CurveQuadratic Curve = "quadratic"
	CurveFlat      Curve = "flat"
)

// ScoringConfig parameterizes the points function.
type ScoringConfig struct {
	BasePoints  int
	MinFraction float64 // share of BasePoints still awarded at the time limit
	Curve       Curve
}

// DefaultScoring awards 1000 points scaled down linearly to zero at the time limit.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{BasePoints: 1000, MinFraction: 0, Curve: CurveLinear}
}

// Scorer turns a single response into points.
type Scorer struct {
	cfg ScoringConfig
}

func NewScorer(cfg ScoringConfig) (*Scorer, error) {
	if cfg.BasePoints <= 0 {
		return nil, fmt.Errorf("scoring: base points must be positive, got %d", cfg.BasePoints)
	}
	if cfg.MinFraction < 0 || cfg.MinFraction > 1 {
		return nil, fmt.Errorf("scoring: min fraction must be within [0,1], got %v", cfg.MinFraction)
	}
	switch cfg.Curve {
	case "":
		cfg.Curve = CurveLinear
	case CurveLinear, CurveQuadratic, CurveFlat:
	default:
		return nil, fmt.Errorf("scoring: unknown curve %q", cfg.Curve)
	}
	return &Scorer{cfg: cfg}, nil
}

// Points returns the score for one answer. Incorrect answers and timeouts earn nothing;
// a correct answer always earns at least one point and never fewer than a slower one.
func (s *Scorer) Points(correct bool, takenSeconds float64, limitSeconds int) int {
	if !correct {
		return 0
	}
	ratio := 0.0
	if limitSeconds > 0 {
		ratio = takenSeconds / float64(limitSeconds)
	}
	ratio = math.Max(0, math.Min(1, ratio))

	var decay float64
	switch s.cfg.Curve {
	case CurveQuadratic:
		decay = (1 - ratio) * (1 - ratio)
	case CurveFlat:
		decay = 1
	default:
		decay = 1 - ratio
	}
	fraction := s.cfg.MinFraction + (1-s.cfg.MinFraction)*decay
	points := int(math.Round(float64(s.cfg.BasePoints) * fraction))
	if points < 1 {
		points = 1
	}
	return points
}

// ScoreResponse scores a response against the question it answers.
func (s *Scorer) ScoreResponse(q domain.Question, r domain.Response) int {
	if r.SelectedOption == domain.NoAnswer {
		return 0
	}
	limit := r.TimeLimitSeconds
	if limit <= 0 {
		limit = q.TimeLimit
	}
	return s.Points(r.SelectedOption == q.CorrectOption, r.TimeTakenSeconds, limit)
}
