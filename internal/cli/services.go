package cli

import (
	"context"
	"fmt"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/config"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	"arena-quiz-service/internal/infra/postgres"
	infraredis "arena-quiz-service/internal/infra/redis"
	"arena-quiz-service/internal/logger"
	"arena-quiz-service/internal/metrics"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// services holds everything a command needs to drive rooms. Redis and Postgres are
// optional; without them rooms and question sets live in process memory.
type services struct {
	cfg      config.Config
	log      *zap.Logger
	redis    *redis.Client
	pool     *pgxpool.Pool
	db       *bun.DB
	recorder *metrics.Recorder
	ctrl     *app.RoomController
}

func loadConfig(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func buildServices(ctx context.Context, cfg config.Config, log *zap.Logger) (*services, error) {
	s := &services{cfg: cfg, log: log}
	s.redis = newRedisClient(cfg)
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	var loader memory.QuestionSetLoader = memory.NewStaticQuestionSetLoader(sampleQuestionSets())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.pool = pool
		s.db = postgres.OpenBun(cfg.Postgres.URL)
		loader = postgres.NewQuestionSetLoader(pool)
	}

	questionsTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	var sets app.QuestionSetRepository
	var rooms app.RoomStore
	if s.redis != nil {
		sets = infraredis.NewQuestionSetRepository(s.redis, loader, questionsTTL)
		rooms = infraredis.NewRoomStore(s.redis, config.Duration(cfg.Redis.TTL, 48*time.Hour))
	} else {
		sets = memory.NewQuestionSetRepository(loader, questionsTTL)
		rooms = memory.NewRoomStore()
	}

	scoring := app.DefaultScoring()
	if cfg.Scoring.BasePoints > 0 {
		scoring.BasePoints = cfg.Scoring.BasePoints
	}
	if cfg.Scoring.Curve != "" {
		scoring.Curve = app.Curve(cfg.Scoring.Curve)
	}
	scoring.MinFraction = cfg.Scoring.MinFraction
	scorer, err := app.NewScorer(scoring)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.recorder = metrics.NewRecorder(prometheus.NewRegistry())
	opts := []app.Option{app.WithMetrics(s.recorder)}
	if s.db != nil {
		opts = append(opts, app.WithArchive(postgres.NewResultArchive(s.db)))
	}
	s.ctrl = app.NewRoomController(rooms, sets, scorer, log, opts...)

	log.Info("services ready",
		zap.Bool("redis", s.redis != nil),
		zap.Bool("postgres", s.pool != nil),
		zap.String("curve", string(scoring.Curve)))
	return s, nil
}

func (s *services) sweepPolicy() app.SweepPolicy {
	return app.SweepPolicy{
		Retention:  config.Duration(s.cfg.Cleanup.Retention, 24*time.Hour),
		StaleAfter: config.Duration(s.cfg.Cleanup.StaleAfter, 24*time.Hour),
	}
}

func (s *services) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// sampleQuestionSets backs question set lookups when no database is configured.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"sample": {
			ID:    "sample",
			Title: "Warm-up",
			Questions: []domain.Question{
				{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectOption: 1, TimeLimit: 20},
				{ID: "q2", Text: "Which planet is closest to the sun?", Options: []string{"Venus", "Earth", "Mercury", "Mars"}, CorrectOption: 2, TimeLimit: 20},
				{ID: "q3", Text: "How many sides does a hexagon have?", Options: []string{"5", "6", "7", "8"}, CorrectOption: 1, TimeLimit: 15},
			},
		},
	}
}
