package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 48h
scoring:
  basePoints: 500
  minFraction: 0.1
  curve: quadratic
cleanup:
  interval: 10m
rateLimit:
  perSecond: 5
  burst: 10
auth:
  jwtSecret: from-file
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected server/redis config %+v", cfg)
	}
	if cfg.Scoring.BasePoints != 500 || cfg.Scoring.Curve != "quadratic" || cfg.Scoring.MinFraction != 0.1 {
		t.Fatalf("unexpected scoring config %+v", cfg.Scoring)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("expected env secret override, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: got %v", got)
	}
	if got := Duration("bogus", time.Minute); got != time.Minute {
		t.Fatalf("invalid: got %v", got)
	}
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("valid: got %v", got)
	}
}
