package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena-quiz-service/internal/auth"
	"arena-quiz-service/internal/config"
	transport "arena-quiz-service/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/jasonlvhit/gocron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	svc, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	authn, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(transport.RouterConfig{
		Controller: svc.ctrl,
		Auth:       authn,
		Metrics:    svc.recorder,
		Logger:     log,
		RateLimit: transport.RateLimit{
			PerSecond: cfg.RateLimit.PerSecond,
			Burst:     cfg.RateLimit.Burst,
		},
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopSweeper := startSweeper(svc, config.Duration(cfg.Cleanup.Interval, 15*time.Minute))
	defer stopSweeper()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startSweeper runs the room janitor on a gocron schedule until the returned func is called.
func startSweeper(svc *services, interval time.Duration) func() {
	seconds := uint64(interval / time.Second)
	if seconds == 0 {
		seconds = 1
	}
	policy := svc.sweepPolicy()
	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := svc.ctrl.Sweep(ctx, policy); err != nil {
			svc.log.Warn("room sweep failed", zap.Error(err))
		}
	}

	scheduler := gocron.NewScheduler()
	if err := scheduler.Every(seconds).Seconds().Do(sweep); err != nil {
		svc.log.Warn("room sweeper not scheduled", zap.Error(err))
		return func() {}
	}
	stopped := scheduler.Start()
	svc.log.Info("room sweeper scheduled", zap.Duration("interval", time.Duration(seconds)*time.Second))
	return func() {
		stopped <- true
		scheduler.Clear()
	}
}
