package http

import (
	"net/http"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/auth"
	"arena-quiz-service/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig wires the HTTP surface. Metrics may be nil.
type RouterConfig struct {
	Controller *app.RoomController
	Auth       *auth.Authenticator
	Metrics    *metrics.Recorder
	Logger     *zap.Logger
	RateLimit  RateLimit
}

// NewRouter builds the gin engine serving the REST API, the websocket and ops endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(recovery(log), requestLogger(log))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
		router.GET("/metrics", cfg.Metrics.Handler())
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	rooms := NewRoomHandler(cfg.Controller)
	limited := rateLimiter(cfg.RateLimit)
	hostOnly := cfg.Auth.Middleware()

	api := router.Group("/api/rooms")
	{
		api.POST("", hostOnly, rooms.CreateRoom)
		api.GET("/active", hostOnly, rooms.ActiveRooms)
		api.GET("/:code", rooms.GetRoom)
		api.POST("/:code/join", limited, rooms.Join)
		api.POST("/:code/answers", limited, rooms.SubmitAnswer)
		api.GET("/:code/scores", rooms.Scores)
		api.GET("/:code/questions/:questionId/stats", rooms.Stats)

		host := api.Group("/:code", hostOnly)
		{
			host.POST("/open", rooms.Open)
			host.POST("/close", rooms.Close)
			host.POST("/reveal", rooms.Reveal)
			host.POST("/advance", rooms.Advance)
			host.POST("/end", rooms.End)
			host.POST("/cancel", rooms.Cancel)
		}
	}

	ws := NewWSHandler(cfg.Controller, cfg.Auth, log)
	router.GET("/ws/rooms/:code", ws.Handle)
	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Error(c.Errors.Last().Err))
			log.Error("request failed", fields...)
			return
		}
		log.Debug("request", fields...)
	}
}

func recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("panic recovered", zap.Any("panic", err), zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
			}
		}()
		c.Next()
	}
}
