package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the service's Prometheus collectors. It implements app.Metrics.
type Recorder struct {
	transitions     *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	roomsCreated    prometheus.Counter
	roomsSwept      prometheus.Counter
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

// NewRecorder registers all collectors on reg.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_transitions_total",
				Help: "Room lifecycle commands by outcome",
			},
			[]string{"command", "result"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_submissions_total",
				Help: "Answer submissions by outcome",
			},
			[]string{"result"},
		),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_rooms_created_total",
			Help: "Rooms created",
		}),
		roomsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_rooms_swept_total",
			Help: "Rooms expired or purged by the janitor",
		}),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		r.transitions,
		r.submissions,
		r.roomsCreated,
		r.roomsSwept,
		r.requestCounter,
		r.requestDuration,
	)
	return r
}

func (r *Recorder) Transition(command string, applied bool) {
	result := "applied"
	if !applied {
		result = "ignored"
	}
	r.transitions.WithLabelValues(command, result).Inc()
}

func (r *Recorder) Submission(result string) {
	r.submissions.WithLabelValues(result).Inc()
}

func (r *Recorder) RoomCreated() {
	r.roomsCreated.Inc()
}

func (r *Recorder) RoomsSwept(n int) {
	r.roomsSwept.Add(float64(n))
}

// Middleware records request counts and latency per route.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		r.requestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		r.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
