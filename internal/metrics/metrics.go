package metrics

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Aggregation metrics
	AggregationPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snuskoll_aggregation_passes_total",
			Help: "Total aggregation passes by mode and result",
		},
		[]string{"mode", "result"},
	)

	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snuskoll_aggregation_duration_seconds",
			Help:    "Aggregation pass duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	// Scheduler metrics
	RefreshTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snuskoll_refresh_triggers_total",
			Help: "Refresh triggers received, by source and what the scheduler did with them",
		},
		[]string{"trigger", "outcome"},
	)

	// Usage metrics
	PortionsLogged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snuskoll_portions_logged_total",
			Help: "Total portions logged",
		},
	)

	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snuskoll_sessions_total",
			Help: "Session lifecycle events",
		},
		[]string{"event"},
	)

	PauseCommits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snuskoll_pause_commits_total",
			Help: "Times the current pause was committed as the day's longest pause",
		},
	)

	// Storage metrics
	RecordCacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snuskoll_record_cache_requests_total",
			Help: "Record cache lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		AggregationPasses,
		AggregationDuration,
		RefreshTriggers,
		PortionsLogged,
		SessionEvents,
		PauseCommits,
		RecordCacheRequests,
	)
}

// Server is the HTTP server exposing metrics, health and any mounted API.
type Server struct {
	server   *http.Server
	router   chi.Router
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new HTTP server. When withMetrics is false the
// /metrics endpoint is not mounted.
func NewServer(addr string, withMetrics bool, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	if withMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: r,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Mount attaches h under pattern.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping HTTP server")
	return s.server.Close()
}
