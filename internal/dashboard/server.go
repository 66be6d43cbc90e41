// Package dashboard serves the maintenance risk form and its JSON and
// websocket equivalents.
//
// All surfaces share one risk.Assessor built at startup. Readings are range
// checked against features.Limits before they reach the assessor, and
// classifier contract violations are reported as internal errors instead of
// a risk band.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"predictive-maintenance/internal/risk"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Metrics is the part of metrics.MetricsWrapper the dashboard reports to.
type Metrics interface {
	InvalidReadingInc()
	RequestObserve(route string, code int, d time.Duration)
}

// History lists recorded assessments, newest first.
type History interface {
	Recent(n int) ([]risk.Assessment, error)
}

// Server is the HTTP surface of the service.
type Server struct {
	assessor    *risk.Assessor
	metrics     Metrics
	history     History
	historySize int
	gatherer    prometheus.Gatherer
	limiter     *rate.Limiter

	router   *mux.Router
	server   *http.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	isRunning bool
}

type Option func(*Server)

// WithMetrics reports request latency and rejected readings.
func WithMetrics(m Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithHistory shows the last n assessments under the form and on /api/history.
func WithHistory(h History, n int) Option {
	return func(s *Server) {
		s.history = h
		s.historySize = n
	}
}

// WithRateLimit caps assessments across all surfaces at perSecond with the
// given burst. A non-positive rate leaves scoring unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// NewServer wires the routes. The listener is not opened until Start.
func NewServer(assessor *risk.Assessor, port int, opts ...Option) *Server {
	s := &Server{
		assessor: assessor,
		gatherer: prometheus.DefaultGatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(s.observe)
	r.HandleFunc("/", s.handleForm).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/api/assess", s.handleAssessAPI).Methods(http.MethodPost)
	r.HandleFunc("/api/history", s.handleHistoryAPI).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/model/info", s.handleModelInfo).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router = r

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start opens the listener in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	go func() {
		log.Info().Str("address", s.server.Addr).Msg("Starting dashboard server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown dashboard server")
		return err
	}
	s.isRunning = false
	log.Info().Msg("Dashboard stopped")
	return nil
}

// observe records per-route latency and status.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if s.metrics != nil {
			s.metrics.RequestObserve(route, rec.status, time.Since(start))
		}
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func (s *Server) invalidReading() {
	if s.metrics != nil {
		s.metrics.InvalidReadingInc()
	}
}

// allow reports whether another assessment may run now.
func (s *Server) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

func (s *Server) recent() []risk.Assessment {
	if s.history == nil || s.historySize <= 0 {
		return nil
	}
	items, err := s.history.Recent(s.historySize)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read assessment history")
		return nil
	}
	return items
}
