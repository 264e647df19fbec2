// Package api provides the HTTP REST API server for agrodash.
//
// It exposes the aggregated market data (news, quotes, international
// prices, FX reference rate, weather), AI market reports with per-user
// quotas, and a WebSocket stream of report-ready events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/geraldosnetto/agro-sub002/internal/aggregate"
	"github.com/geraldosnetto/agro-sub002/internal/config"
	"github.com/geraldosnetto/agro-sub002/internal/report"
	"github.com/geraldosnetto/agro-sub002/internal/scheduler"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// UserHeader carries the caller identity used for report quotas.
const UserHeader = "X-User-ID"

// Error codes returned in the envelope.
const (
	CodeAllSourcesFailed   = "ALL_SOURCES_FAILED"
	CodeUnknownCommodity   = "UNKNOWN_COMMODITY"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeHistoryUnavailable = "HISTORY_UNAVAILABLE"
	CodeUnknownJob         = "UNKNOWN_JOB"
	CodeTimeout            = "TIMEOUT"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	agg       *aggregate.Aggregator
	reports   *report.Generator
	sched     *scheduler.Scheduler
	cfg       *config.Config
	providers []string
	hub       *Hub
	version   string
	timeout   time.Duration
	origins   []string
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithConfig exposes cfg's key status on /api/v1/status and applies its
// API section (CORS origins, request timeout).
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.cfg = cfg
		if len(cfg.API.CORSOrigins) > 0 {
			s.origins = cfg.API.CORSOrigins
		}
		if cfg.API.RequestTimeout > 0 {
			s.timeout = cfg.API.RequestTimeout
		}
	}
}

// WithScheduler enables job listing and manual triggers.
func WithScheduler(sched *scheduler.Scheduler) Option {
	return func(s *Server) { s.sched = sched }
}

// WithProviders lists the registered LLM providers on /api/v1/status.
func WithProviders(names []string) Option {
	return func(s *Server) { s.providers = names }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// WithLogger sets the access and error logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// NewServer creates a configured API server with all routes and middleware.
// Report-ready events from gen are broadcast to WebSocket clients.
func NewServer(agg *aggregate.Aggregator, gen *report.Generator, opts ...Option) *Server {
	s := &Server{
		agg:     agg,
		reports: gen,
		version: "dev",
		timeout: 60 * time.Second,
		origins: []string{"*"},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.hub = NewHub(s.logger)
	if gen != nil {
		gen.OnReady(s.publishReport)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.timeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", UserHeader},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.deadline)

			r.Get("/commodities", s.handleCommodities)
			r.Get("/news", s.handleNews)
			r.Get("/international-prices", s.handleInternationalPrices)
			r.Get("/quotes/{slug}", s.handleQuotes)
			r.Get("/quotes/{slug}/history", s.handleQuoteHistory)
			r.Get("/rates/usd", s.handleReferenceRate)
			r.Get("/weather", s.handleWeather)
			r.Get("/weather/cities", s.handleSearchCities)
		})

		// Report generation has its own timeout in the generator.
		r.Get("/reports/usage", s.handleReportUsage)
		r.Get("/reports/{kind}", s.handleReport)
		r.Get("/reports/{kind}/state", s.handleReportState)

		r.Get("/jobs", s.handleJobs)
		r.Post("/jobs/{name}", s.handleTriggerJob)
	})

	return r
}

// deadline bounds data requests; handlers map the expiry to 504.
func (s *Server) deadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog logs one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// ============================================================
// Envelope
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Cached  bool           `json:"cached"`
	Code    string         `json:"code,omitempty"`
	Error   string         `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorMeta(w, status, code, msg, nil)
}

func writeErrorMeta(w http.ResponseWriter, status int, code, msg string, meta map[string]any) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, APIResponse{
		Success: false,
		Code:    code,
		Error:   msg,
		Meta:    meta,
	})
}

// setCacheControl lets shared caches keep a response for ttl and serve it
// stale for another ttl while revalidating.
func setCacheControl(w http.ResponseWriter, ttl time.Duration) {
	secs := int(ttl / time.Second)
	if secs <= 0 {
		w.Header().Set("Cache-Control", "no-store")
		return
	}
	w.Header().Set("Cache-Control",
		"public, s-maxage="+strconv.Itoa(secs)+", stale-while-revalidate="+strconv.Itoa(secs))
}

// writeFailure maps domain errors to status codes. Upstream error text is
// logged, never returned.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(r.Context().Err(), context.Canceled) {
		// Client went away.
		s.logger.Debug().Str("path", r.URL.Path).Msg("request cancelled")
		return
	}
	if re, ok := report.AsError(err); ok {
		switch re.Code {
		case report.CodeQuotaExceeded:
			writeErrorMeta(w, http.StatusTooManyRequests, string(re.Code), re.Message,
				map[string]any{"remaining": re.Remaining})
		case report.CodeShuttingDown:
			writeErrorMeta(w, http.StatusServiceUnavailable, string(re.Code), re.Message,
				map[string]any{"retryable": true})
		default:
			s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("report failed")
			writeErrorMeta(w, http.StatusBadGateway, string(re.Code), re.Message,
				map[string]any{"retryable": re.Retryable})
		}
		return
	}

	switch {
	case errors.Is(err, aggregate.ErrUnknownCommodity):
		writeError(w, http.StatusNotFound, CodeUnknownCommodity, err.Error())
	case errors.Is(err, report.ErrInvalidKind), errors.Is(err, report.ErrMissingCommodity):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, aggregate.ErrNoRepository):
		writeError(w, http.StatusNotImplemented, CodeHistoryUnavailable, "quote history is not configured")
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeError(w, http.StatusNotFound, CodeUnknownJob, err.Error())
	case errors.Is(err, aggregate.ErrAllSourcesFailed):
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("all sources failed")
		writeError(w, http.StatusServiceUnavailable, CodeAllSourcesFailed, "all upstream sources failed")
	case errors.Is(err, context.Canceled):
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("work cancelled under a live request")
		writeErrorMeta(w, http.StatusServiceUnavailable, CodeUnavailable, "request could not be completed",
			map[string]any{"retryable": true})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, CodeTimeout, "request timed out")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// publishReport forwards a generated report to WebSocket clients.
func (s *Server) publishReport(r models.AggregatedReport) {
	s.hub.Broadcast(WSMessage{
		Type: EventReportReady,
		Data: ReportEvent{
			ID:          r.ID,
			Kind:        r.Kind,
			Commodity:   r.Commodity,
			GeneratedAt: r.GeneratedAt,
			ExpiresAt:   r.ExpiresAt,
		},
		Time: s.now(),
	})
}
