// Package web provides the dashboard HTTP server.
//
// The server exposes the stop map feed, the report feed, report submission
// (single-shot form and stepwise intake), and the best-effort AI advice
// endpoints. It owns no domain state: everything flows through the intake
// sessions, the report store, and the advisor collaborator.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/safetransit/safetransit/internal/report"
	"github.com/safetransit/safetransit/internal/stops"
	"github.com/safetransit/safetransit/internal/storage"
	"github.com/safetransit/safetransit/internal/web/static"
)

// ReportStore is the read side of the report store consumed by the
// dashboard handlers.
type ReportStore interface {
	Recent(ctx context.Context, limit int) ([]*report.Report, error)
	StopStatus(ctx context.Context) ([]storage.StopStatus, error)
}

// Advisor produces best-effort safety advice for the dashboard features.
// Implementations may return empty text; handlers render that as
// "advice unavailable" rather than an error.
type Advisor interface {
	SafetyRecommendation(ctx context.Context, location, timeOfDay string) (string, error)
	RouteSuggestion(ctx context.Context, from, to string) (string, error)
	EmergencyGuidance(ctx context.Context) (string, error)
}

// ServerConfig contains configuration for creating the dashboard server.
type ServerConfig struct {
	Logger     *slog.Logger     // Optional: nil uses slog.Default()
	Sessions   *report.Sessions // Required: intake session manager
	Store      ReportStore      // Required: report read side
	Registry   *stops.Registry  // Required: stop set
	Advisor    Advisor          // Required: use analysis.Noop{} when AI is disabled
	RateBurst  int              // Optional: 0 uses DefaultRateBurst
	TrustProxy bool             // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
}

// Server is the dashboard HTTP server.
type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	limiter    *rateLimiter
	trustProxy bool
}

// NewServer creates a dashboard server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("sessions manager is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("report store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("stop registry is required")
	}
	if cfg.Advisor == nil {
		return nil, errors.New("advisor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = DefaultRateBurst
	}

	h := &handlers{
		logger:     logger,
		sessions:   cfg.Sessions,
		store:      cfg.Store,
		registry:   cfg.Registry,
		advisor:    cfg.Advisor,
		trustProxy: cfg.TrustProxy,
	}

	mux := http.NewServeMux()

	// Probes, no middleware cost worth worrying about.
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /readyz", h.health)

	// Dashboard data
	mux.HandleFunc("GET /api/v1/stops", h.listStops)
	mux.HandleFunc("GET /api/v1/stops/status", h.stopStatus)
	mux.HandleFunc("GET /api/v1/reports", h.listReports)

	// Report submission
	mux.HandleFunc("POST /api/v1/reports", h.submitReport)
	mux.HandleFunc("POST /api/v1/intake", h.intakeInput)
	mux.HandleFunc("POST /api/v1/intake/begin", h.intakeBegin)
	mux.HandleFunc("POST /api/v1/intake/cancel", h.intakeCancel)

	// Best-effort AI advice
	mux.HandleFunc("GET /api/v1/insights", h.insights)
	mux.HandleFunc("POST /api/v1/route", h.route)
	mux.HandleFunc("POST /api/v1/emergency", h.emergency)

	// Dashboard page
	mux.Handle("GET /", static.Handler())

	return &Server{
		mux:        mux,
		logger:     logger,
		limiter:    newRateLimiter(defaultRatePerSecond, burst),
		trustProxy: cfg.TrustProxy,
	}, nil
}

// ServeHTTP implements http.Handler with the middleware stack:
// Recovery → Logging → RateLimit → Routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var handler http.Handler = s.mux
	handler = rateLimitMiddleware(s.limiter, s.trustProxy, s.logger)(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}
