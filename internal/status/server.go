// Package status implements the scheduler's multi-strategy status/metrics
// HTTP surface: a small chi router exposing health, portfolio, position,
// and recent-alert endpoints as JSON. It is grounded on the teacher's
// internal/dashboard.Server (single-SPY-strangle HTML dashboard),
// generalized from one broker/strategy/HTML-template surface into a
// venue-agnostic JSON API over the scheduler's own adapter/risk/alert
// collaborators — no HTML templates, since this spec has no operator web
// UI requirement, just the status data the teacher's dashboard also
// served under /api/*.
package status

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stratyard/tradecore/internal/alert"
	"github.com/stratyard/tradecore/internal/metrics"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/risk"
)

// Config tunes the status server.
type Config struct {
	Port      int
	AuthToken string // empty disables auth
}

// Server is the scheduler's read-only status API.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	adapter *options.Adapter
	risk    *risk.OptionsManager
	alerts  *alert.Sink
	logger  *logrus.Logger
	cfg     Config
}

// NewServer constructs a status server bound to one scheduler run's
// adapter, risk manager, and alert sink.
func NewServer(cfg Config, adapter *options.Adapter, riskMgr *risk.OptionsManager, alerts *alert.Sink, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{router: chi.NewRouter(), adapter: adapter, risk: riskMgr, alerts: alerts, logger: logger, cfg: cfg}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		if s.cfg.AuthToken != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/positions", s.handlePositions)
		r.Get("/api/alerts", s.handleAlerts)
	})
}

// ListenAndServe starts the HTTP server on cfg.Port. It blocks until the
// server stops (Shutdown is called or ListenAndServe itself fails).
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedURL := redactTokenFromURL(r.URL)
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"url":      loggedURL.String(),
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("status request")
	})
}

func redactTokenFromURL(original *url.URL) *url.URL {
	clone := &url.URL{Scheme: original.Scheme, Host: original.Host, Path: original.Path, RawQuery: original.RawQuery}
	if original.RawQuery != "" {
		values := original.Query()
		if values.Has("token") {
			values.Set("token", "[REDACTED]")
		}
		clone.RawQuery = values.Encode()
	}
	return clone
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if !s.isValidToken(token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.cfg.AuthToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusView is the JSON shape served by /api/status.
type statusView struct {
	PortfolioValue     float64 `json:"portfolio_value"`
	Cash               float64 `json:"cash"`
	OpenPositions      int     `json:"open_positions"`
	Delta              float64 `json:"delta"`
	ThetaPerDay        float64 `json:"theta_per_day"`
	DailyPnL           float64 `json:"daily_pnl"`
	ConsecutiveLosses  int     `json:"consecutive_losses"`
	CircuitBreakActive bool    `json:"circuit_break_active"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	portfolioValue, err := s.adapter.GetPortfolioValue(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	greeks := s.adapter.GetPortfolioGreeks()
	state := s.risk.State()
	openPositions := len(s.adapter.Positions())
	metrics.PortfolioValue.Set(portfolioValue)
	metrics.OpenPositions.Set(float64(openPositions))
	writeJSON(w, http.StatusOK, statusView{
		PortfolioValue:     portfolioValue,
		Cash:               s.adapter.Cash(),
		OpenPositions:      openPositions,
		Delta:              greeks.Delta,
		ThetaPerDay:        greeks.ThetaPerDay,
		DailyPnL:           state.DailyPnL,
		ConsecutiveLosses:  state.ConsecutiveLosses,
		CircuitBreakActive: state.CircuitBreakActive,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.adapter.Positions())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.History())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
