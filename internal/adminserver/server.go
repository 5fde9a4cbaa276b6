// Package adminserver is the relay's observability surface: Prometheus
// metrics plus liveness/readiness, served over plain HTTP and wrapped in
// the same recovery/logging/metrics/rate-limit middleware chain the
// teacher wraps its request handlers in.
package adminserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hurzhurz/wg-bridge/internal/config"
	"github.com/hurzhurz/wg-bridge/internal/logging"
	"github.com/hurzhurz/wg-bridge/internal/metrics"
	"github.com/hurzhurz/wg-bridge/internal/ratelimit"
)

// Server serves /metrics, /healthz and /readyz.
type Server struct {
	httpServer  *http.Server
	log         *logging.Logger
	metrics     *metrics.Metrics
	rateLimiter *ratelimit.Limiter
	cfg         config.MetricsConfig
}

// New builds the admin HTTP server. isReady is polled by /readyz; the
// caller supplies it so readiness can reflect dispatcher state (e.g. the
// UDP socket bound successfully) without this package depending on
// relaycore.
func New(cfg config.MetricsConfig, log *logging.Logger, m *metrics.Metrics, health *metrics.HealthChecker, isReady func() bool) *Server {
	var rl *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rl = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   cfg.RateLimit.CleanupInterval,
			BanDuration:       cfg.RateLimit.BanDuration,
			MaxViolations:     cfg.RateLimit.MaxViolations,
		})
	}

	s := &Server{
		log:         log.WithComponent("adminserver"),
		metrics:     m,
		rateLimiter: rl,
		cfg:         cfg,
	}

	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/healthz", health.HealthHandler())
	mux.HandleFunc("/readyz", health.ReadinessHandler(isReady))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.chain(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return s
}

// chain applies recovery, logging, metrics and (if configured) rate
// limiting around the handler, in the order the teacher's
// Middleware.Chain applies them.
func (s *Server) chain(h http.Handler) http.Handler {
	h = s.recovery(h)
	h = s.logRequests(h)
	h = s.observe(h)
	if s.rateLimiter != nil {
		h = s.rateLimit(h)
	}
	return h
}

// ListenAndServe starts serving and blocks until the listener closes.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			s.metrics.RateLimitHits.Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("admin request")
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, http.StatusText(wrapped.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error().Interface("error", err).Str("path", r.URL.Path).Msg("panic recovered")
				s.metrics.PanicsTotal.Inc()
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
