// Package api exposes the HTTP interface for the product import service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/metrics"
	"github.com/skuline/product-import/internal/products"
	"github.com/skuline/product-import/internal/progress"
	"github.com/skuline/product-import/internal/webhook"
)

// Config controls Server behavior.
type Config struct {
	UploadURLTTL   time.Duration
	RequestTimeout time.Duration
	AuthEnabled    bool
	APIKey         string
}

const (
	defaultUploadURLTTL   = time.Hour
	defaultRequestTimeout = 60 * time.Second
)

// Server wires HTTP handlers to the stores, tracker, and task queue.
type Server struct {
	router   chi.Router
	jobs     catalog.JobStore
	tracker  *progress.Tracker
	objects  catalog.ObjectStore
	tasks    catalog.Queue
	products *products.Service
	subs     catalog.SubscriptionStore
	hooks    *webhook.Dispatcher
	idGen    catalog.IDGenerator
	clock    catalog.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs catalog.JobStore,
	tracker *progress.Tracker,
	objects catalog.ObjectStore,
	tasks catalog.Queue,
	productSvc *products.Service,
	subs catalog.SubscriptionStore,
	hooks *webhook.Dispatcher,
	idGen catalog.IDGenerator,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.UploadURLTTL <= 0 {
		cfg.UploadURLTTL = defaultUploadURLTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:     jobs,
		tracker:  tracker,
		objects:  objects,
		tasks:    tasks,
		products: productSvc,
		subs:     subs,
		hooks:    hooks,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.AuthEnabled {
		r.Use(s.apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", s.createImport)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Post("/start", s.startImport)
				r.Get("/status", s.getImportStatus)
			})
		})
		r.Route("/products", func(r chi.Router) {
			r.Post("/", s.createProduct)
			r.Route("/{product_id}", func(r chi.Router) {
				r.Get("/", s.getProduct)
				r.Put("/", s.updateProduct)
				r.Delete("/", s.deleteProduct)
			})
		})
		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", s.listSubscriptions)
			r.Post("/", s.createSubscription)
			r.Route("/{subscription_id}", func(r chi.Router) {
				r.Get("/", s.getSubscription)
				r.Put("/", s.updateSubscription)
				r.Delete("/", s.deleteSubscription)
				r.Post("/test", s.testSubscription)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Readiness rides on the durable tier: an unreachable job store means
	// the instance cannot serve anything useful.
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.jobs.GetJob(ctx, readinessProbeJobID); err != nil && !isNotFound(err) {
		writeError(s.logger, w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

// readinessProbeJobID is a fixed UUID that never matches a real job, so the
// probe exercises the store without touching user data.
const readinessProbeJobID = "00000000-0000-0000-0000-000000000000"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(s.logger, w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}

func isNotFound(err error) bool {
	return errors.Is(err, catalog.ErrNotFound)
}
