package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/soochol/salesconnect/internal/auth"
	"github.com/soochol/salesconnect/internal/metrics"
	"github.com/soochol/salesconnect/internal/repository"
	"github.com/soochol/salesconnect/internal/services"
)

type Server struct {
	lifecycle      *services.LifecycleManager
	auth           *auth.Authenticator
	repo           repository.IntegrationRepository
	metrics        *metrics.Metrics
	auditLog       AuditLog
	allowedOrigins []string
	extensionTTL   time.Duration
}

func NewServer(lifecycle *services.LifecycleManager, authn *auth.Authenticator, repo repository.IntegrationRepository) *Server {
	return &Server{
		lifecycle:    lifecycle,
		auth:         authn,
		repo:         repo,
		extensionTTL: 24 * time.Hour,
	}
}

// SetMetrics enables request metrics and the /metrics endpoint.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetAllowedOrigins configures CORS origins for the web app and extension.
// With none, cross-origin requests are not answered with CORS headers.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.allowedOrigins = origins
}

// SetExtensionTokenTTL configures the lifetime of tokens issued by /api/session.
func (s *Server) SetExtensionTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		s.extensionTTL = ttl
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(metrics.Middleware(s.metrics))
	}
	if len(s.allowedOrigins) > 0 {
		// Browsers refuse credentials with a wildcard origin.
		credentials := !slices.Contains(s.allowedOrigins, "*")
		if !credentials {
			slog.Warn("cors: wildcard origin configured, credentialed requests disabled")
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: credentials,
		}))
	}

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.With(s.auth.Middleware).Get("/session", s.session)
		if s.auditLog != nil {
			r.With(s.auth.Middleware).Get("/audit", s.listAuditEvents)
		}
		r.Route("/integrations", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Get("/", s.listIntegrations)
			r.Get("/{provider}/connect", s.initiateConnect)
			r.Get("/{provider}/status", s.checkStatus)
			r.Post("/{provider}/callback", s.completeConnect)
			r.Post("/{provider}/disconnect", s.disconnect)
			r.Delete("/{provider}", s.disconnect)
		})
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
