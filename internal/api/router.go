package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/schoolhub-core/internal/auth"
)

// healthCheckTimeout bounds each dependency probe on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.observeMiddleware)
	r.Use(s.recoveryMiddleware)
	for _, h := range securityHeaders {
		r.Use(middleware.SetHeader(h[0], h[1]))
	}
	r.Use(s.corsMiddleware)
	r.Use(middleware.RequestSize(s.maxBodyBytes()))

	// Prometheus scrape endpoint lives outside the versioned API.
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates with a ticket, not a bearer token.
		r.Get("/ws", s.handleWebSocket)

		// Credential endpoints (no token, rate limited)
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
		})

		// Any authenticated user
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth(auth.PermProfileSelf))
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleGetMe)
			r.Put("/auth/me", s.handleUpdateMe)
			r.Put("/auth/me/password", s.handleChangePassword)
		})

		r.With(s.requireAuth(auth.PermEventsSubscribe)).Post("/auth/ws-ticket", s.handleWSTicket)

		r.Route("/users", func(r chi.Router) {
			r.Use(s.requireAuth(auth.PermUserManage))
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)

			r.Route("/{uuid}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Put("/", s.handleUpdateUser)
				r.Delete("/", s.handleDeleteUser)
			})
		})

		r.Route("/classrooms", func(r chi.Router) {
			r.With(s.requireAuth(auth.PermClassroomRead)).Get("/", s.handleListClassrooms)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth(auth.PermClassroomManage))
				r.Post("/", s.handleCreateClassroom)
				r.Delete("/{id}", s.handleDeleteClassroom)
			})
		})

		r.With(s.requireAuth(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
	})

	return r
}

// handleHealth reports liveness plus the state of each registered dependency.
// Any failing dependency turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	deps := make(map[string]string, len(s.checks))

	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check.HealthCheck(ctx)
		cancel()
		if err != nil {
			deps[name] = "unhealthy"
			status = "degraded"
			code = http.StatusServiceUnavailable
			s.requestLogger(r).Warn("health check failed", "dependency", name, "error", err)
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"dependencies":   deps,
		"ws_clients":     s.hub.ClientCount(),
	})
}
