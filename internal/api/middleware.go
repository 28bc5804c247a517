package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nerrad567/schoolhub-core/internal/auth"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/logging"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyLogger    contextKey = "logger"

	// ctxKeyUser holds the *auth.User resolved by requireAuth.
	ctxKeyUser contextKey = "user"
)

const (
	requestIDHeader     = "X-Request-ID"
	defaultMaxBodyBytes = 1 << 20
)

// securityHeaders are set on every response.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

// requestIDMiddleware tags the request with the caller's X-Request-ID or a
// fresh uuid, echoes it back and stores a request-scoped logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		ctx = context.WithValue(ctx, ctxKeyLogger, s.logger.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger returns the logger stored by requestIDMiddleware.
func (s *Server) requestLogger(r *http.Request) *logging.Logger {
	if l, ok := r.Context().Value(ctxKeyLogger).(*logging.Logger); ok {
		return l
	}
	return s.logger
}

// observeMiddleware logs each request and records it in Prometheus under
// its chi route pattern.
func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := responseStatus(ww, r)
		elapsed := time.Since(start)
		route := routePattern(r)

		s.metrics.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.httpDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		s.requestLogger(r).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// responseStatus reports what the client saw. A hijacked WebSocket
// upgrade never calls WriteHeader on the wrapper.
func responseStatus(ww middleware.WrapResponseWriter, r *http.Request) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}

// recoveryMiddleware turns a handler panic into a logged 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
				panic(rec)
			}
			s.requestLogger(r).Error("panic recovered in HTTP handler",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
			)
			writeInternalError(w, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflights and sets CORS headers for allowed
// origins when api.cors.enabled is set.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	if !s.cfg.CORS.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")

		if origin := r.Header.Get("Origin"); origin != "" && s.isAllowedOrigin(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader)
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// An empty allow list admits any origin.
func (s *Server) isAllowedOrigin(origin string) bool {
	allowed := s.cfg.CORS.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func (s *Server) maxBodyBytes() int64 {
	if s.cfg.MaxBodyBytes > 0 {
		return s.cfg.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

// requireAuth admits only bearer tokens whose user holds perm and stores
// the resolved user in the request context.
func (s *Server) requireAuth(perm auth.Permission) func(http.Handler) http.Handler {
	roles := auth.RolesWith(perm)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := auth.BearerToken(r.Header.Get("Authorization"))

			user, err := s.guard.Authorize(r.Context(), token, roles...)
			if err != nil {
				if auth.IsGuardRejection(err) {
					s.recordGuardRejection(r, err)
				}
				s.writeAuthError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUser, user)))
		})
	}
}

// recordGuardRejection counts a refused call in Prometheus and InfluxDB.
func (s *Server) recordGuardRejection(r *http.Request, err error) {
	reason := rejectionReason(err)
	route := routePattern(r)

	s.metrics.guardRejections.WithLabelValues(reason).Inc()
	if s.influx != nil {
		s.influx.WriteGuardRejection(reason, route)
	}
	s.requestLogger(r).Debug("guard rejected request", "reason", reason, "route", route)
}

// rejectionReason classifies a guard error for metric labels.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, auth.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, auth.ErrUserInactive):
		return "inactive"
	case errors.Is(err, auth.ErrInsufficientRole):
		return "insufficient_role"
	default:
		return "other"
	}
}

func userFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(ctxKeyUser).(*auth.User)
	return user, ok && user != nil
}

// clientIP returns the remote host without the port. Forwarded headers
// are ignored so rate limiting cannot be dodged by spoofing them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
