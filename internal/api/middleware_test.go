package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/config"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/logging"
)

func TestRecoveryMiddleware(t *testing.T) {
	s := &Server{logger: logging.Discard()}
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestResponseStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	ww := middleware.NewWrapResponseWriter(httptest.NewRecorder(), 1)
	require.Equal(t, http.StatusOK, responseStatus(ww, req))

	ww.WriteHeader(http.StatusTeapot)
	require.Equal(t, http.StatusTeapot, responseStatus(ww, req))

	upgrade := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	ww = middleware.NewWrapResponseWriter(httptest.NewRecorder(), 1)
	require.Equal(t, http.StatusSwitchingProtocols, responseStatus(ww, upgrade))
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s := &Server{cfg: config.APIConfig{CORS: config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://sekolah.example"},
	}}}
	h := s.corsMiddleware(next)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://sekolah.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://sekolah.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Disabled CORS passes preflights straight through.
	s.cfg.CORS.Enabled = false
	rec = httptest.NewRecorder()
	s.corsMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
