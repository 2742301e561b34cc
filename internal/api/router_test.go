package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"stress-detect-go/config"
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/core/processor"
	"stress-detect-go/internal/debug"
	"stress-detect-go/internal/inference"
	"stress-detect-go/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopAnalyzer struct{}

func (nopAnalyzer) ProcessBytes(context.Context, []byte, string) (*models.DetectionResult, error) {
	return &models.DetectionResult{Success: true, Faces: []models.FaceResult{}}, nil
}

func (nopAnalyzer) Stats() processor.PoolStats { return processor.PoolStats{} }

type nopEngine struct{}

func (nopEngine) Stats() inference.Stats { return inference.Stats{Mode: inference.ModeModel} }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.SessionSecret = "test-session"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Pipeline.MaxUploadMB = 1
	cfg.I18n.DefaultLanguage = "en"
	return cfg
}

func newRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r, err := NewRouter(cfg, Dependencies{
		Analyzer: nopAnalyzer{},
		Engine:   nopEngine{},
		Results:  services.NewResultService(nil, nil, nil),
		Debug:    debug.NewService(3),
	})
	require.NoError(t, err)
	return r
}

func TestRouterServesAPIAndDebug(t *testing.T) {
	r := newRouter(t, testConfig())

	for _, path := range []string{"/healthz", "/api/test", "/api/debug/results"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterCORS(t *testing.T) {
	r := newRouter(t, testConfig())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	// httptest setzt Host example.com; eine abweichende Origin ist cross-origin
	req.Header.Set("Origin", "http://other.test")
	r.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = 0.001
	cfg.Server.RateBurst = 1
	r := newRouter(t, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health-Check liegt außerhalb der Begrenzung
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterRequiresTokenWhenSecretSet(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "s3cret"
	r := newRouter(t, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
