package debug

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"stress-detect-go/internal/core/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(score float64) *models.DetectionResult {
	return &models.DetectionResult{
		Success:        true,
		FacesDetected:  1,
		Faces:          []models.FaceResult{{Region: models.Region{W: 40, H: 40}, Score: score, Category: models.CategoryLow}},
		AnnotatedImage: &models.EncodedImage{MIME: "image/jpeg", Data: []byte{0xff, 0xd8, byte(score)}},
	}
}

func TestServiceKeepsNewestEntries(t *testing.T) {
	s := NewService(3)
	for i := 0; i < 5; i++ {
		s.Add(fmt.Sprintf("id-%d", i), "s", result(float64(i)))
	}
	assert.Equal(t, 3, s.Len())
	assert.Nil(t, s.Get("id-0"))
	assert.Nil(t, s.Get("id-1"))

	latest := s.Latest(0)
	require.Len(t, latest, 3)
	assert.Equal(t, "id-4", latest[0].ID)
	assert.Equal(t, "id-2", latest[2].ID)

	require.Len(t, s.Latest(2), 2)
}

func TestServiceReplacesExistingID(t *testing.T) {
	s := NewService(0)
	s.Add("a", "s", result(1))
	s.Add("a", "s", result(2))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2.0, s.Get("a").Faces[0].Score)
}

func TestServiceIgnoresFailures(t *testing.T) {
	s := NewService(2)
	s.Add("x", "s", &models.DetectionResult{Success: false})
	s.Add("y", "s", nil)
	assert.Zero(t, s.Len())
}

func TestDebugRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewService(5)
	s.Add("abc", "subject-1", result(7))

	router := gin.New()
	s.RegisterRoutes(router.Group("/api"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/results?count=x", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count   int `json:"count"`
		Results []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "/api/debug/results/abc", body.Results[0].URL)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/results/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8, 7}, w.Body.Bytes())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/debug/results/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
