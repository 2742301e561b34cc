package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stress-detect-go/config"
	"stress-detect-go/internal/api/middleware"
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/core/processor"
	"stress-detect-go/internal/db/repository"
	"stress-detect-go/internal/inference"
	"stress-detect-go/internal/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SubjectHeader trägt die Subjekt-ID, wenn keine Token-Prüfung aktiv ist
const SubjectHeader = "X-Subject-ID"

// ErrorCodeMissingImage wird gemeldet, wenn eine Anfrage keine Bilddaten enthält
const ErrorCodeMissingImage = "missing_image"

// Analyzer führt die Stress-Pipeline aus (in der Regel der Worker-Pool)
type Analyzer interface {
	ProcessBytes(ctx context.Context, data []byte, subject string) (*models.DetectionResult, error)
	Stats() processor.PoolStats
}

// EngineStatus liefert den Zustand der Inferenz
type EngineStatus interface {
	Stats() inference.Stats
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	cfg      *config.Config
	analyzer Analyzer
	engine   EngineStatus
	results  *services.ResultService
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(cfg *config.Config, analyzer Analyzer, engine EngineStatus, results *services.ResultService) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		analyzer: analyzer,
		engine:   engine,
		results:  results,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/test", h.Test)
	router.GET("/status", h.GetStatus)

	// Analyse-Endpunkte
	router.POST("/detect/image", h.DetectImage)
	router.POST("/detect/webcam", h.DetectWebcam)

	// Verlauf
	router.GET("/results/high-stress", h.HighStressSubjects)
	router.GET("/results/:subject", h.SubjectResults)
}

// detectResponse ergänzt das Pipeline-Ergebnis um Anfrage-Metadaten
type detectResponse struct {
	*models.DetectionResult
	SubjectID string `json:"subject_id,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

// Test bestätigt, dass die API erreichbar ist
func (h *APIHandler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": middleware.T(c, "api_working"),
	})
}

// DetectImage analysiert eine hochgeladene Datei (Feld "image") oder Base64-Daten (Feld "image_data")
func (h *APIHandler) DetectImage(c *gin.Context) {
	h.limitBody(c)

	var data []byte
	file, _, err := c.Request.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			h.readFailed(c, err)
			return
		}
	case isTooLarge(err):
		h.readFailed(c, err)
		return
	default:
		if s := c.PostForm("image_data"); s != "" {
			data = []byte(s)
		}
	}

	if len(data) == 0 {
		h.missingImage(c, "no_image")
		return
	}
	h.analyze(c, data, services.SourceUpload)
}

type webcamRequest struct {
	ImageData string `form:"image_data" json:"image_data"`
	SubjectID string `form:"subject_id" json:"subject_id"`
}

// DetectWebcam analysiert einen Webcam-Frame als Data-URI im Formular oder JSON-Body
func (h *APIHandler) DetectWebcam(c *gin.Context) {
	h.limitBody(c)

	var req webcamRequest
	if err := c.ShouldBind(&req); err != nil {
		if isTooLarge(err) {
			h.readFailed(c, err)
			return
		}
		log.Debugf("Failed to bind webcam request: %v", err)
	}
	if strings.TrimSpace(req.ImageData) == "" {
		h.missingImage(c, "no_webcam_image")
		return
	}
	if req.SubjectID != "" {
		c.Set("body_subject", req.SubjectID)
	}
	h.analyze(c, []byte(req.ImageData), services.SourceWebcam)
}

// analyze führt die Pipeline aus und schreibt die Antwort samt passendem Statuscode
func (h *APIHandler) analyze(c *gin.Context, data []byte, source string) {
	ctx := c.Request.Context()
	subject := h.subject(c)

	res, err := h.analyzer.ProcessBytes(ctx, data, subject)
	if res == nil {
		// Pool geschlossen oder Warten abgebrochen: kein Pipeline-Ergebnis vorhanden
		if err == nil {
			err = errors.New("analysis returned no result")
		}
		res = &models.DetectionResult{
			Faces:     []models.FaceResult{},
			Error:     err.Error(),
			ErrorCode: processor.ErrorCode(err),
		}
	}

	recordID := h.results.Record(subject, source, res)

	resp := detectResponse{
		DetectionResult: res,
		SubjectID:       subject,
		RecordID:        recordID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	switch {
	case !res.Success:
		resp.Message = middleware.T(c, res.ErrorCode)
	case res.Synthetic:
		resp.Message = middleware.T(c, "synthetic_notice")
	}

	c.JSON(StatusFor(res), resp)
}

// SubjectResults liefert die letzten Ergebnisse eines Subjekts
func (h *APIHandler) SubjectResults(c *gin.Context) {
	subject := c.Param("subject")
	if own, ok := middleware.AuthenticatedSubject(c); ok && own != subject {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": middleware.T(c, "forbidden")})
		return
	}

	repo := h.repo(c)
	if repo == nil {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repository.DefaultLimit)))
	if err != nil || limit <= 0 {
		limit = repository.DefaultLimit
	}

	records, err := repo.GetRecordsBySubject(subject, limit)
	if err != nil {
		log.WithField("subject", subject).Errorf("Failed to fetch stress records: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": fmt.Sprintf("Failed to fetch results: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"subject_id": subject,
		"results":    records,
		"count":      len(records),
	})
}

// HighStressSubjects listet Subjekte, deren Durchschnitt die Schwelle erreicht
func (h *APIHandler) HighStressSubjects(c *gin.Context) {
	repo := h.repo(c)
	if repo == nil {
		return
	}

	threshold := h.cfg.Alerts.HighAverage
	if q := c.Query("threshold"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil || v < models.MinScore || v > models.MaxScore {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "threshold must be a number between 0 and 100"})
			return
		}
		threshold = v
	}

	subjects, err := repo.GetHighStressSubjects(threshold)
	if err != nil {
		log.Errorf("Failed to query high stress subjects: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": fmt.Sprintf("Failed to fetch results: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"threshold": threshold,
		"subjects":  subjects,
	})
}

// StatusFor ordnet ein Ergebnis dem HTTP-Statuscode zu
func StatusFor(res *models.DetectionResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.ErrorCode {
	case processor.CodeDecode, ErrorCodeMissingImage:
		return http.StatusBadRequest
	case processor.CodeNoFace:
		return http.StatusUnprocessableEntity
	case processor.CodeCancelled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// subject bestimmt die Subjekt-ID: Token, dann Formular/JSON, dann Header
func (h *APIHandler) subject(c *gin.Context) string {
	if s, ok := middleware.AuthenticatedSubject(c); ok {
		return s
	}
	if s := c.GetString("body_subject"); s != "" {
		return s
	}
	if s := c.PostForm("subject_id"); s != "" {
		return s
	}
	return c.GetHeader(SubjectHeader)
}

func (h *APIHandler) repo(c *gin.Context) repository.Repository {
	repo := h.results.Repository()
	if repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": middleware.T(c, "history_disabled")})
	}
	return repo
}

func (h *APIHandler) limitBody(c *gin.Context) {
	maxBytes := int64(h.cfg.Pipeline.MaxUploadMB) << 20
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}
}

func (h *APIHandler) missingImage(c *gin.Context, messageID string) {
	c.JSON(http.StatusBadRequest, detectResponse{
		DetectionResult: &models.DetectionResult{
			Faces:     []models.FaceResult{},
			Error:     middleware.T(c, messageID),
			ErrorCode: ErrorCodeMissingImage,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *APIHandler) readFailed(c *gin.Context, err error) {
	if isTooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": middleware.T(c, "image_too_large")})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Failed to read upload: %v", err)})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
