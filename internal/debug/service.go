package debug

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"stress-detect-go/internal/core/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Entry ist ein gespeichertes Analyseergebnis mit annotiertem Bild
type Entry struct {
	ID        string              // Eindeutige ID
	Timestamp time.Time           // Zeitpunkt der Analyse
	Subject   string              // Subjekt-ID der Anfrage
	Faces     []models.FaceResult // Ergebnisse je Gesicht
	Synthetic bool                // mindestens ein Fallback-Wert
	ImageData []byte              // annotiertes JPEG
}

// Service speichert die letzten Ergebnisse im Speicher
type Service struct {
	entries   map[string]*Entry // Einträge nach ID
	order     []*Entry          // zeitliche Reihenfolge, ältester zuerst
	maxImages int
	mutex     sync.RWMutex
}

// NewService erstellt einen neuen Debug-Service
func NewService(maxImages int) *Service {
	if maxImages <= 0 {
		maxImages = 20
	}
	return &Service{
		entries:   make(map[string]*Entry),
		order:     make([]*Entry, 0, maxImages),
		maxImages: maxImages,
	}
}

// Add legt ein Ergebnis ab; bei bekannter ID wird der Eintrag ersetzt
func (s *Service) Add(id, subject string, result *models.DetectionResult) {
	if result == nil || !result.Success {
		return
	}
	entry := &Entry{
		ID:        id,
		Timestamp: time.Now(),
		Subject:   subject,
		Faces:     result.Faces,
		Synthetic: result.Synthetic,
	}
	if result.AnnotatedImage != nil {
		entry.ImageData = result.AnnotatedImage.Data
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.entries[id]; exists {
		s.entries[id] = entry
		for i, e := range s.order {
			if e.ID == id {
				s.order[i] = entry
				break
			}
		}
	} else {
		s.entries[id] = entry
		s.order = append(s.order, entry)
		if len(s.order) > s.maxImages {
			oldest := s.order[0]
			delete(s.entries, oldest.ID)
			s.order = s.order[1:]
		}
	}

	log.Debugf("Debug-Eintrag gespeichert: %s (%d Gesichter)", id, len(entry.Faces))
}

// Latest liefert die neuesten count Einträge, neuester zuerst
func (s *Service) Latest(count int) []*Entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if count <= 0 || count > len(s.order) {
		count = len(s.order)
	}
	result := make([]*Entry, 0, count)
	for i := len(s.order) - 1; i >= len(s.order)-count; i-- {
		result = append(result, s.order[i])
	}
	return result
}

// Get liefert einen Eintrag anhand seiner ID
func (s *Service) Get(id string) *Entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.entries[id]
}

// Len liefert die Anzahl gespeicherter Einträge
func (s *Service) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.order)
}

// RegisterRoutes registriert die Debug-Endpunkte
func (s *Service) RegisterRoutes(router gin.IRouter) {
	router.GET("/debug/results", s.handleLatest)
	router.GET("/debug/results/:id", s.handleImage)
	log.Info("Debug routes registered: debug/results, debug/results/:id")
}

func (s *Service) handleLatest(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil {
		count = 10
	}

	type entryMetadata struct {
		ID        string              `json:"id"`
		Timestamp time.Time           `json:"timestamp"`
		Subject   string              `json:"subject_id,omitempty"`
		Faces     []models.FaceResult `json:"faces"`
		Synthetic bool                `json:"synthetic"`
		URL       string              `json:"url"`
	}

	base := strings.TrimSuffix(c.Request.URL.Path, "/") + "/"
	entries := s.Latest(count)
	metadata := make([]entryMetadata, len(entries))
	for i, e := range entries {
		metadata[i] = entryMetadata{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Subject:   e.Subject,
			Faces:     e.Faces,
			Synthetic: e.Synthetic,
			URL:       base + e.ID,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(metadata),
		"results": metadata,
	})
}

func (s *Service) handleImage(c *gin.Context) {
	entry := s.Get(c.Param("id"))
	if entry == nil || len(entry.ImageData) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "debug image not found", "requested_id": c.Param("id")})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/jpeg", entry.ImageData)
}
