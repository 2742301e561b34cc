package sse

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stress-detect-go/internal/core/models"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan []byte

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	// Registrierte Clients
	clients map[Client]bool

	// Eingehende Nachrichten von der Anwendung
	broadcast chan []byte

	register   chan Client
	unregister chan Client

	// wird geschlossen, sobald Run beendet ist
	done chan struct{}

	// Mutex zum Schutz des simultanen Zugriffs auf die Clients-Map
	mu sync.Mutex

	keepAlive time.Duration
}

// ResultEvent ist die kompakte Form eines Ergebnisses für Live-Ansichten (ohne Bilddaten)
type ResultEvent struct {
	RecordID      string          `json:"record_id,omitempty"`
	SubjectID     string          `json:"subject_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Success       bool            `json:"success"`
	FacesDetected int             `json:"faces_detected"`
	StressScore   float64         `json:"stress_score"`
	StressLevel   models.Category `json:"stress_level,omitempty"`
	Synthetic     bool            `json:"synthetic"`
	ErrorCode     string          `json:"error_code,omitempty"`
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
		keepAlive:  15 * time.Second,
	}
}

// Run startet die Verarbeitungsschleife des Hubs bis ctx beendet wird.
// Dies sollte in einer separaten Goroutine ausgeführt werden.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Debugf("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// langsame Clients werden entfernt
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register registriert einen Client; false, wenn der Hub bereits beendet ist
func (h *Hub) Register(client Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount liefert die Anzahl verbundener Clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(message []byte) {
	// Blockieren vermeiden, wenn der Broadcast-Kanal voll ist
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// PublishResult sendet ein Ergebnis an alle Live-Clients (services.Publisher)
func (h *Hub) PublishResult(subject, recordID string, res *models.DetectionResult) error {
	if res == nil {
		return nil
	}
	event := ResultEvent{
		RecordID:      recordID,
		SubjectID:     subject,
		Timestamp:     time.Now().UTC(),
		Success:       res.Success,
		FacesDetected: res.FacesDetected,
		Synthetic:     res.Synthetic,
		ErrorCode:     res.ErrorCode,
	}
	if dominant, ok := res.Dominant(); ok {
		event.StressScore = dominant.Score
		event.StressLevel = dominant.Category
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal result event: %w", err)
	}
	h.Broadcast(data)
	return nil
}

// Handler streamt Ergebnisse als text/event-stream bis der Client trennt
func (h *Hub) Handler(c *gin.Context) {
	client := make(Client, 16)
	if !h.Register(client) {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	defer h.Unregister(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client:
			if !ok {
				return
			}
			c.SSEvent("result", string(msg))
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": keepalive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
