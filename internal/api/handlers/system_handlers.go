package handlers

import (
	"net/http"
	"time"

	"stress-detect-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GetStatus liefert den Systemstatus: Inferenzmodus, Pool, Ressourcen und Verlauf
func (h *APIHandler) GetStatus(c *gin.Context) {
	status := gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"engine":    h.engine.Stats(),
		"pool":      h.analyzer.Stats(),
		"system":    utils.GetSystemStats(),
		"thresholds": gin.H{
			"low":  h.cfg.Classifier.Low,
			"high": h.cfg.Classifier.High,
		},
	}

	history := gin.H{"enabled": h.results.HasHistory()}
	if repo := h.results.Repository(); repo != nil {
		stats, err := repo.GetStatistics(h.cfg.Classifier.High)
		if err != nil {
			log.Errorf("Failed to compute history statistics: %v", err)
			history["error"] = err.Error()
		} else {
			history["statistics"] = stats
		}
	}
	status["history"] = history

	c.JSON(http.StatusOK, status)
}
