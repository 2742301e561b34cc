package services

import (
	"stress-detect-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Publisher veröffentlicht Ergebnisse; *mqtt.Client erfüllt das Interface
type Publisher interface {
	PublishResult(subject, recordID string, res *models.DetectionResult) error
}

// NotifierService verteilt Ergebnisse an externe Empfänger. Fehler werden nur geloggt.
type NotifierService struct {
	publishers []Publisher
}

// NewNotifierService creates a new instance of NotifierService. nil publishers are skipped.
func NewNotifierService(publishers ...Publisher) *NotifierService {
	n := &NotifierService{}
	for _, p := range publishers {
		if p != nil {
			n.publishers = append(n.publishers, p)
		}
	}
	log.Infof("Initializing NotifierService with %d publisher(s)", len(n.publishers))
	return n
}

// Notify sendet das Ergebnis an alle Empfänger
func (n *NotifierService) Notify(subject, recordID string, res *models.DetectionResult) {
	if n == nil {
		return
	}
	for _, p := range n.publishers {
		if err := p.PublishResult(subject, recordID, res); err != nil {
			log.WithFields(log.Fields{"subject": subject, "record_id": recordID}).
				Warnf("NotifierService: failed to publish result: %v", err)
		}
	}
}
