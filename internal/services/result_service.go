package services

import (
	"stress-detect-go/internal/core/models"
	"stress-detect-go/internal/db/repository"
	"stress-detect-go/internal/debug"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Quellen eines Ergebnisses
const (
	SourceUpload = "upload"
	SourceWebcam = "webcam"
	SourceMQTT   = "mqtt"
	SourceCLI    = "cli"
)

// ResultService legt erfolgreiche Ergebnisse im Verlauf und im Debug-Speicher ab und
// benachrichtigt die Empfänger. Jede Stufe ist optional und lässt die Anfrage nie scheitern.
type ResultService struct {
	repo     repository.Repository
	debug    *debug.Service
	notifier *NotifierService
}

// NewResultService erstellt den Service; alle Abhängigkeiten dürfen nil sein
func NewResultService(repo repository.Repository, debugSvc *debug.Service, notifier *NotifierService) *ResultService {
	return &ResultService{repo: repo, debug: debugSvc, notifier: notifier}
}

// HasHistory meldet, ob ein Verlauf gespeichert wird
func (s *ResultService) HasHistory() bool {
	return s != nil && s.repo != nil
}

// Repository liefert den Verlaufsspeicher (kann nil sein)
func (s *ResultService) Repository() repository.Repository {
	if s == nil {
		return nil
	}
	return s.repo
}

// Record verarbeitet ein Ergebnis und liefert die vergebene Record-ID.
// Fehlgeschlagene Analysen werden nur an die Empfänger weitergereicht.
func (s *ResultService) Record(subject, source string, res *models.DetectionResult) string {
	if s == nil || res == nil {
		return ""
	}
	if !res.Success {
		s.notifier.Notify(subject, "", res)
		return ""
	}

	recordID := uuid.NewString()
	fields := log.Fields{"subject": subject, "record_id": recordID, "source": source}

	if s.repo != nil && subject != "" {
		rec, err := models.NewStressRecord(subject, source, res)
		if err == nil {
			rec.RecordID = recordID
			err = s.repo.SaveRecord(rec)
		}
		if err != nil {
			log.WithFields(fields).Errorf("Failed to store stress record: %v", err)
		}
	}

	if s.debug != nil {
		s.debug.Add(recordID, subject, res)
	}

	s.notifier.Notify(subject, recordID, res)
	return recordID
}
