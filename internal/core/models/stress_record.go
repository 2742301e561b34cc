package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StressRecord ist ein gespeichertes Analyseergebnis für den Verlauf eines Subjekts
type StressRecord struct {
	ID               uint           `gorm:"primaryKey" json:"-"`
	RecordID         string         `gorm:"uniqueIndex;size:36" json:"id"`
	SubjectID        string         `gorm:"index" json:"subject_id"`
	Score            float64        `json:"stress_score"` // höchster Wert aller Gesichter
	Category         Category       `gorm:"size:16" json:"stress_level"`
	FacesDetected    int            `json:"faces_detected"`
	Synthetic        bool           `gorm:"index" json:"synthetic"`
	Faces            datatypes.JSON `json:"faces"`
	Source           string         `gorm:"size:32" json:"source"` // upload, webcam, mqtt, cli
	ProcessingTimeMs float64        `json:"processing_time_ms"`
	CreatedAt        time.Time      `gorm:"index" json:"timestamp"`
}

// BeforeCreate vergibt eine Record-ID, falls keine gesetzt ist
func (r *StressRecord) BeforeCreate(tx *gorm.DB) error {
	if r.RecordID == "" {
		r.RecordID = uuid.NewString()
	}
	return nil
}

// NewStressRecord erzeugt einen Verlaufseintrag aus einem erfolgreichen Ergebnis
func NewStressRecord(subject, source string, res *DetectionResult) (*StressRecord, error) {
	dominant, ok := res.Dominant()
	if !ok || !res.Success {
		return nil, fmt.Errorf("no successful result to record")
	}
	faces, err := json.Marshal(res.Faces)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal faces: %w", err)
	}
	return &StressRecord{
		SubjectID:        subject,
		Score:            dominant.Score,
		Category:         dominant.Category,
		FacesDetected:    res.FacesDetected,
		Synthetic:        res.Synthetic,
		Faces:            datatypes.JSON(faces),
		Source:           source,
		ProcessingTimeMs: res.ProcessingTimeMs,
	}, nil
}

// SubjectAverage ist der Durchschnittswert eines Subjekts über seinen Verlauf
type SubjectAverage struct {
	SubjectID    string  `json:"subject_id"`
	AverageScore float64 `json:"average_stress"`
	Records      int64   `json:"records"`
}

// Statistics enthält Kennzahlen des Verlaufs
type Statistics struct {
	TotalRecords     int64 `json:"total_records"`
	Subjects         int64 `json:"subjects"`
	HighRecords      int64 `json:"high_records"`
	SyntheticRecords int64 `json:"synthetic_records"`
}

// Round1 rundet auf eine Nachkommastelle
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
