package repository

import (
	"errors"
	"fmt"
	"time"

	"stress-detect-go/internal/core/models"

	"gorm.io/gorm"
)

// DefaultLimit ist die Standardanzahl zurückgegebener Verlaufseinträge
const DefaultLimit = 10

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	SaveRecord(rec *models.StressRecord) error
	GetRecordByID(recordID string) (*models.StressRecord, error)
	GetRecordsBySubject(subjectID string, limit int) ([]models.StressRecord, error)
	GetHighStressSubjects(threshold float64) ([]models.SubjectAverage, error)
	DeleteRecordsBefore(cutoff time.Time) (int64, error)
	GetStatistics(highThreshold float64) (models.Statistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveRecord speichert einen Verlaufseintrag
func (r *SQLiteRepository) SaveRecord(rec *models.StressRecord) error {
	if rec.SubjectID == "" {
		return errors.New("subject id is required")
	}
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save stress record: %w", err)
	}
	return nil
}

// GetRecordByID holt einen Eintrag anhand seiner Record-ID; nil, wenn nicht vorhanden
func (r *SQLiteRepository) GetRecordByID(recordID string) (*models.StressRecord, error) {
	var rec models.StressRecord
	result := r.db.Where("record_id = ?", recordID).First(&rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rec, nil
}

// GetRecordsBySubject holt die neuesten Einträge eines Subjekts
func (r *SQLiteRepository) GetRecordsBySubject(subjectID string, limit int) ([]models.StressRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var records []models.StressRecord
	result := r.db.Where("subject_id = ?", subjectID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// GetHighStressSubjects liefert Subjekte, deren Durchschnitt mindestens threshold beträgt
func (r *SQLiteRepository) GetHighStressSubjects(threshold float64) ([]models.SubjectAverage, error) {
	var rows []models.SubjectAverage
	result := r.db.Model(&models.StressRecord{}).
		Select("subject_id, AVG(score) AS average_score, COUNT(*) AS records").
		Group("subject_id").
		Having("AVG(score) >= ?", threshold).
		Order("average_score DESC").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	for i := range rows {
		rows[i].AverageScore = models.Round1(rows[i].AverageScore)
	}
	return rows, nil
}

// DeleteRecordsBefore entfernt Einträge, die vor cutoff angelegt wurden
func (r *SQLiteRepository) DeleteRecordsBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.StressRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetStatistics holt Kennzahlen des Verlaufs
func (r *SQLiteRepository) GetStatistics(highThreshold float64) (models.Statistics, error) {
	var stats models.Statistics
	base := r.db.Model(&models.StressRecord{})

	if err := base.Count(&stats.TotalRecords).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.StressRecord{}).Distinct("subject_id").Count(&stats.Subjects).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.StressRecord{}).Where("score >= ?", highThreshold).Count(&stats.HighRecords).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.StressRecord{}).Where("synthetic = ?", true).Count(&stats.SyntheticRecords).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
