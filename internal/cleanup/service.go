package cleanup

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Pruner löscht Verlaufseinträge vor einem Stichtag; repository.SQLiteRepository erfüllt das Interface
type Pruner interface {
	DeleteRecordsBefore(cutoff time.Time) (int64, error)
}

// Service handles the automatic cleanup of old stress records.
type Service struct {
	store         Pruner
	retentionDays int
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	now           func() time.Time
}

// NewService creates a new cleanup service. It returns nil when cleanup is disabled.
func NewService(store Pruner, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if store == nil {
		log.Error("Cannot initialize cleanup service: record store is nil")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		store:         store,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the cleanup cycle.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		s.RunCleanupCycle()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background cleanup routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunCleanupCycle deletes records older than the retention period and returns how many were removed.
func (s *Service) RunCleanupCycle() int64 {
	if s == nil {
		return 0
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	log.Debugf("Cleanup: deleting records older than %s", cutoff.Format(time.RFC3339))

	deleted, err := s.store.DeleteRecordsBefore(cutoff)
	if err != nil {
		log.Errorf("Cleanup: failed to delete old records: %v", err)
		return 0
	}
	if deleted > 0 {
		log.Infof("Cleanup cycle finished. Deleted %d record(s).", deleted)
	}
	return deleted
}
