package processor

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"stress-detect-go/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// WorkerPool begrenzt die Anzahl gleichzeitiger Pipeline-Ausführungen
type WorkerPool struct {
	processor       *StressProcessor
	jobs            chan *ProcessJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	processed       atomic.Int64
	shutdown        chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
}

// ProcessJob repräsentiert einen Analysejob; entweder data oder img ist gesetzt
type ProcessJob struct {
	ctx      context.Context
	data     []byte
	img      image.Image
	subject  string
	resultCh chan *ProcessResult // Individueller Ergebniskanal pro Job
}

// ProcessResult enthält das Ergebnis eines Jobs
type ProcessResult struct {
	Result *models.DetectionResult
	Err    error
}

// PoolStats beschreibt den aktuellen Zustand des Pools
type PoolStats struct {
	Workers       int   `json:"workers"`
	ActiveJobs    int   `json:"active_jobs"`
	QueuedJobs    int   `json:"queued_jobs"`
	QueueCapacity int   `json:"queue_capacity"`
	Processed     int64 `json:"processed"`
}

// NewWorkerPool erstellt einen neuen Worker-Pool. workers <= 0 nutzt 75% der CPUs (mindestens 2),
// queueSize <= 0 das Doppelte der Worker.
func NewWorkerPool(processor *StressProcessor, workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = max(2, (runtime.NumCPU()*3)/4)
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	log.Infof("Initializing stress analysis worker pool with %d workers (queue %d)", workers, queueSize)

	pool := &WorkerPool{
		processor:   processor,
		jobs:        make(chan *ProcessJob, queueSize),
		workerCount: workers,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

// startWorkers startet die Worker-Goroutinen
func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case job := <-p.jobs:
					p.run(workerID, job)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) run(workerID int, job *ProcessJob) {
	// Anfrage wurde abgebrochen, bevor ein Worker frei war
	if err := job.ctx.Err(); err != nil {
		job.resultCh <- &ProcessResult{Err: err}
		return
	}

	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d analysing image for subject %q (active jobs: %d)", workerID, job.subject, jobCount)
	startTime := time.Now()

	var res *models.DetectionResult
	var err error
	if job.img != nil {
		res, err = p.processor.ProcessImage(job.ctx, job.img, job.subject)
	} else {
		res, err = p.processor.ProcessBytes(job.ctx, job.data, job.subject)
	}

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()
	p.processed.Add(1)

	// resultCh ist gepuffert, das Senden blockiert nie
	job.resultCh <- &ProcessResult{Result: res, Err: err}
	log.Debugf("Worker %d completed analysis in %v", workerID, time.Since(startTime))
}

// ProcessBytes reiht Bildbytes ein und wartet auf das Ergebnis
func (p *WorkerPool) ProcessBytes(ctx context.Context, data []byte, subject string) (*models.DetectionResult, error) {
	return p.submit(ctx, &ProcessJob{ctx: ctx, data: data, subject: subject})
}

// ProcessImage reiht einen Pixelpuffer ein und wartet auf das Ergebnis
func (p *WorkerPool) ProcessImage(ctx context.Context, img image.Image, subject string) (*models.DetectionResult, error) {
	return p.submit(ctx, &ProcessJob{ctx: ctx, img: img, subject: subject})
}

func (p *WorkerPool) submit(ctx context.Context, job *ProcessJob) (*models.DetectionResult, error) {
	job.resultCh = make(chan *ProcessResult, 1)

	select {
	case <-p.shutdown:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for worker: %w", ctx.Err())
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}

	// die Pipeline selbst kennt keinen Abbruch; nur das Warten wird abgebrochen
	select {
	case result := <-job.resultCh:
		return result.Result, result.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for result: %w", ctx.Err())
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}
}

// ActiveJobCount gibt die Anzahl der aktuell aktiven Jobs zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// Stats liefert eine Momentaufnahme des Pools
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:       p.workerCount,
		ActiveJobs:    p.ActiveJobCount(),
		QueuedJobs:    len(p.jobs),
		QueueCapacity: cap(p.jobs),
		Processed:     p.processed.Load(),
	}
}

// Shutdown fährt den Worker-Pool herunter und wartet auf laufende Jobs
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}
