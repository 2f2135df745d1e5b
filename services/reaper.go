package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"rag-document-platform/internal/logger"
	"rag-document-platform/models"
)

const (
	reaperTag         = "stale-processing-reaper"
	staleErrorMessage = "processing timed out"
	defaultReapEvery  = 5 * time.Minute
	defaultStaleAfter = 30 * time.Minute
)

// Reaper fails documents whose ingestion run died without reaching a
// terminal status.
type Reaper struct {
	documents  DocumentStore
	progress   ProgressReader
	staleAfter time.Duration
	interval   time.Duration
	scheduler  *gocron.Scheduler
	now        func() time.Time
}

func NewReaper(documents DocumentStore, progress ProgressReader, interval, staleAfter time.Duration) *Reaper {
	if interval <= 0 {
		interval = defaultReapEvery
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.SingletonModeAll()

	return &Reaper{
		documents:  documents,
		progress:   progress,
		staleAfter: staleAfter,
		interval:   interval,
		scheduler:  s,
		now:        time.Now,
	}
}

// Start schedules the sweep and returns immediately.
func (r *Reaper) Start() error {
	_, err := r.scheduler.Every(r.interval).Tag(reaperTag).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.Sweep(ctx); err != nil {
			logger.Error("Stale processing sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	r.scheduler.StartAsync()
	logger.Info("Stale processing reaper started", "interval", r.interval.String(), "stale_after", r.staleAfter.String())
	return nil
}

func (r *Reaper) Stop() {
	r.scheduler.Stop()
}

// Sweep marks every document stuck in PROCESSING for longer than the stale
// threshold as FAILED and returns how many it changed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.documents.FindStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale documents: %w", err)
	}

	reaped := 0
	for _, doc := range stale {
		_, err := r.documents.Transition(ctx, doc.ID, Transition{
			To:           models.StatusFailed,
			ErrorMessage: staleErrorMessage,
			At:           r.now(),
		})
		if err != nil {
			// the run finished between the scan and the update
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			logger.Error("Failed to fail stale document", "document_id", doc.ID, "error", err)
			continue
		}
		reaped++
		logger.Warn("Stale processing run marked as failed", "document_id", doc.ID, "started_at", doc.ProcessingStartedAt)

		if r.progress != nil {
			if err := r.progress.Clear(ctx, doc.ID); err != nil {
				logger.Warn("Failed to clear progress", "document_id", doc.ID, "error", err)
			}
		}
	}
	return reaped, nil
}
