package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/opsgrade/opsgrade/internal/models"
)

// Runner starts one assessment. The dispatcher fires and forgets: an
// assessment failing later is that run's business, not a dispatch failure.
type Runner interface {
	Run(ctx context.Context, subjectID, definitionID string) (models.AssessmentResult, error)
}

// Enqueuer hands one work item off for asynchronous execution. Returning an
// error means the hand-off itself failed; the item is recorded as failed and
// its siblings proceed.
type Enqueuer func(ctx context.Context, item WorkItem, correlationID string) error

// Dispatcher normalizes trigger events, deduplicates the resulting work
// items, and fans each unique item out as an independent assessment. Items
// share no mutable state, so one subject's failure can never block another.
type Dispatcher struct {
	normalizer *Normalizer
	enqueue    Enqueuer

	maxInFlight int64

	// wg tracks in-flight assessments for clean shutdown in tests and main.
	wg sync.WaitGroup
}

type DispatcherConfig struct {
	// MaxInFlight bounds concurrently executing assessments across one
	// dispatcher. Defaults to 16.
	MaxInFlight int64
}

// NewDispatcher builds a dispatcher that runs assessments on runner in the
// background. A nil runner panics.
func NewDispatcher(normalizer *Normalizer, runner Runner, cfg DispatcherConfig) *Dispatcher {
	if runner == nil {
		panic("dispatch: nil runner")
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}
	d := &Dispatcher{
		normalizer:  normalizer,
		maxInFlight: cfg.MaxInFlight,
	}
	sem := semaphore.NewWeighted(cfg.MaxInFlight)
	d.enqueue = func(ctx context.Context, item WorkItem, correlationID string) error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire dispatch slot: %w", err)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer sem.Release(1)
			// Detached from the dispatch cycle's context on purpose: the
			// assessment outlives the cycle that triggered it.
			runCtx := context.WithoutCancel(ctx)
			if _, err := runner.Run(runCtx, item.SubjectID, item.DefinitionID); err != nil {
				log.Printf("assessment %s failed for %s/%s (source %s): %v",
					correlationID, item.SubjectID, item.DefinitionID, item.Source, err)
			}
		}()
		return nil
	}
	return d
}

// NewDispatcherWithEnqueuer builds a dispatcher over a custom hand-off, used
// by tests and by deployments that enqueue onto an external queue.
func NewDispatcherWithEnqueuer(normalizer *Normalizer, enqueue Enqueuer) *Dispatcher {
	return &Dispatcher{normalizer: normalizer, enqueue: enqueue}
}

// Dispatch processes one trigger event: normalize, dedupe, fan out. It does
// not wait for the triggered assessments to complete. The summary's records
// are unordered with respect to execution.
func (d *Dispatcher) Dispatch(ctx context.Context, ev TriggerEvent) (models.DispatchSummary, error) {
	items, skipReason, err := d.normalizer.Normalize(ctx, ev)
	if err != nil {
		return models.DispatchSummary{}, fmt.Errorf("normalize trigger event: %w", err)
	}
	if len(items) == 0 {
		return models.DispatchSummary{SkippedReason: skipReason}, nil
	}

	items = Dedupe(items)
	summary := models.DispatchSummary{Records: make([]models.DispatchRecord, 0, len(items))}
	for _, item := range items {
		rec := models.DispatchRecord{
			SubjectID:     item.SubjectID,
			DefinitionID:  item.DefinitionID,
			Source:        item.Source,
			CorrelationID: uuid.New().String(),
		}
		if err := d.enqueue(ctx, item, rec.CorrelationID); err != nil {
			rec.Status = models.DispatchFailed
			rec.Error = err.Error()
			summary.Failed++
		} else {
			rec.Status = models.DispatchTriggered
			summary.Triggered++
		}
		summary.Records = append(summary.Records, rec)
	}
	return summary, nil
}

// Wait blocks until every in-flight assessment started by this dispatcher
// has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
