package dispatch

import (
	"context"
	"log"
	"time"
)

// Scheduler emits a scheduled sweep for each configured definition at a
// fixed interval. One definition's sweep failing never stops the others or
// the ticker.
type Scheduler struct {
	dispatcher    *Dispatcher
	definitionIDs []string
	interval      time.Duration
}

func NewScheduler(dispatcher *Dispatcher, definitionIDs []string, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		dispatcher:    dispatcher,
		definitionIDs: definitionIDs,
		interval:      interval,
	}
}

// Run sweeps immediately, then on every tick, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	for _, id := range s.definitionIDs {
		summary, err := s.dispatcher.Dispatch(ctx, TriggerEvent{
			Scheduled: &ScheduledEvent{DefinitionID: id},
		})
		if err != nil {
			log.Printf("scheduled sweep for %s: %v", id, err)
			continue
		}
		log.Printf("scheduled sweep for %s: triggered=%d failed=%d skipped=%q",
			id, summary.Triggered, summary.Failed, summary.SkippedReason)
	}
}
