package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrade/opsgrade/internal/models"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []string
	fail map[string]error
}

func (r *recordingRunner) Run(ctx context.Context, subjectID, definitionID string) (models.AssessmentResult, error) {
	r.mu.Lock()
	r.runs = append(r.runs, subjectID+"|"+definitionID)
	err := r.fail[subjectID]
	r.mu.Unlock()
	if err != nil {
		return models.AssessmentResult{}, err
	}
	return models.AssessmentResult{SubjectID: subjectID, DefinitionID: definitionID}, nil
}

func (r *recordingRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func TestDispatchDeduplicates(t *testing.T) {
	n := newTestNormalizer(t, map[string][]string{
		"reliability-v1": {"A", "B", "A"},
	})
	runner := &recordingRunner{}
	d := NewDispatcher(n, runner, DispatcherConfig{})

	summary, err := d.Dispatch(context.Background(), TriggerEvent{
		Scheduled: &ScheduledEvent{DefinitionID: "reliability-v1"},
	})
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, 2, summary.Triggered)
	assert.Equal(t, 0, summary.Failed)
	assert.ElementsMatch(t, []string{"A|reliability-v1", "B|reliability-v1"}, runner.ran())
}

func TestDispatchRecordsCorrelationIDs(t *testing.T) {
	n := newTestNormalizer(t, nil)
	runner := &recordingRunner{}
	d := NewDispatcher(n, runner, DispatcherConfig{})

	summary, err := d.Dispatch(context.Background(), TriggerEvent{
		Manual: &ManualEvent{SubjectID: "team-1", DefinitionID: "reliability-v1"},
	})
	require.NoError(t, err)
	d.Wait()

	require.Len(t, summary.Records, 1)
	rec := summary.Records[0]
	assert.Equal(t, models.DispatchTriggered, rec.Status)
	assert.NotEmpty(t, rec.CorrelationID)
	assert.Equal(t, SourceManual, rec.Source)
}

func TestDispatchEnqueueFailureIsolation(t *testing.T) {
	n := newTestNormalizer(t, map[string][]string{
		"reliability-v1": {"A", "B", "C"},
	})
	enqueueErr := errors.New("queue full")
	var enqueued []string
	d := NewDispatcherWithEnqueuer(n, func(ctx context.Context, item WorkItem, correlationID string) error {
		if item.SubjectID == "B" {
			return enqueueErr
		}
		enqueued = append(enqueued, item.SubjectID)
		return nil
	})

	summary, err := d.Dispatch(context.Background(), TriggerEvent{
		Scheduled: &ScheduledEvent{DefinitionID: "reliability-v1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Triggered)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"A", "C"}, enqueued)

	var failed *models.DispatchRecord
	for i := range summary.Records {
		if summary.Records[i].Status == models.DispatchFailed {
			failed = &summary.Records[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "B", failed.SubjectID)
	assert.Contains(t, failed.Error, "queue full")
}

// A failing assessment for one subject must not stop a concurrently
// dispatched assessment for another subject.
func TestDispatchAssessmentFailureIsolation(t *testing.T) {
	n := newTestNormalizer(t, map[string][]string{
		"reliability-v1": {"denied", "healthy"},
	})
	runner := &recordingRunner{fail: map[string]error{
		"denied": errors.New("AccessDenied: role misconfigured"),
	}}
	d := NewDispatcher(n, runner, DispatcherConfig{})

	summary, err := d.Dispatch(context.Background(), TriggerEvent{
		Scheduled: &ScheduledEvent{DefinitionID: "reliability-v1"},
	})
	require.NoError(t, err)
	d.Wait()

	// Both are triggered; the later assessment failure is not a dispatch
	// failure.
	assert.Equal(t, 2, summary.Triggered)
	assert.Equal(t, 0, summary.Failed)
	assert.ElementsMatch(t, []string{"denied|reliability-v1", "healthy|reliability-v1"}, runner.ran())
}

func TestDispatchSkippedEvent(t *testing.T) {
	n := newTestNormalizer(t, nil)
	runner := &recordingRunner{}
	d := NewDispatcher(n, runner, DispatcherConfig{})

	summary, err := d.Dispatch(context.Background(), TriggerEvent{
		ResourceChange: &ResourceChangeEvent{ResourceName: "unrelated-bucket"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Triggered)
	assert.NotEmpty(t, summary.SkippedReason)
	assert.Empty(t, runner.ran())
}
