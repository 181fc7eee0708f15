package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgrade/opsgrade/internal/subjects"
)

func newTestNormalizer(t *testing.T, active map[string][]string) *Normalizer {
	t.Helper()
	registry := subjects.NewMemoryQuery()
	for def, subs := range active {
		registry.SetActive(def, subs)
	}
	return NewNormalizer(registry, "subject-stack-", "reliability-v1")
}

func TestNormalizeManual(t *testing.T) {
	n := newTestNormalizer(t, nil)

	items, skip, err := n.Normalize(context.Background(), TriggerEvent{
		Manual: &ManualEvent{SubjectID: "team-42", DefinitionID: "reliability-v1"},
	})
	require.NoError(t, err)
	assert.Empty(t, skip)
	require.Len(t, items, 1)
	assert.Equal(t, "team-42", items[0].SubjectID)
	assert.Equal(t, "reliability-v1", items[0].DefinitionID)
	assert.Equal(t, SourceManual, items[0].Source)
}

func TestNormalizeManualIncomplete(t *testing.T) {
	n := newTestNormalizer(t, nil)

	items, skip, err := n.Normalize(context.Background(), TriggerEvent{
		Manual: &ManualEvent{SubjectID: "team-42"},
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotEmpty(t, skip)
}

func TestNormalizeResourceChange(t *testing.T) {
	tests := []struct {
		name        string
		resource    string
		wantSubject string
		wantSkip    bool
	}{
		{name: "plain stack name", resource: "subject-stack-team-7", wantSubject: "team-7"},
		{name: "nested resource", resource: "subject-stack-team-7/queue/dlq", wantSubject: "team-7"},
		{name: "unrelated resource", resource: "billing-stack-prod", wantSkip: true},
		{name: "prefix only", resource: "subject-stack-", wantSkip: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := newTestNormalizer(t, nil)
			items, skip, err := n.Normalize(context.Background(), TriggerEvent{
				ResourceChange: &ResourceChangeEvent{ResourceName: tc.resource},
			})
			require.NoError(t, err)
			if tc.wantSkip {
				assert.Empty(t, items)
				assert.NotEmpty(t, skip)
				return
			}
			require.Len(t, items, 1)
			assert.Equal(t, tc.wantSubject, items[0].SubjectID)
			assert.Equal(t, "reliability-v1", items[0].DefinitionID)
			assert.Equal(t, SourceResourceChange, items[0].Source)
		})
	}
}

func TestNormalizeScheduled(t *testing.T) {
	n := newTestNormalizer(t, map[string][]string{
		"reliability-v1": {"team-1", "team-2"},
	})

	items, skip, err := n.Normalize(context.Background(), TriggerEvent{
		Scheduled: &ScheduledEvent{DefinitionID: "reliability-v1"},
	})
	require.NoError(t, err)
	assert.Empty(t, skip)
	require.Len(t, items, 2)
	assert.Equal(t, "team-1", items[0].SubjectID)
	assert.Equal(t, "team-2", items[1].SubjectID)
}

func TestNormalizeScheduledNoSubjects(t *testing.T) {
	n := newTestNormalizer(t, nil)

	items, skip, err := n.Normalize(context.Background(), TriggerEvent{
		Scheduled: &ScheduledEvent{DefinitionID: "reliability-v1"},
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, "no active subjects", skip)
}

func TestNormalizeUnrecognizedShape(t *testing.T) {
	n := newTestNormalizer(t, nil)

	items, skip, err := n.Normalize(context.Background(), TriggerEvent{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, "unrecognized event shape", skip)
}

func TestDedupe(t *testing.T) {
	items := []WorkItem{
		{SubjectID: "A", DefinitionID: "d1"},
		{SubjectID: "B", DefinitionID: "d1"},
		{SubjectID: "A", DefinitionID: "d1"},
		{SubjectID: "A", DefinitionID: "d2"},
	}
	got := Dedupe(items)
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].SubjectID)
	assert.Equal(t, "B", got[1].SubjectID)
	assert.Equal(t, "d2", got[2].DefinitionID)
}
