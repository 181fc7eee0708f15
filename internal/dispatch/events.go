package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsgrade/opsgrade/internal/subjects"
)

// Trigger sources.
const (
	SourceScheduled      = "scheduled"
	SourceResourceChange = "resource-change"
	SourceManual         = "manual"
)

// TriggerEvent is the tagged union of the three shapes that can start an
// assessment. Exactly one field set identifies the shape; an event with none
// set is unrecognized and yields zero work items.
type TriggerEvent struct {
	Scheduled      *ScheduledEvent      `json:"scheduled,omitempty"`
	ResourceChange *ResourceChangeEvent `json:"resourceChange,omitempty"`
	Manual         *ManualEvent         `json:"manual,omitempty"`
}

// ScheduledEvent asks for a sweep of every subject currently registered
// active for the definition.
type ScheduledEvent struct {
	DefinitionID string `json:"definitionId"`
}

// ResourceChangeEvent carries the resource name from a change notification.
// The subject id is parsed out of the name; names outside the expected
// convention identify unrelated resources and are discarded silently.
type ResourceChangeEvent struct {
	ResourceName string `json:"resourceName"`
	DefinitionID string `json:"definitionId,omitempty"`
}

// ManualEvent is a single explicit (subject, definition) pair.
type ManualEvent struct {
	SubjectID    string `json:"subjectId"`
	DefinitionID string `json:"definitionId"`
}

// WorkItem is one normalized unit of dispatch.
type WorkItem struct {
	SubjectID    string
	DefinitionID string
	Source       string
}

// Normalizer turns trigger events into work items. Normalization of resource
// names and manual pairs is pure; only the scheduled shape touches I/O (the
// active-subjects query).
type Normalizer struct {
	registry subjects.Query
	// resourcePrefix is the naming convention for subject stacks, e.g.
	// "subject-stack-". Resource names outside it are not ours.
	resourcePrefix string
	// defaultDefinitionID backs resource-change events that do not name a
	// definition.
	defaultDefinitionID string
}

func NewNormalizer(registry subjects.Query, resourcePrefix, defaultDefinitionID string) *Normalizer {
	return &Normalizer{
		registry:            registry,
		resourcePrefix:      resourcePrefix,
		defaultDefinitionID: defaultDefinitionID,
	}
}

// Normalize expands one trigger event into work items. A nil slice with a
// non-empty skip reason means the event produced no work, which is not an
// error.
func (n *Normalizer) Normalize(ctx context.Context, ev TriggerEvent) (items []WorkItem, skipReason string, err error) {
	switch {
	case ev.Manual != nil:
		if ev.Manual.SubjectID == "" || ev.Manual.DefinitionID == "" {
			return nil, "manual event missing subjectId or definitionId", nil
		}
		return []WorkItem{{
			SubjectID:    ev.Manual.SubjectID,
			DefinitionID: ev.Manual.DefinitionID,
			Source:       SourceManual,
		}}, "", nil

	case ev.ResourceChange != nil:
		subjectID, ok := n.parseSubject(ev.ResourceChange.ResourceName)
		if !ok {
			return nil, fmt.Sprintf("resource %q does not match prefix %q", ev.ResourceChange.ResourceName, n.resourcePrefix), nil
		}
		definitionID := ev.ResourceChange.DefinitionID
		if definitionID == "" {
			definitionID = n.defaultDefinitionID
		}
		if definitionID == "" {
			return nil, "resource-change event has no definition", nil
		}
		return []WorkItem{{
			SubjectID:    subjectID,
			DefinitionID: definitionID,
			Source:       SourceResourceChange,
		}}, "", nil

	case ev.Scheduled != nil:
		ids, err := n.registry.ListActive(ctx, ev.Scheduled.DefinitionID)
		if err != nil {
			return nil, "", fmt.Errorf("list active subjects: %w", err)
		}
		if len(ids) == 0 {
			return nil, "no active subjects", nil
		}
		items := make([]WorkItem, 0, len(ids))
		for _, id := range ids {
			items = append(items, WorkItem{
				SubjectID:    id,
				DefinitionID: ev.Scheduled.DefinitionID,
				Source:       SourceScheduled,
			})
		}
		return items, "", nil

	default:
		return nil, "unrecognized event shape", nil
	}
}

// parseSubject extracts the subject id from a resource name under the fixed
// naming convention <prefix><subjectId> or <prefix><subjectId>/<suffix>.
func (n *Normalizer) parseSubject(resourceName string) (string, bool) {
	if n.resourcePrefix == "" || !strings.HasPrefix(resourceName, n.resourcePrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(resourceName, n.resourcePrefix)
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// Dedupe keeps the first occurrence of each (subject, definition) pair,
// preserving arrival order.
func Dedupe(items []WorkItem) []WorkItem {
	seen := make(map[string]bool, len(items))
	out := make([]WorkItem, 0, len(items))
	for _, it := range items {
		k := it.SubjectID + "|" + it.DefinitionID
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, it)
	}
	return out
}
