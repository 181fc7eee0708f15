package results

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opsgrade/opsgrade/internal/models"
)

// MemoryStore provides an in-memory result history useful for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]models.AssessmentResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{history: map[string][]models.AssessmentResult{}}
}

func key(subjectID, definitionID string) string {
	return subjectID + "|" + definitionID
}

func (m *MemoryStore) Put(ctx context.Context, result models.AssessmentResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(result.SubjectID, result.DefinitionID)
	m.history[k] = append(m.history[k], result)
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, subjectID, definitionID string) (models.AssessmentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := m.history[key(subjectID, definitionID)]
	if len(runs) == 0 {
		return models.AssessmentResult{}, ErrNotFound
	}
	return runs[len(runs)-1], nil
}

// All returns every stored result for a subject/definition pair, oldest
// first.
func (m *MemoryStore) All(subjectID, definitionID string) []models.AssessmentResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AssessmentResult(nil), m.history[key(subjectID, definitionID)]...)
}
