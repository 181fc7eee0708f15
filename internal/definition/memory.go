package definition

import (
	"context"
	"sync"

	"github.com/opsgrade/opsgrade/internal/models"
)

// MemoryStore provides an in-memory definition registry useful for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]models.AssessmentDefinition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: map[string]models.AssessmentDefinition{}}
}

func (m *MemoryStore) Put(def models.AssessmentDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID] = def
}

func (m *MemoryStore) Get(ctx context.Context, definitionID string) (models.AssessmentDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defs[definitionID]
	if !ok {
		return models.AssessmentDefinition{}, ErrNotFound
	}
	out := def
	out.Criteria = append([]models.Criterion(nil), def.Criteria...)
	return out, nil
}
