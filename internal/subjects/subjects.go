package subjects

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Query is the port for enumerating subjects currently marked active for a
// definition, used by scheduled dispatch sweeps.
type Query interface {
	ListActive(ctx context.Context, definitionID string) ([]string, error)
}

// PGQuery reads active subjects from the externally managed registration
// table.
type PGQuery struct {
	db *sql.DB
}

func NewPGQuery(db *sql.DB) *PGQuery {
	return &PGQuery{db: db}
}

func (q *PGQuery) ListActive(ctx context.Context, definitionID string) ([]string, error) {
	const query = `
		SELECT subject_id
		FROM subject_registrations
		WHERE definition_id=$1 AND active
		ORDER BY subject_id
	`
	rows, err := q.db.QueryContext(ctx, query, definitionID)
	if err != nil {
		return nil, fmt.Errorf("list active subjects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subject id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active subjects: %w", err)
	}
	return ids, nil
}

// MemoryQuery provides an in-memory registration set useful for tests.
type MemoryQuery struct {
	mu     sync.RWMutex
	active map[string][]string
}

func NewMemoryQuery() *MemoryQuery {
	return &MemoryQuery{active: map[string][]string{}}
}

func (q *MemoryQuery) SetActive(definitionID string, subjectIDs []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active[definitionID] = append([]string(nil), subjectIDs...)
}

func (q *MemoryQuery) ListActive(ctx context.Context, definitionID string) ([]string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]string(nil), q.active[definitionID]...), nil
}
