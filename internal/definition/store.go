package definition

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsgrade/opsgrade/internal/models"
)

var ErrNotFound = errors.New("definition not found")

// Store is the read-only port onto the externally managed definition
// registry. The engine never writes definitions.
type Store interface {
	Get(ctx context.Context, definitionID string) (models.AssessmentDefinition, error)
}

// PGStore reads definitions from Postgres. Criteria are stored as a JSONB
// array in declaration order; ordering is load-bearing for feedback output.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, definitionID string) (models.AssessmentDefinition, error) {
	const query = `
		SELECT id, name, criteria, pass_threshold, bundle_key, active, sandbox_timeout_seconds
		FROM assessment_definitions
		WHERE id=$1
	`
	var def models.AssessmentDefinition
	var criteria []byte
	var timeoutSeconds int
	err := s.db.QueryRowContext(ctx, query, definitionID).Scan(
		&def.ID, &def.Name, &criteria, &def.PassThreshold, &def.BundleKey, &def.Active, &timeoutSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AssessmentDefinition{}, ErrNotFound
		}
		return models.AssessmentDefinition{}, fmt.Errorf("get definition: %w", err)
	}
	if err := json.Unmarshal(criteria, &def.Criteria); err != nil {
		return models.AssessmentDefinition{}, fmt.Errorf("decode criteria for %s: %w", definitionID, err)
	}
	if timeoutSeconds > 0 {
		def.SandboxTimeout = time.Duration(timeoutSeconds) * time.Second
	}
	return def, nil
}
