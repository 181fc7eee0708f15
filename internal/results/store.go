package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsgrade/opsgrade/internal/models"
)

var ErrNotFound = errors.New("result not found")

// Store is the append-only port for assessment results. A new run always
// produces a new record; history is never updated in place.
type Store interface {
	Put(ctx context.Context, result models.AssessmentResult) error
	Latest(ctx context.Context, subjectID, definitionID string) (models.AssessmentResult, error)
}

type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Put(ctx context.Context, result models.AssessmentResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	outcomes, err := json.Marshal(result.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}
	feedback, err := json.Marshal(result.Feedback)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	query := `
		INSERT INTO assessment_results (id, subject_id, definition_id, outcomes, score, max_score, passed, feedback, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.ID, result.SubjectID, result.DefinitionID, outcomes,
		result.Score, result.MaxScore, result.Passed, feedback, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert assessment result: %w", err)
	}
	return nil
}

func (s *PGStore) Latest(ctx context.Context, subjectID, definitionID string) (models.AssessmentResult, error) {
	const query = `
		SELECT id, subject_id, definition_id, outcomes, score, max_score, passed, feedback, created_at
		FROM assessment_results
		WHERE subject_id=$1 AND definition_id=$2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var result models.AssessmentResult
	var outcomes, feedback []byte
	err := s.db.QueryRowContext(ctx, query, subjectID, definitionID).Scan(
		&result.ID, &result.SubjectID, &result.DefinitionID, &outcomes,
		&result.Score, &result.MaxScore, &result.Passed, &feedback, &result.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AssessmentResult{}, ErrNotFound
		}
		return models.AssessmentResult{}, fmt.Errorf("latest assessment result: %w", err)
	}
	if err := json.Unmarshal(outcomes, &result.Outcomes); err != nil {
		return models.AssessmentResult{}, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := json.Unmarshal(feedback, &result.Feedback); err != nil {
		return models.AssessmentResult{}, fmt.Errorf("decode feedback: %w", err)
	}
	return result, nil
}
