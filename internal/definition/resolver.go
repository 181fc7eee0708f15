package definition

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsgrade/opsgrade/internal/models"
)

// ErrInactive marks a definition that exists but has been deactivated by the
// management surface. Both resolver failures are terminal for the calling
// assessment; the resolver never retries.
var ErrInactive = errors.New("definition inactive")

// Resolver fetches and validates assessment definitions. The fetch is
// authoritative at execution time: a subject's active definition may have
// changed since dispatch enumeration, and the resolver does not try to
// reconcile the two.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) Resolve(ctx context.Context, definitionID string) (models.AssessmentDefinition, error) {
	def, err := r.store.Get(ctx, definitionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.AssessmentDefinition{}, fmt.Errorf("definition %q: %w", definitionID, ErrNotFound)
		}
		return models.AssessmentDefinition{}, fmt.Errorf("resolve definition %q: %w", definitionID, err)
	}
	if !def.Active {
		return models.AssessmentDefinition{}, fmt.Errorf("definition %q: %w", definitionID, ErrInactive)
	}
	return def, nil
}
