package assess

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opsgrade/opsgrade/internal/bundle"
	"github.com/opsgrade/opsgrade/internal/definition"
	"github.com/opsgrade/opsgrade/internal/metrics"
	"github.com/opsgrade/opsgrade/internal/models"
	"github.com/opsgrade/opsgrade/internal/results"
	"github.com/opsgrade/opsgrade/internal/sandbox"
)

// DefinitionResolver resolves and validates a definition id.
type DefinitionResolver interface {
	Resolve(ctx context.Context, definitionID string) (models.AssessmentDefinition, error)
}

// RoutineProvider loads a bundle and resolves the required routine names.
type RoutineProvider interface {
	Load(ctx context.Context, bundleKey string, required []string) (bundle.RoutineSet, error)
}

// CredentialBroker vends short-lived credentials for a target environment.
type CredentialBroker interface {
	Vend(ctx context.Context, target models.EnvironmentTarget) (models.Credentials, error)
}

// RoutineRunner executes one routine under a deadline.
type RoutineRunner interface {
	Run(ctx context.Context, routine bundle.CheckRoutine, in sandbox.Input) models.CheckOutcome
}

// TargetConfig derives a subject's environment target from its id. Both
// patterns substitute the subject id for a single %s.
type TargetConfig struct {
	RoleARNPattern   string
	StackNamePattern string
}

func (c TargetConfig) Derive(subjectID string) models.EnvironmentTarget {
	return models.EnvironmentTarget{
		SubjectID: subjectID,
		RoleARN:   fmt.Sprintf(c.RoleARNPattern, subjectID),
		StackName: fmt.Sprintf(c.StackNamePattern, subjectID),
	}
}

// Orchestrator drives one full assessment: resolve, load, authorize,
// evaluate every criterion, score, persist. The first three phases abort the
// whole run on failure; evaluation failures are absorbed into zero-point
// outcomes and never escalate.
type Orchestrator struct {
	resolver  DefinitionResolver
	provider  RoutineProvider
	broker    CredentialBroker
	runner    RoutineRunner
	store     results.Store
	sink      metrics.Sink
	targets   TargetConfig
	evalLimit int
}

type OrchestratorConfig struct {
	Targets TargetConfig
	// EvalConcurrency bounds concurrent criterion evaluation within one run.
	// Defaults to 4. Outcome ordering is definition order regardless.
	EvalConcurrency int
}

func NewOrchestrator(
	resolver DefinitionResolver,
	provider RoutineProvider,
	broker CredentialBroker,
	runner RoutineRunner,
	store results.Store,
	sink metrics.Sink,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.EvalConcurrency <= 0 {
		cfg.EvalConcurrency = 4
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Orchestrator{
		resolver:  resolver,
		provider:  provider,
		broker:    broker,
		runner:    runner,
		store:     store,
		sink:      sink,
		targets:   cfg.Targets,
		evalLimit: cfg.EvalConcurrency,
	}
}

// Run executes one assessment for (subjectID, definitionID) and returns the
// scored result. Terminal failures are returned as *RunError; a result with
// failing criteria is not an error.
func (o *Orchestrator) Run(ctx context.Context, subjectID, definitionID string) (models.AssessmentResult, error) {
	started := time.Now()

	def, err := o.resolver.Resolve(ctx, definitionID)
	if err != nil {
		return models.AssessmentResult{}, classifyResolve(err)
	}

	set, err := o.provider.Load(ctx, def.BundleKey, def.RoutineNames())
	if err != nil {
		return models.AssessmentResult{}, classifyLoad(err)
	}

	target := o.targets.Derive(subjectID)
	creds, err := o.broker.Vend(ctx, target)
	if err != nil {
		return models.AssessmentResult{}, runError(CodeAccessDenied, err)
	}

	outcomes := o.evaluate(ctx, def, set, subjectID, target, creds)
	result := score(def, subjectID, outcomes)

	if err := o.store.Put(ctx, result); err != nil {
		// The score is already computed; losing the historical record is a
		// documented best-effort gap, not a run failure.
		log.Printf("warning: persist assessment result for %s/%s: %v", subjectID, definitionID, err)
	}

	o.emit("assessments_completed", 1, def.ID)
	o.emit("assessment_score", float64(result.Score), def.ID)
	o.emit("assessment_duration_ms", float64(time.Since(started).Milliseconds()), def.ID)

	return result, nil
}

// evaluate runs every criterion's routine, concurrently up to evalLimit.
// Outcomes land at their criterion's index, so the final slice is in
// definition order no matter which invocation finishes first.
func (o *Orchestrator) evaluate(
	ctx context.Context,
	def models.AssessmentDefinition,
	set bundle.RoutineSet,
	subjectID string,
	target models.EnvironmentTarget,
	creds models.Credentials,
) []models.CheckOutcome {
	outcomes := make([]models.CheckOutcome, len(def.Criteria))

	var g errgroup.Group
	g.SetLimit(o.evalLimit)
	for i, criterion := range def.Criteria {
		routine, ok := set[criterion.Routine]
		if !ok {
			outcomes[i] = models.CheckOutcome{
				CriterionID: criterion.ID,
				Implemented: false,
				Error:       fmt.Sprintf("routine %q not found in bundle", criterion.Routine),
			}
			continue
		}
		i, criterion := i, criterion
		g.Go(func() error {
			outcomes[i] = o.runner.Run(ctx, routine, sandbox.Input{
				Criterion:   criterion,
				SubjectID:   subjectID,
				Target:      target,
				Credentials: creds,
				Timeout:     def.SandboxTimeout,
			})
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func score(def models.AssessmentDefinition, subjectID string, outcomes []models.CheckOutcome) models.AssessmentResult {
	total := 0
	for _, out := range outcomes {
		if out.Implemented {
			total += out.Points
		}
	}
	maxScore := def.MaxScore()
	return models.AssessmentResult{
		ID:           uuid.New(),
		SubjectID:    subjectID,
		DefinitionID: def.ID,
		Outcomes:     outcomes,
		Score:        total,
		MaxScore:     maxScore,
		Passed:       total >= def.PassThreshold,
		Feedback:     buildFeedback(def, outcomes, total, maxScore),
		CreatedAt:    time.Now().UTC(),
	}
}

func (o *Orchestrator) emit(name string, value float64, definitionID string) {
	if err := o.sink.Emit(name, value, map[string]string{"definition": definitionID}); err != nil {
		log.Printf("warning: emit metric %s: %v", name, err)
	}
}

func classifyResolve(err error) error {
	switch {
	case errors.Is(err, definition.ErrNotFound):
		return runError(CodeDefinitionNotFound, err)
	case errors.Is(err, definition.ErrInactive):
		return runError(CodeDefinitionInactive, err)
	default:
		// Registry infrastructure failures must stay distinguishable from a
		// genuinely missing definition.
		return runError(CodeInternal, err)
	}
}

func classifyLoad(err error) error {
	if errors.Is(err, bundle.ErrInvalid) {
		return runError(CodeBundleInvalid, err)
	}
	return runError(CodeBundleUnavailable, err)
}
