package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/opsgrade/opsgrade/internal/bundle"
	"github.com/opsgrade/opsgrade/internal/models"
)

// DefaultTimeout bounds a single routine invocation when the definition does
// not override it.
const DefaultTimeout = 30 * time.Second

// Input carries everything a routine invocation needs.
type Input struct {
	Criterion   models.Criterion
	SubjectID   string
	Target      models.EnvironmentTarget
	Credentials models.Credentials
	Timeout     time.Duration
}

// Sandbox invokes one loaded routine under a hard wall-clock deadline and
// normalizes every failure mode into a zero-point outcome. Run never returns
// an error: a routine failing can cost its own criterion's points but must
// never abort evaluation of sibling criteria.
type Sandbox struct{}

func New() *Sandbox {
	return &Sandbox{}
}

type invocationResult struct {
	value map[string]interface{}
	panic interface{}
}

// Run executes the routine and returns its outcome. On timeout the routine
// may keep executing in the background (goroutines cannot be killed); its
// eventual result is discarded.
func (s *Sandbox) Run(ctx context.Context, routine bundle.CheckRoutine, in Input) models.CheckOutcome {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan invocationResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocationResult{panic: r}
			}
		}()
		done <- invocationResult{value: routine.Invoke(in.SubjectID, in.Target.StackName, in.Credentials.Map())}
	}()

	select {
	case res := <-done:
		if res.panic != nil {
			return failedOutcome(in.Criterion, fmt.Sprintf("routine %s raised: %v", in.Criterion.Routine, res.panic))
		}
		return shapeOutcome(in.Criterion, res.value)
	case <-ctx.Done():
		return failedOutcome(in.Criterion, fmt.Sprintf("routine %s timed out after %s", in.Criterion.Routine, timeout))
	}
}

// shapeOutcome validates the routine's return value. The only required field
// is an "implemented" boolean; everything else is carried as detail.
func shapeOutcome(c models.Criterion, value map[string]interface{}) models.CheckOutcome {
	if value == nil {
		return failedOutcome(c, fmt.Sprintf("routine %s returned no result", c.Routine))
	}
	implRaw, ok := value["implemented"]
	if !ok {
		return failedOutcome(c, fmt.Sprintf("routine %s result missing required field 'implemented'", c.Routine))
	}
	implemented, ok := implRaw.(bool)
	if !ok {
		return failedOutcome(c, fmt.Sprintf("routine %s field 'implemented' is %T, want bool", c.Routine, implRaw))
	}

	details := make(map[string]interface{}, len(value))
	for k, v := range value {
		if k == "implemented" {
			continue
		}
		details[k] = v
	}
	out := models.CheckOutcome{
		CriterionID: c.ID,
		Implemented: implemented,
		Details:     details,
	}
	if implemented {
		out.Points = c.Points
	}
	if errMsg, ok := value["error"].(string); ok && errMsg != "" {
		out.Error = errMsg
	}
	return out
}

func failedOutcome(c models.Criterion, msg string) models.CheckOutcome {
	return models.CheckOutcome{
		CriterionID: c.ID,
		Implemented: false,
		Error:       msg,
	}
}
