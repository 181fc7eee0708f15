package models

import (
	"time"

	"github.com/google/uuid"
)

// AssessmentDefinition is the named set of criteria and metadata describing one
// assessment. Definitions are authored and maintained by an external management
// surface; the engine only ever reads them.
type AssessmentDefinition struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Criteria       []Criterion   `json:"criteria"`
	PassThreshold  int           `json:"passThreshold"`
	BundleKey      string        `json:"bundleKey"`
	Active         bool          `json:"active"`
	SandboxTimeout time.Duration `json:"sandboxTimeout,omitempty"`
}

// MaxScore is the sum of all criterion point values.
func (d AssessmentDefinition) MaxScore() int {
	total := 0
	for _, c := range d.Criteria {
		total += c.Points
	}
	return total
}

// RoutineNames returns the deduplicated set of routine names referenced by the
// definition's criteria, in first-reference order.
func (d AssessmentDefinition) RoutineNames() []string {
	seen := make(map[string]bool, len(d.Criteria))
	names := make([]string, 0, len(d.Criteria))
	for _, c := range d.Criteria {
		if c.Routine == "" || seen[c.Routine] {
			continue
		}
		seen[c.Routine] = true
		names = append(names, c.Routine)
	}
	return names
}

// Criterion is one scored check within a definition. Routine names the callable
// inside the definition's bundle that implements the check.
type Criterion struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Routine string `json:"routine"`
}

// CheckOutcome is the per-criterion result of running a routine. Points is zero
// unless Implemented is true. Outcomes are immutable once produced.
type CheckOutcome struct {
	CriterionID string                 `json:"criterionId"`
	Implemented bool                   `json:"implemented"`
	Points      int                    `json:"points"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// AssessmentResult is the append-only record of one completed assessment run.
// Outcomes mirrors the definition's criteria order exactly.
type AssessmentResult struct {
	ID           uuid.UUID      `json:"id"`
	SubjectID    string         `json:"subjectId"`
	DefinitionID string         `json:"definitionId"`
	Outcomes     []CheckOutcome `json:"outcomes"`
	Score        int            `json:"score"`
	MaxScore     int            `json:"maxScore"`
	Passed       bool           `json:"passed"`
	Feedback     Feedback       `json:"feedback"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Feedback partitions a result's criteria into achieved checks and suggestions
// for the ones that scored zero.
type Feedback struct {
	Summary     string         `json:"summary"`
	Implemented []FeedbackLine `json:"implemented"`
	Suggestions []FeedbackLine `json:"suggestions"`
}

type FeedbackLine struct {
	CriterionID string `json:"criterionId"`
	Name        string `json:"name"`
	Points      int    `json:"points"`
	Detail      string `json:"detail,omitempty"`
}

// EnvironmentTarget identifies the assessed party's environment: the role the
// engine assumes to inspect it and the stack the subject's resources live in.
// Both are derived deterministically from the subject id.
type EnvironmentTarget struct {
	SubjectID string `json:"subjectId"`
	RoleARN   string `json:"roleArn"`
	StackName string `json:"stackName"`
}

// Credentials are short-lived keys scoped to one subject's environment. They
// are vended per assessment run and discarded at run end.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Map renders the credentials in the flat string form handed across the
// routine invocation boundary.
func (c Credentials) Map() map[string]string {
	return map[string]string{
		"accessKeyId":     c.AccessKeyID,
		"secretAccessKey": c.SecretAccessKey,
		"sessionToken":    c.SessionToken,
		"expiration":      c.Expiration.UTC().Format(time.RFC3339),
	}
}
