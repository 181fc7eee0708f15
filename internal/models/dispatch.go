package models

// DispatchStatus classifies what happened to a single work item during one
// dispatch cycle.
type DispatchStatus string

const (
	DispatchTriggered DispatchStatus = "triggered"
	DispatchFailed    DispatchStatus = "failed"
	DispatchSkipped   DispatchStatus = "skipped"
)

// DispatchRecord reports the fate of one (subject, definition) work item. It
// is transient; the engine never persists dispatch records.
type DispatchRecord struct {
	SubjectID     string         `json:"subjectId"`
	DefinitionID  string         `json:"definitionId"`
	Source        string         `json:"source"`
	Status        DispatchStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	CorrelationID string         `json:"correlationId"`
}

// DispatchSummary aggregates one dispatch cycle. Records are unordered: work
// items run independently of each other.
type DispatchSummary struct {
	Triggered     int              `json:"triggered"`
	Failed        int              `json:"failed"`
	SkippedReason string           `json:"skippedReason,omitempty"`
	Records       []DispatchRecord `json:"records,omitempty"`
}
