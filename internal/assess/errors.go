package assess

import (
	"errors"
	"fmt"
)

// FailureCode tags the terminal failure classes of an assessment run. Only the
// resolve/load/authorize phases produce them; evaluation failures are absorbed
// into zero-point outcomes and never surface here.
type FailureCode string

const (
	CodeDefinitionNotFound FailureCode = "DefinitionNotFound"
	CodeDefinitionInactive FailureCode = "DefinitionInactive"
	CodeBundleUnavailable  FailureCode = "BundleUnavailable"
	CodeBundleInvalid      FailureCode = "BundleInvalid"
	CodeAccessDenied       FailureCode = "AccessDenied"
	CodeInternal           FailureCode = "Internal"
)

// RunError is the structured failure returned when an assessment run aborts
// before scoring. Runs are never retried automatically; callers may re-trigger
// the whole assessment.
type RunError struct {
	Code FailureCode
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func runError(code FailureCode, err error) *RunError {
	return &RunError{Code: code, Err: err}
}

// CodeOf extracts the failure code from an error chain, or "" when the error
// is not a terminal run failure.
func CodeOf(err error) FailureCode {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
