package dialogue

import "errors"

var (
	// ErrNotReady is returned by Engine.Lookup until Initialize has succeeded.
	ErrNotReady = errors.New("dialogue engine not ready")
	// ErrNilSnapshot is returned when a loader reports success without data.
	ErrNilSnapshot = errors.New("loader returned nil snapshot")
)

// MalformedError describes why a record was skipped during index build.
type MalformedError struct {
	Reason string
	Field  string
}

func (e *MalformedError) Error() string {
	if e.Field == "" {
		return "malformed record: " + e.Reason
	}
	return "malformed record: " + e.Reason + " (" + e.Field + ")"
}

// Skip reasons reported in BuildReport.Skipped.
const (
	ReasonMissingField         = "missing_field"
	ReasonBadType              = "bad_type"
	ReasonBadCondition         = "bad_condition"
	ReasonDuplicateID          = "duplicate_id"
	ReasonDuplicateContextHash = "duplicate_context_hash"
)

func malformed(reason, field string) error {
	return &MalformedError{Reason: reason, Field: field}
}
