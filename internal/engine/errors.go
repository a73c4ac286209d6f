package engine

import (
	"fmt"
	"strings"
)

// FetchError reports a CRM read or search that failed at the transport
// level. It aborts the orchestration immediately.
type FetchError struct {
	Entity string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Entity, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError carries every completeness check the fetched data
// violated. It is a user-correctable condition, not a transient one.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, ", ")
}

// AllocationError reports a failed certificate-counter read or write.
// The counter may already be durably incremented when the write
// succeeded and a later stage failed; gaps in the numbering are accepted.
type AllocationError struct {
	SystemID string
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate certificate number for system %s: %v", e.SystemID, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
