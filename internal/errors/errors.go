// internal/errors/errors.go
package appErrors

import "fmt"

// ErrRunNotFound is a sentinel error
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("run with ID %s not found", e.RunID)
}

// Helper constructor
func NewRunNotFound(id string) error {
	return &ErrRunNotFound{RunID: id}
}

type ErrTemplateNotFound struct {
	TemplateID int
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("template with ID %d not found", e.TemplateID)
}

func NewTemplateNotFound(id int) error {
	return &ErrTemplateNotFound{TemplateID: id}
}

type ErrLeadNotFound struct {
	LeadID int
}

func (e *ErrLeadNotFound) Error() string {
	return fmt.Sprintf("lead with ID %d not found", e.LeadID)
}

func NewLeadNotFound(id int) error {
	return &ErrLeadNotFound{LeadID: id}
}

// ValidationError reports a rejected input field at a service boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrIllegalTransition is returned when a run status change would move the
// run backward or skip a state.
type ErrIllegalTransition struct {
	RunID string
	From  string
	To    string
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("run %s cannot transition from %s to %s", e.RunID, e.From, e.To)
}

func NewIllegalTransition(runID, from, to string) error {
	return &ErrIllegalTransition{RunID: runID, From: from, To: to}
}

// UpstreamError wraps a failed call to the dispatcher engine.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatcher engine %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("dispatcher engine %s failed: http status %d", e.Operation, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func NewUpstream(operation string, statusCode int, err error) error {
	return &UpstreamError{Operation: operation, StatusCode: statusCode, Err: err}
}
