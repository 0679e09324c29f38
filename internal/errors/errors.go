package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions the pipeline treats as fatal.
// Per the one-shot batch model there is no retry: the first stage error
// aborts the run.
var (
	ErrColumnMissing    = errors.New("required column missing from panel")
	ErrDuplicateKey     = errors.New("duplicate firm-year key")
	ErrEmptyPanel       = errors.New("panel contains no rows")
	ErrSingularMatrix   = errors.New("design matrix is singular")
	ErrNoConvergence    = errors.New("estimator failed to converge")
	ErrInsufficientData = errors.New("insufficient observations for estimation")
)

// ValidationError reports a data-quality or parameter problem with enough
// context to locate the offending field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for the given field.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// StageError wraps an error with the pipeline stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Err
}

// WrapStage wraps err with stage identity; returns nil when err is nil.
func WrapStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// EstimationError reports a model fit failure with the model name attached,
// so a failed run names the estimator rather than just the matrix condition.
type EstimationError struct {
	Model string
	Err   error
}

// Error implements the error interface
func (e *EstimationError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error
func (e *EstimationError) Unwrap() error {
	return e.Err
}

// WrapModel wraps err with model identity; returns nil when err is nil.
func WrapModel(model string, err error) error {
	if err == nil {
		return nil
	}
	return &EstimationError{Model: model, Err: err}
}
