package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongStage is returned when an operation is not allowed in the
	// current stage
	ErrWrongStage = errors.New("operation not allowed in the current stage")
	// ErrUnknownStage is returned for stage names that do not exist
	ErrUnknownStage = errors.New("unknown stage")
)

// ValidationError is returned when stage data does not satisfy a rule. The
// case record is left unchanged.
type ValidationError struct {
	Stage   Stage  `json:"stage"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(stage Stage, field, message string) *ValidationError {
	return &ValidationError{Stage: stage, Field: field, Message: message}
}

func wrongStage(op string, current Stage, allowed ...Stage) error {
	return fmt.Errorf("%w: %s is allowed in %v, current stage is %s", ErrWrongStage, op, allowed, current)
}
