package applications

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrJobQueueNotConfigured = errors.New("job queue not configured")
	ErrNoQuestions           = errors.New("gap question generation produced no valid questions")
)

const (
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeStageFailed   = "STAGE_FAILED"
	ErrorCodeQueue         = "QUEUE_ERROR"
	ErrorCodeInternal      = "INTERNAL_ERROR"
	ErrorCodeBudgetReached = "BUDGET_EXCEEDED"
)

// FieldError is one rejected input field.
type FieldError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// ValidationError rejects caller input without changing application state.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Issue)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, issue string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Issue: issue})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// StageFailure names the stage that moved an application to FAILED.
type StageFailure struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *StageFailure) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("stage %s failed: %s", e.Stage, msg)
}

func (e *StageFailure) Unwrap() error { return e.Err }
