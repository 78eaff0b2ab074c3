// Package review runs the lifecycle of pending change sessions: creation
// from extracted snapshots, per-field decisions, and resolution.
package review

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// ValidationError reports a rejected decision payload. It carries the field
// name when the problem is scoped to one field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func NewValidationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) AddField(field string) *ValidationError {
	e.Field = field
	return e
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("code", "validation").AddMetaValue("field", e.Field)
}

func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// StateError reports an operation attempted against a session that is no
// longer pending.
type StateError struct {
	Status  string
	Message string
}

func NewStateError(status, msg string) *StateError {
	return &StateError{Status: status, Message: msg}
}

func (e *StateError) Error() string {
	return e.Message
}

func (e *StateError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("code", "state").AddMetaValue("status", e.Status)
}

func IsStateError(err error) bool {
	_, ok := err.(*StateError)
	return ok
}

// ApplyConflict reports an accepted field whose stored value moved since the
// session was created. FreshValue is what the record holds now.
type ApplyConflict struct {
	Field      string
	FreshValue any
}

func NewApplyConflict(field string, freshValue any) *ApplyConflict {
	return &ApplyConflict{Field: field, FreshValue: freshValue}
}

func (e *ApplyConflict) Error() string {
	return fmt.Sprintf("field '%s' changed since this review was created", e.Field)
}

func (e *ApplyConflict) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("code", "stale").AddMetaValue("field", e.Field).AddMetaValue("fresh_value", e.FreshValue)
}

func IsApplyConflict(err error) bool {
	_, ok := err.(*ApplyConflict)
	return ok
}

// ToHTTPError maps any review error onto its HTTP form. Errors that are
// already httperrors pass through; everything else becomes a 500.
func ToHTTPError(err error) error {
	switch e := err.(type) {
	case *ValidationError:
		return e.ToHTTPError()
	case *StateError:
		return e.ToHTTPError()
	case *ApplyConflict:
		return e.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return err
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
}
