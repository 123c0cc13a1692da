package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is returned when the caller supplied bad input: an unresolved period,
// an "all subjects" publish, a status outside the closed set...
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) == 0 {
			return ""
		}
		msgs := make([]string, 0, len(err.Fields))
		for _, f := range err.Fields {
			msgs = append(msgs, f.Field+": "+f.Error)
		}
		return strings.Join(msgs, "; ")
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// DataShapeError reports a fetched record that cannot be used as is.
// Index is the record position in the backend response (-1 when unknown).
type DataShapeError struct {
	Resource  string
	Index     int
	StudentID string
	Field     string
	Err       error
}

func NewDataShapeError(resource string, index int, studentID, field string, err error) error {
	return &DataShapeError{
		Resource:  resource,
		Index:     index,
		StudentID: studentID,
		Field:     field,
		Err:       err,
	}
}

func (err DataShapeError) Error() string {
	var b strings.Builder
	b.WriteString(err.Resource)
	if err.Index >= 0 {
		fmt.Fprintf(&b, "[%d]", err.Index)
	}
	if err.StudentID != "" {
		fmt.Fprintf(&b, " (student %s)", err.StudentID)
	}
	if err.Field != "" {
		fmt.Fprintf(&b, " %s", err.Field)
	}
	if err.Err != nil {
		fmt.Fprintf(&b, ": %v", err.Err)
	}
	return b.String()
}

func (err DataShapeError) Unwrap() error { return err.Err }

// NetworkError is a transport or HTTP failure while talking to the backend.
// StatusCode is 0 when no response was received.
type NetworkError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func NewNetworkError(op string, statusCode int, body string, err error) error {
	return &NetworkError{Op: op, StatusCode: statusCode, Body: body, Err: err}
}

func (err NetworkError) Error() string {
	switch {
	case err.Err != nil && err.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", err.Op, err.StatusCode, err.Err)
	case err.Err != nil:
		return fmt.Sprintf("%s: %v", err.Op, err.Err)
	default:
		return fmt.Sprintf("%s: status %d: %s", err.Op, err.StatusCode, err.Body)
	}
}

func (err NetworkError) Unwrap() error { return err.Err }

func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

func IsDataShape(err error) bool {
	_, ok := errors.Cause(err).(*DataShapeError)
	return ok
}

func IsNetwork(err error) bool {
	_, ok := errors.Cause(err).(*NetworkError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
