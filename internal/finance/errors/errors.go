package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrForbidden           = errors.New("transaction belongs to another user")
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	ok := errors.As(err, &validationError)
	return ok
}

func NewIndexedValidationError(line int, msg string) error {
	return &ValidationError{Msg: fmt.Sprintf("Validation error at line %d: %s", line, msg)}
}

type ValidationErrors struct {
	Errors []error
}

func (ve *ValidationErrors) Error() string {
	errorMessages := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		errorMessages[i] = err.Error()
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(errorMessages, "; "))
}

func (ve *ValidationErrors) Add(err error) {
	ve.Errors = append(ve.Errors, err)
}

func IsValidationErrors(err error) bool {
	var validationErrors *ValidationErrors
	ok := errors.As(err, &validationErrors)
	return ok
}

// MalformedUploadError reports a CSV row whose amount could not be parsed.
// Line is 1-based and counts physical records in the upload.
type MalformedUploadError struct {
	Line  int
	Value string
	Err   error
}

func (e *MalformedUploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: invalid amount %q: %v", e.Line, e.Value, e.Err)
	}
	return fmt.Sprintf("line %d: invalid amount %q", e.Line, e.Value)
}

func (e *MalformedUploadError) Unwrap() error {
	return e.Err
}

func IsMalformedUpload(err error) bool {
	var malformed *MalformedUploadError
	return errors.As(err, &malformed)
}
