package event

import (
	"errors"
	"fmt"
)

// ValidationCode categorizes record validation failures.
type ValidationCode string

const (
	// CodeUnknownEventType indicates the record's type string is not one of
	// the five recognized literals.
	CodeUnknownEventType ValidationCode = "UNKNOWN_EVENT_TYPE"

	// CodeMissingAmount indicates a deposit or withdrawal record without an
	// amount.
	CodeMissingAmount ValidationCode = "MISSING_AMOUNT"

	// CodeNonPositiveAmount indicates a deposit or withdrawal record whose
	// amount is zero or negative.
	CodeNonPositiveAmount ValidationCode = "NON_POSITIVE_AMOUNT"
)

// ValidationError reports why a record could not be converted to an Event.
//
// Validation errors are recoverable: the caller logs them and drops the
// offending record without affecting any other record.
type ValidationError struct {
	Code    ValidationCode
	Type    string // the record's raw type string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationCodeOf extracts the validation code from an error, unwrapping as
// needed. Returns the empty code if err is not a ValidationError.
func ValidationCodeOf(err error) ValidationCode {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
