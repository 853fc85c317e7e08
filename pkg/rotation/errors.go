package rotation

import "errors"

// Code classifies engine failures for callers and per-item batch results.
type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeStockExhausted Code = "STOCK_EXHAUSTED"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Error is a classified engine error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the classification from err, defaulting to
// INTERNAL_ERROR for anything unclassified (store failures and the like).
func CodeOf(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeInternal
}
