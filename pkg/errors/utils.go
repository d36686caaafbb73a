package errors

import (
	"fmt"
	"strings"
)

// Helper to check if an error is of our Error type
func IsTunelinkError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// Helper to extract context from our errors
func GetContext(err error) map[string]string {
	if tlErr, ok := err.(*Error); ok {
		return tlErr.Context
	}
	return nil
}

// Helper to get error code
func GetCode(err error) string {
	if tlErr, ok := err.(*Error); ok {
		return tlErr.Code.String()
	}
	return ""
}

// HasCode reports whether err is a coded error carrying the given code.
func HasCode(err error, code Code) bool {
	tlErr, ok := err.(*Error)
	return ok && tlErr.Code.Equals(code)
}

// Helper to format error for logging
func FormatError(err error) string {
	if tlErr, ok := err.(*Error); ok {
		var parts []string
		parts = append(parts, fmt.Sprintf("Code: %s", tlErr.Code))
		parts = append(parts, fmt.Sprintf("Message: %s", tlErr.Message))

		if len(tlErr.Context) > 0 {
			parts = append(parts, "Context:")
			for k, v := range tlErr.Context {
				parts = append(parts, fmt.Sprintf("  %s: %v", k, v))
			}
		}

		if tlErr.Cause != nil {
			parts = append(parts, fmt.Sprintf("Cause: %v", tlErr.Cause))
		}

		return strings.Join(parts, "\n")
	}
	return err.Error()
}

// AsError converts any error to the coded *Error form:
// InternalError types are transformed using their Transform() method,
// existing *Error values are returned as-is, and anything else is wrapped
// in a generic internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	if ie, ok := err.(InternalError); ok {
		return ie.Transform()
	}

	if tlErr, ok := err.(*Error); ok {
		return tlErr
	}

	return New(CommonInternal, err.Error(), err)
}
