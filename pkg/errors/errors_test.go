package errors

import (
	"errors"
	"strings"
	"testing"
)

// Test codes for testing
var (
	testCode      = MustNewCode("test.code")
	frameCode     = MustNewCode("protocol.frame_too_large")
	transportCode = MustNewCode("transport.port_closed")
)

func TestNew(t *testing.T) {
	err := New(CommonInternal, "test error", nil)

	if err.Message != "test error" {
		t.Errorf("Expected message 'test error', got '%s'", err.Message)
	}

	if err.Code.String() != "common.internal" {
		t.Errorf("Expected code 'common.internal', got '%s'", err.Code.String())
	}

	if err.Cause != nil {
		t.Error("Expected nil cause")
	}

	if err.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	if len(err.Stack) == 0 {
		t.Error("Expected stack trace to be captured")
	}
}

func TestNewWithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := New(testCode, "wrapped error", originalErr)

	if err.Message != "wrapped error" {
		t.Errorf("Expected message 'wrapped error', got '%s'", err.Message)
	}

	if err.Code.String() != "test.code" {
		t.Errorf("Expected code 'test.code', got '%s'", err.Code.String())
	}

	if err.Cause != originalErr {
		t.Error("Expected cause to be set to original error")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CommonInternal, "test error with %s", "formatting")

	expected := "test error with formatting"
	if err.Message != expected {
		t.Errorf("Expected message '%s', got '%s'", expected, err.Message)
	}

	if err.Code.String() != "common.internal" {
		t.Errorf("Expected code 'common.internal', got '%s'", err.Code.String())
	}
}

func TestAddContext(t *testing.T) {
	err := New(testCode, "test error", nil).
		AddContext("key1", "value1").
		AddContext("key2", "value2")

	if err.Context["key1"] != "value1" {
		t.Errorf("Expected context key1='value1', got '%s'", err.Context["key1"])
	}

	if err.Context["key2"] != "value2" {
		t.Errorf("Expected context key2='value2', got '%s'", err.Context["key2"])
	}
}

func TestWithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := New(testCode, "test error", nil).WithCause(originalErr)

	if err.Cause != originalErr {
		t.Error("Expected cause to be set to original error")
	}
}

func TestErrorString(t *testing.T) {
	// Test error without cause
	err := New(testCode, "test error", nil)
	expected := "test error"
	if err.Error() != expected {
		t.Errorf("Expected error string '%s', got '%s'", expected, err.Error())
	}

	// Test error with cause
	originalErr := errors.New("original error")
	err = New(testCode, "wrapped error", originalErr)
	expected = "wrapped error: original error"
	if err.Error() != expected {
		t.Errorf("Expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	err := New(testCode, "wrapped error", originalErr)

	unwrapped := err.Unwrap()
	if unwrapped != originalErr {
		t.Error("Expected Unwrap to return original error")
	}

	if !errors.Is(err, originalErr) {
		t.Error("Expected errors.Is to see through the wrapper")
	}
}

func TestCaptureStackTrace(t *testing.T) {
	err := New(testCode, "test error", nil)

	if len(err.Stack) == 0 {
		t.Error("Expected stack trace to be captured")
	}

	// Check that we have function names
	hasValidFunction := false
	for _, frame := range err.Stack {
		if frame.Function != "" && frame.File != "" && frame.Line > 0 {
			hasValidFunction = true
			break
		}
	}

	if !hasValidFunction {
		t.Error("Expected valid stack frame information")
	}
}

func TestMethodChaining(t *testing.T) {
	err := New(testCode, "test error", nil).
		AddContext("key", "value").
		WithCause(errors.New("cause"))

	if err.Message != "test error" {
		t.Errorf("Expected message 'test error', got '%s'", err.Message)
	}

	if err.Code.String() != "test.code" {
		t.Errorf("Expected code 'test.code', got '%s'", err.Code.String())
	}

	if err.Context["key"] != "value" {
		t.Errorf("Expected context key='value', got '%s'", err.Context["key"])
	}

	if err.Cause == nil {
		t.Error("Expected cause to be set")
	}
}

func TestIsTunelinkError(t *testing.T) {
	// Test with our error type
	err := New(testCode, "test error", nil)
	if !IsTunelinkError(err) {
		t.Error("Expected IsTunelinkError to return true for our error type")
	}

	// Test with standard error
	stdErr := errors.New("standard error")
	if IsTunelinkError(stdErr) {
		t.Error("Expected IsTunelinkError to return false for standard error")
	}
}

func TestGetContext(t *testing.T) {
	// Test with our error type
	err := New(testCode, "test error", nil).AddContext("key", "value")
	context := GetContext(err)

	if context["key"] != "value" {
		t.Errorf("Expected context key='value', got '%s'", context["key"])
	}

	// Test with standard error
	stdErr := errors.New("standard error")
	context = GetContext(stdErr)
	if context != nil {
		t.Error("Expected GetContext to return nil for standard error")
	}
}

func TestGetCode(t *testing.T) {
	// Test with our error type
	err := New(testCode, "test error", nil)
	code := GetCode(err)

	if code != "test.code" {
		t.Errorf("Expected code 'test.code', got '%s'", code)
	}

	// Test with standard error
	stdErr := errors.New("standard error")
	code = GetCode(stdErr)
	if code != "" {
		t.Error("Expected GetCode to return empty string for standard error")
	}
}

func TestHasCode(t *testing.T) {
	err := New(frameCode, "payload exceeds frame capacity", nil)

	if !HasCode(err, frameCode) {
		t.Error("Expected HasCode to match the carried code")
	}

	if HasCode(err, transportCode) {
		t.Error("Expected HasCode to reject a different code")
	}

	if HasCode(errors.New("standard error"), frameCode) {
		t.Error("Expected HasCode to reject standard errors")
	}
}

func TestFormatError(t *testing.T) {
	// Test with our error type
	err := New(testCode, "test error", nil).
		AddContext("key1", "value1").
		WithCause(errors.New("cause error"))

	logStr := FormatError(err)

	// Check that all components are present
	if !strings.Contains(logStr, "Code: test.code") {
		t.Error("Expected log string to contain code")
	}
	if !strings.Contains(logStr, "Message: test error") {
		t.Error("Expected log string to contain message")
	}
	if !strings.Contains(logStr, "key1: value1") {
		t.Error("Expected log string to contain context")
	}
	if !strings.Contains(logStr, "Cause: cause error") {
		t.Error("Expected log string to contain cause")
	}

	// Test with standard error
	stdErr := errors.New("standard error")
	logStr = FormatError(stdErr)
	if logStr != "standard error" {
		t.Errorf("Expected log string 'standard error', got '%s'", logStr)
	}
}
