package errors

import (
	"fmt"
	"testing"
)

// mockInternalError implements InternalError for testing
type mockInternalError struct {
	message string
}

func (m *mockInternalError) Error() string {
	return m.message
}

func (m *mockInternalError) Transform() *Error {
	return New(CommonInternal, m.message, nil).AddContext("mock", "true")
}

func TestAsError(t *testing.T) {
	testCases := []struct {
		name     string
		input    error
		expected string
	}{
		{
			name:     "InternalError",
			input:    &mockInternalError{message: "mock internal error"},
			expected: "mock internal error",
		},
		{
			name:     "ExistingError",
			input:    New(CommonInternal, "existing error", nil),
			expected: "existing error",
		},
		{
			name:     "StandardError",
			input:    fmt.Errorf("standard error"),
			expected: "standard error",
		},
		{
			name:     "NilError",
			input:    nil,
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := AsError(tc.input)

			if tc.input == nil {
				if result != nil {
					t.Error("AsError should return nil for nil input")
				}
				return
			}

			if result == nil {
				t.Fatal("AsError should not return nil for non-nil input")
			}

			if !IsTunelinkError(result) {
				t.Error("AsError should always return our error type")
			}

			if result.Message != tc.expected {
				t.Errorf("Expected message '%s', got '%s'", tc.expected, result.Message)
			}

			// For mockInternalError, verify Transform() was called
			if tc.name == "InternalError" {
				context := GetContext(result)
				if context == nil || context["mock"] != "true" {
					t.Error("AsError should use Transform() method for InternalError types")
				}
			}
		})
	}
}

func TestAsErrorChaining(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	// Each step in the chain uses AsError for consistent handling
	step1Err := AsError(originalErr).AddContext("step", "1")
	step2Err := AsError(step1Err).AddContext("step", "2")
	step3Err := AsError(step2Err).AddContext("step", "3")

	context := GetContext(step3Err)
	if context == nil {
		t.Fatal("Error chain should preserve context")
	}

	if context["step"] != "3" {
		t.Errorf("Expected step=3, got step=%s", context["step"])
	}

	if step3Err.Message != "original error" {
		t.Errorf("Original error message should be preserved, got: %s", step3Err.Message)
	}
}
