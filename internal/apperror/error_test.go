package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_UsesRegisteredMessage(t *testing.T) {
	err := New(CodeAmountOutOfBounds, WithContext("amount 5 below minimum 10"))

	if err.Message != messages[CodeAmountOutOfBounds] {
		t.Errorf("Message = %q, want %q", err.Message, messages[CodeAmountOutOfBounds])
	}
	want := "AMOUNT_OUT_OF_BOUNDS: Requested amount is out of bounds (amount 5 below minimum 10)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNew_UnknownCodeFallsBackToCode(t *testing.T) {
	err := New(Code("SOMETHING_ELSE"))
	if err.Message != "SOMETHING_ELSE" {
		t.Errorf("Message = %q, want code as message", err.Message)
	}
}

func TestGetCode_ThroughWrapping(t *testing.T) {
	base := New(CodeUnknownOutcome)
	wrapped := fmt.Errorf("attempt 2: %w", base)

	if got := GetCode(wrapped); got != CodeUnknownOutcome {
		t.Errorf("GetCode = %s, want %s", got, CodeUnknownOutcome)
	}
	if !HasCode(wrapped, CodeUnknownOutcome) {
		t.Error("HasCode should find code through fmt wrapping")
	}
	if HasCode(wrapped, CodeExecutionFailure) {
		t.Error("HasCode matched a different code")
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknownError {
		t.Errorf("GetCode(plain) = %s, want %s", got, CodeUnknownError)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, CodeInternalError, "ctx") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}

	cause := errors.New("dial tcp: refused")
	wrapped := Wrap(cause, CodeProviderUnavailable, "aave")
	if wrapped.Code != CodeProviderUnavailable {
		t.Errorf("Code = %s, want %s", wrapped.Code, CodeProviderUnavailable)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should unwrap to cause")
	}

	existing := New(CodeCircuitOpen)
	if got := Wrap(existing, CodeProviderUnavailable, "solend"); got.Code != CodeCircuitOpen {
		t.Errorf("Wrap replaced existing code: got %s", got.Code)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeExecutionFailure, true},
		{CodeUnknownOutcome, true},
		{CodeAmountOutOfBounds, false},
		{CodeConcurrencyLimitExceeded, false},
		{CodeProviderNotApproved, false},
		{CodeStartupConfiguration, false},
		{CodeBundleRejected, false},
		{CodeCircuitOpen, false},
		{CodeInternalError, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := Retryable(tt.code); got != tt.want {
				t.Errorf("Retryable(%s) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestLogArgs_IncludesCause(t *testing.T) {
	err := New(CodeExecutionFailure, WithCause(errors.New("swap reverted")), WithContext("attempt 1"))
	args := err.LogArgs()
	if len(args) != 8 {
		t.Fatalf("len(LogArgs) = %d, want 8", len(args))
	}
	if args[7] != "swap reverted" {
		t.Errorf("cause = %v, want swap reverted", args[7])
	}
}
