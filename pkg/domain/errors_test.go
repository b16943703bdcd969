package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeKinds(t *testing.T) {
	cases := map[Code]Kind{
		CodeInvalidKey:                KindValidation,
		CodeFeeTooHigh:                KindValidation,
		CodeUnauthorized:              KindAuthorization,
		CodeAlreadyPurchased:          KindStateConflict,
		CodeHasPurchases:              KindStateConflict,
		CodeArithmeticOverflow:        KindArithmetic,
		CodePaymentRejected:           KindExternalDependency,
		CodeInvalidPaymentDestination: KindExternalDependency,
		CodePersistenceFailed:         KindExternalDependency,
		CodeNotFound:                  KindNotFound,
		Code("SOMETHING_ELSE"):        KindUnknown,
	}
	for code, want := range cases {
		if got := code.Kind(); got != want {
			t.Fatalf("%s: expected kind %s, got %s", code, want, got)
		}
	}
}

func TestErrorMatchingThroughWrapping(t *testing.T) {
	base := NewError(CodeAlreadyPurchased, "buyer %s already holds %s", "bob", "ds")
	wrapped := fmt.Errorf("purchase: %w", base)
	if !errors.Is(wrapped, ErrAlreadyPurchased) {
		t.Fatalf("expected sentinel match")
	}
	if errors.Is(wrapped, ErrHasPurchases) {
		t.Fatalf("expected code mismatch")
	}
	if CodeOf(wrapped) != CodeAlreadyPurchased || KindOf(wrapped) != KindStateConflict {
		t.Fatalf("unexpected code/kind %s/%s", CodeOf(wrapped), KindOf(wrapped))
	}
	if !IsCode(wrapped, CodeAlreadyPurchased) {
		t.Fatalf("expected IsCode")
	}
	if CodeOf(errors.New("plain")) != CodeUnknown || CodeOf(nil) != "" || KindOf(nil) != "" {
		t.Fatalf("unexpected code for non-domain errors")
	}
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("broker down")
	err := WrapError(CodePaymentRejected, cause, "transfer %d", 10)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if err.Error() != "transfer 10: broker down" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if (&Error{Code: CodeNotFound}).Error() != string(CodeNotFound) {
		t.Fatalf("expected code as fallback message")
	}
	if err.Kind() != KindExternalDependency {
		t.Fatalf("unexpected kind %s", err.Kind())
	}
}

func TestRuleViolationErrorUnwrapsCode(t *testing.T) {
	res := Result{Violations: []Violation{
		{Rule: "warn_only", Severity: SeverityWarn, Code: CodeInvalidKey},
		{Rule: "close_guard", Severity: SeverityBlock, Code: CodeHasPurchases, Message: "dataset has purchases"},
	}}
	err := fmt.Errorf("commit: %w", RuleViolationError{Result: res})
	if !errors.Is(err, ErrHasPurchases) {
		t.Fatalf("expected blocking violation code to surface, got %v", err)
	}
	var rve RuleViolationError
	if !errors.As(err, &rve) || len(rve.Result.Violations) != 2 {
		t.Fatalf("expected rule violation error")
	}
	uncoded := RuleViolationError{Result: Result{Violations: []Violation{{Rule: "x", Severity: SeverityBlock}}}}
	if uncoded.Unwrap() != nil {
		t.Fatalf("expected nil unwrap without code")
	}
	if CodeOf(uncoded) != CodeUnknown {
		t.Fatalf("expected unknown code")
	}
}
