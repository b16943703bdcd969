package domain

import (
	"context"
	"errors"
	"testing"
)

type staticRule struct {
	name     string
	severity Severity
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: r.severity}}}, nil
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }

func (failingRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{}, errors.New("boom")
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{name: "warn", severity: SeverityWarn})
	engine.Register(staticRule{name: "block", severity: SeverityBlock})
	if names := engine.Rules(); len(names) != 2 || names[0] != "warn" {
		t.Fatalf("unexpected rule order %v", names)
	}
	res, err := engine.Evaluate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || !res.HasBlocking() {
		t.Fatalf("expected merged blocking result, got %+v", res)
	}

	engine.Register(failingRule{})
	if _, err := engine.Evaluate(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected rule error")
	}
}

func TestResultMerge(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.HasBlocking() {
		t.Fatalf("unexpected result %+v", original)
	}
	if (RuleViolationError{}).Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected default message")
	}
}

func TestChangePayloadDecode(t *testing.T) {
	if !UndefinedChangePayload().IsEmpty() || UndefinedChangePayload().Defined() {
		t.Fatalf("expected undefined payload to be empty")
	}
	if NewChangePayload(nil).Raw() != nil {
		t.Fatalf("expected nil raw for empty payload")
	}
	payload := MustChangePayload(Dataset{Base: Base{ID: "ds"}, PurchaseCount: 3})
	decoded, ok := DecodePayload[Dataset](payload)
	if !ok || decoded.ID != "ds" || decoded.PurchaseCount != 3 {
		t.Fatalf("unexpected decode %+v", decoded)
	}
	raw := payload.Raw()
	raw[0] = 'x'
	if _, ok := DecodePayload[Dataset](payload); !ok {
		t.Fatalf("expected payload to be isolated from Raw copies")
	}
	if _, ok := DecodePayload[Dataset](NewChangePayload([]byte("not json"))); ok {
		t.Fatalf("expected decode failure")
	}
	if _, err := NewChangePayloadFromValue(func() {}); err == nil {
		t.Fatalf("expected marshal failure")
	}
}
