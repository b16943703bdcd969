package core

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"datamarket/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	lines []logLine
}

func (c *captureLogger) log(level, msg string, args []any) {
	c.lines = append(c.lines, logLine{level: level, msg: msg, args: args})
}

func (c *captureLogger) Debug(msg string, args ...any) { c.log("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.log("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.log("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.log("error", msg, args) }

func (c *captureLogger) find(level, msg string) (logLine, bool) {
	for _, l := range c.lines {
		if l.level == level && l.msg == msg {
			return l, true
		}
	}
	return logLine{}, false
}

func argValue(args []any, key string) any {
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == key {
			return args[i+1]
		}
	}
	return nil
}

func TestServiceObservabilityHooks(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	m := newMarket(t, WithAuditRecorder(audit), WithMetricsRecorder(metrics), WithTracer(tracer))

	d := m.listed(t, "observed")
	if !audit.has(OpRegisterDataset, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == d.ID && e.Principal == testOwner && e.Entity == EntityDataset && e.Action == ActionCreate
	}) {
		t.Fatalf("expected register audit entry, got %+v", audit.entries)
	}
	if !audit.has(OpVerifyDataset, AuditStatusSuccess, nil) || !metrics.has(OpVerifyDataset, true) {
		t.Fatalf("expected verify audit and metrics")
	}

	_, _, err := m.svc.Purchase(ctx, testOwner, d.ID, testPrice)
	expectCode(t, err, domain.CodeSelfPurchaseNotAllowed)
	if !audit.has(OpPurchaseDataset, AuditStatusError, func(e AuditEntry) bool {
		return e.Code == string(domain.CodeSelfPurchaseNotAllowed) && e.EntityID == d.ID
	}) {
		t.Fatalf("expected purchase error audit entry")
	}
	if !metrics.has(OpPurchaseDataset, false) {
		t.Fatalf("expected purchase failure metric")
	}

	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("spans started %d ended %d", len(tracer.started), len(tracer.ended))
	}
	last := tracer.ended[len(tracer.ended)-1]
	if last.op != OpPurchaseDataset || last.err == nil {
		t.Fatalf("expected failed purchase span, got %+v", last)
	}
}

func TestServiceLogsByOutcome(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	m := newMarket(t, WithLogger(logger))
	d := m.register(t, "logged")

	if _, ok := logger.find("debug", "operation committed"); !ok {
		t.Fatalf("expected debug log for committed operation")
	}

	_, _, _ = m.svc.Purchase(ctx, testBuyer, d.ID, testPrice)
	line, ok := logger.find("info", "operation rejected")
	if !ok {
		t.Fatalf("expected info log for rejected purchase, got %+v", logger.lines)
	}
	if argValue(line.args, "kind") != string(domain.KindStateConflict) || argValue(line.args, "operation") != OpPurchaseDataset {
		t.Fatalf("unexpected log fields %v", line.args)
	}

	_, _, _ = m.svc.Purchase(ctx, "pauper", m.verify(t, d.ID, 70).ID, testPrice)
	if _, ok := logger.find("error", "operation failed"); !ok {
		t.Fatalf("expected error log for rejected payment")
	}

	m.store.RulesEngine().Register(failingRule{name: "reject_updates"})
	_, _, _ = m.svc.UpdateDataset(ctx, testOwner, d.ID, UpdateInput{Price: uint64Ptr(testPrice + 1)})
	if _, ok := logger.find("warn", "operation blocked by rules"); !ok {
		t.Fatalf("expected warn log for blocked operation")
	}
}

type warnRule struct{}

func (warnRule) Name() string { return "advisory" }

func (warnRule) Evaluate(context.Context, domain.RuleView, []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "advisory", Severity: domain.SeverityWarn, Message: "heads up"}}}, nil
}

func TestServiceLogsNonBlockingViolations(t *testing.T) {
	logger := &captureLogger{}
	m := newMarket(t, WithLogger(logger))
	m.store.RulesEngine().Register(warnRule{})
	_, res, err := m.svc.Deposit(context.Background(), testBuyer, 1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected advisory violation in result, got %+v", res)
	}
	line, ok := logger.find("warn", "rule violation")
	if !ok || argValue(line.args, "rule") != "advisory" {
		t.Fatalf("expected warn log for advisory rule, got %+v", logger.lines)
	}
}

func TestServiceClockDrivesDurations(t *testing.T) {
	ticks := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 2, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC),
	}
	var i int
	clock := ClockFunc(func() time.Time {
		now := ticks[min(i, len(ticks)-1)]
		i++
		return now
	})
	audit := &captureAuditRecorder{}
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithClock(clock), WithAuditRecorder(audit))
	if _, _, err := svc.InitializePlatform(context.Background(), testAdmin, PlatformInit{Treasury: testTreasury}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Duration != 2*time.Second || !entry.Timestamp.Equal(ticks[2]) {
		t.Fatalf("unexpected timing %+v", entry)
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	name := fmt.Sprintf("datamarket_test_%d", time.Now().UnixNano())
	rec := NewExpvarMetricsRecorder(name)
	rec.Observe(context.Background(), OpPurchaseDataset, true, 3*time.Millisecond)
	rec.Observe(context.Background(), OpPurchaseDataset, false, 5*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	totals := snap.Operations[OpPurchaseDataset]
	if totals.Success != 1 || totals.Error != 1 || totals.DurationMS != 8 || totals.MaxMS != 5 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if len(snap.Operations) != 1 {
		t.Fatalf("empty operation name should be ignored")
	}
	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), OpPurchaseDataset) {
		t.Fatalf("expected expvar export under %s", rec.Name())
	}
	if other := NewExpvarMetricsRecorder(""); other.Name() == rec.Name() || other.Name() == "" {
		t.Fatalf("expected generated unique name, got %q", other.Name())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	m := newMarket(t, WithMetricsRecorder(rec))
	m.register(t, "prom")
	_, _, _ = m.svc.Register(context.Background(), testOwner, computedInput("prom"))

	if got := testutil.ToFloat64(rec.total.WithLabelValues(OpRegisterDataset, "success")); got != 1 {
		t.Fatalf("expected one successful register, got %v", got)
	}
	if got := testutil.ToFloat64(rec.total.WithLabelValues(OpRegisterDataset, "error")); got != 1 {
		t.Fatalf("expected one failed register, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n == 0 {
		t.Fatalf("expected latency histograms")
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	m := newMarket(t, WithTracer(tracer))
	_, _, _ = m.svc.Purchase(context.Background(), testBuyer, "missing", testPrice)

	entries := tracer.Entries()
	last := entries[len(entries)-1]
	if last.Operation != OpPurchaseDataset || last.Status != "error" || last.Error == "" {
		t.Fatalf("unexpected span %+v", last)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(entries) {
		t.Fatalf("expected %d encoded spans, got %d", len(entries), len(lines))
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &decoded); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if decoded.Operation != OpPurchaseDataset {
		t.Fatalf("unexpected decoded span %+v", decoded)
	}

	_, span := tracer.Start(context.Background(), "twice")
	span.End(nil)
	span.End(nil)
	if got := len(tracer.Entries()); got != len(entries)+1 {
		t.Fatalf("span ended twice was recorded twice")
	}
}

func TestLogAuditRecorder(t *testing.T) {
	logger := &captureLogger{}
	m := newMarket(t, WithAuditRecorder(NewLogAuditRecorder(logger)))
	d := m.register(t, "audited")
	line, ok := logger.find("info", "audit")
	if !ok {
		t.Fatalf("expected audit log line")
	}
	found := false
	for _, l := range logger.lines {
		if l.msg == "audit" && argValue(l.args, "entity_id") == d.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected audit line for %s, first was %v", d.ID, line.args)
	}
	NewLogAuditRecorder(nil).Record(context.Background(), AuditEntry{Operation: OpDeposit})
}

func TestUnknownOperationIsNotAudited(t *testing.T) {
	audit := &captureAuditRecorder{}
	svc := NewInMemoryService(nil, WithAuditRecorder(audit))
	_, _ = svc.run(context.Background(), "not_an_operation", testAdmin, func(Transaction) (string, error) { return "", nil })
	if len(audit.entries) != 0 {
		t.Fatalf("unexpected audit entries %+v", audit.entries)
	}
}
