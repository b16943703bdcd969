package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface the service writes to. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus is the outcome recorded for an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed mutating operation.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Principal Principal
	Status    AuditStatus
	Code      string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry after every mutating operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is closed with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// Tracer opens a span per operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Clock supplies wall time for durations and audit timestamps.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type operation struct {
	name   string
	entity EntityType
	action Action
}

// Operation names used for audit, metrics, and tracing.
const (
	OpInitializePlatform = "initialize_platform"
	OpSetPlatformConfig  = "set_platform_config"
	OpRegisterDataset    = "register_dataset"
	OpUpdateDataset      = "update_dataset"
	OpUpdateHash         = "update_hash"
	OpVerifyDataset      = "verify_dataset"
	OpPurchaseDataset    = "purchase_dataset"
	OpRecordAccess       = "record_access"
	OpCloseDataset       = "close_dataset"
	OpDeposit            = "deposit"
	OpWithdraw           = "withdraw"
)

var operations = map[string]operation{
	OpInitializePlatform: {OpInitializePlatform, EntityPlatformConfig, ActionCreate},
	OpSetPlatformConfig:  {OpSetPlatformConfig, EntityPlatformConfig, ActionUpdate},
	OpRegisterDataset:    {OpRegisterDataset, EntityDataset, ActionCreate},
	OpUpdateDataset:      {OpUpdateDataset, EntityDataset, ActionUpdate},
	OpUpdateHash:         {OpUpdateHash, EntityDataset, ActionUpdate},
	OpVerifyDataset:      {OpVerifyDataset, EntityDataset, ActionUpdate},
	OpPurchaseDataset:    {OpPurchaseDataset, EntityPurchase, ActionCreate},
	OpRecordAccess:       {OpRecordAccess, EntityPurchase, ActionUpdate},
	OpCloseDataset:       {OpCloseDataset, EntityDataset, ActionDelete},
	OpDeposit:            {OpDeposit, EntityBalance, ActionUpdate},
	OpWithdraw:           {OpWithdraw, EntityBalance, ActionUpdate},
}
