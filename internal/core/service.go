package core

import (
	"context"
	"errors"
	"time"

	"datamarket/internal/blob"
	"datamarket/internal/infra/persistence/memory"
	"datamarket/pkg/domain"
)

// Service exposes the marketplace transitions. Every mutating call runs inside
// a single store transaction: authorization and validation come first, then
// the writes, then the rules engine, and the new state is swapped in only if
// all of them succeed.
type Service struct {
	store   PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
	proofs  *ProofArchive
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger routes operation logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder records an AuditEntry per mutating operation.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithMetricsRecorder observes per-operation latency and outcome.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer opens a span around every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the clock used for durations, audit timestamps, and
// read-side expiry checks.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithProofStore archives verification proofs in store.
func WithProofStore(store blob.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.proofs = NewProofArchive(store)
		}
	}
}

// NewService constructs a service backed by the supplied store. Proofs are
// archived in memory unless WithProofStore is given.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   ClockFunc(store.NowFunc()),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.proofs == nil {
		svc.proofs = NewProofArchive(blob.NewMemory())
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run executes fn in a transaction and reports the outcome to every
// observability hook. fn returns the ID of the record it acted on.
func (s *Service) run(ctx context.Context, opName string, actor Principal, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, opName)
	started := s.clock.Now()
	var entityID string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})
	duration := s.clock.Now().Sub(started)
	span.End(err)
	s.metrics.Observe(ctx, opName, err == nil, duration)
	if err != nil {
		s.recordAuditError(ctx, opName, actor, entityID, duration, err)
		s.logFailure(opName, actor, entityID, duration, err)
		return res, err
	}
	s.recordAuditSuccess(ctx, opName, actor, entityID, duration)
	s.logger.Debug("operation committed",
		"operation", opName,
		"principal", string(actor),
		"entity_id", entityID,
		"outcome", "success",
		"duration", duration,
	)
	for _, v := range res.Violations {
		s.logger.Warn("rule violation",
			"operation", opName,
			"rule", v.Rule,
			"severity", string(v.Severity),
			"entity_id", v.EntityID,
			"message", v.Message,
		)
	}
	return res, nil
}

func (s *Service) logFailure(opName string, actor Principal, entityID string, duration time.Duration, err error) {
	args := []any{
		"operation", opName,
		"principal", string(actor),
		"entity_id", entityID,
		"outcome", "error",
		"kind", string(domain.KindOf(err)),
		"code", string(domain.CodeOf(err)),
		"duration", duration,
		"error", err,
	}
	var violation domain.RuleViolationError
	switch {
	case errors.As(err, &violation):
		s.logger.Warn("operation blocked by rules", args...)
	case domain.KindOf(err) == domain.KindUnknown || domain.KindOf(err) == domain.KindExternalDependency:
		s.logger.Error("operation failed", args...)
	default:
		s.logger.Info("operation rejected", args...)
	}
}

func (s *Service) recordAuditSuccess(ctx context.Context, opName string, actor Principal, entityID string, duration time.Duration) {
	s.recordAudit(ctx, opName, actor, entityID, duration, AuditStatusSuccess, "")
}

func (s *Service) recordAuditError(ctx context.Context, opName string, actor Principal, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, opName, actor, entityID, duration, AuditStatusError, string(domain.CodeOf(err)))
}

func (s *Service) recordAudit(ctx context.Context, opName string, actor Principal, entityID string, duration time.Duration, status AuditStatus, code string) {
	op, ok := operations[opName]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op.name,
		Entity:    op.entity,
		Action:    op.action,
		EntityID:  entityID,
		Principal: actor,
		Status:    status,
		Code:      code,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

// requirePlatform loads the singleton configuration or fails with NotInitialized.
func requirePlatform(tx Transaction) (PlatformConfig, error) {
	cfg, ok := tx.PlatformConfig()
	if !ok {
		return PlatformConfig{}, domain.NewError(domain.CodeNotInitialized, "platform is not initialized")
	}
	return cfg, nil
}

func requireDataset(tx Transaction, id string) (Dataset, error) {
	d, ok := tx.FindDataset(id)
	if !ok {
		return Dataset{}, domain.NewError(domain.CodeNotFound, "dataset %s not found", id)
	}
	return d, nil
}

func appendEvent(tx Transaction, typ domain.EventType, entity EntityType, recordID string, fields map[string]string) error {
	_, err := tx.AppendEvent(domain.Event{Type: typ, Entity: entity, RecordID: recordID, Fields: fields})
	return err
}
