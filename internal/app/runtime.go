// Package app assembles marketd from configuration: store, proof archive,
// event sink, service, HTTP router and outbox dispatcher.
package app

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"datamarket/internal/adapters/httpapi"
	"datamarket/internal/blob"
	"datamarket/internal/config"
	"datamarket/internal/core"
	"datamarket/internal/events"
	"datamarket/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runtime owns every long-lived component of the daemon.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      core.PersistentStore
	service    *core.Service
	publisher  events.Publisher
	dispatcher *events.Dispatcher
	handler    http.Handler
	httpServer *http.Server
}

// NewRuntime opens the backends named by cfg and bootstraps the platform
// configuration when the store has none.
func NewRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	store, err := core.OpenPersistentStore(cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	proofs, err := blob.Open(ctx, cfg.BlobOptions())
	if err != nil {
		_ = core.CloseStore(store)
		return nil, fmt.Errorf("open proof archive: %w", err)
	}
	publisher, err := events.Open(ctx, cfg.SinkOptions())
	if err != nil {
		_ = core.CloseStore(store)
		return nil, fmt.Errorf("open event sink: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger)),
		core.WithProofStore(proofs),
	}
	var metricsHandler http.Handler
	switch cfg.Metrics {
	case config.MetricsPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			_ = events.Close(publisher)
			_ = core.CloseStore(store)
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(recorder))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case config.MetricsExpvar:
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
		metricsHandler = expvar.Handler()
	}

	svc := core.NewService(store, opts...)
	if err := Bootstrap(ctx, svc, cfg, logger); err != nil {
		_ = events.Close(publisher)
		_ = core.CloseStore(store)
		return nil, err
	}

	handler := httpapi.NewRouter(svc, httpapi.Options{Logger: logger, Metrics: metricsHandler})
	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		service:    svc,
		publisher:  publisher,
		dispatcher: events.NewDispatcher(logger, svc, publisher, cfg.DispatcherOptions(0)),
		handler:    handler,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Bootstrap initializes the platform from cfg unless it already exists.
func Bootstrap(ctx context.Context, svc *core.Service, cfg config.Config, logger *slog.Logger) error {
	_, err := svc.GetPlatformConfig(ctx)
	if err == nil {
		return nil
	}
	if !domain.IsCode(err, domain.CodeNotInitialized) {
		return fmt.Errorf("read platform config: %w", err)
	}
	admin, init := cfg.PlatformInit()
	created, _, err := svc.InitializePlatform(ctx, admin, init)
	if err != nil {
		return fmt.Errorf("bootstrap platform: %w", err)
	}
	logger.InfoContext(ctx, "platform initialized",
		"module", "app",
		"admin", string(created.Admin),
		"treasury", string(created.Treasury),
		"fee_bps", created.FeeBps,
	)
	return nil
}

// Service returns the marketplace service.
func (r *Runtime) Service() *core.Service { return r.service }

// Handler returns the HTTP router.
func (r *Runtime) Handler() http.Handler { return r.handler }

// Dispatcher returns the outbox dispatcher.
func (r *Runtime) Dispatcher() *events.Dispatcher { return r.dispatcher }

// Run serves HTTP and drives the dispatcher until ctx is cancelled or either
// fails, then shuts both down and releases the backends.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	go func() {
		r.logger.InfoContext(ctx, "http server listening", "module", "app", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := r.dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("outbox dispatcher: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "module", "app", "error", runErr)
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = r.httpServer.Shutdown(shutdownCtx)
	<-dispatcherDone
	r.Close()
	return runErr
}

// Close releases the event sink and the store.
func (r *Runtime) Close() {
	if err := events.Close(r.publisher); err != nil {
		r.logger.Warn("close event sink", "module", "app", "error", err)
	}
	if err := core.CloseStore(r.store); err != nil {
		r.logger.Warn("close store", "module", "app", "error", err)
	}
	r.logger.Info("runtime stopped", "module", "app", "outbox_cursor", r.dispatcher.Cursor())
}
