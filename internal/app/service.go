package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"vigil/internal/alert"
	"vigil/internal/clock"
	"vigil/internal/config"
	"vigil/internal/incident"
	"vigil/internal/ingest"
	"vigil/internal/logging"
	"vigil/internal/notify"
	"vigil/internal/poll"
	"vigil/internal/scheduler"
	"vigil/internal/state"
	"vigil/internal/statsqueue"
)

// stores groups the per-concern state backends used by the runtime.
// Params: one backend per store interface plus an optional closer.
// Returns: backend bundle; in single mode every field is the same
// memory store, in nats mode monitors and watermarks live in KV.
type stores struct {
	monitors   state.MonitorStore
	pings      state.PingStore
	stats      state.StatStore
	alerts     state.AlertStore
	watermarks state.WatermarkStore
	uptime     state.UptimeStore
	closer     interface{ Close() error }
}

// Service composes runtime dependencies and process lifecycle.
// Params: config path and shared runtime components.
// Returns: runnable monitoring service.
type Service struct {
	cfgPath   string
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	stores    stores
	queue     *statsqueue.Queue
	sched     *scheduler.Scheduler
	recorder  *ingest.Recorder
	httpSrv   *http.Server
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from a config file.
// Params: config file path and clock implementation.
// Returns: initialized service or setup error.
func NewService(cfgPath string, clk clock.Clock) (*Service, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	backends, err := buildStores(cfg, clk)
	if err != nil {
		closeLog()
		return nil, err
	}

	service := &Service{
		cfgPath:  cfgPath,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		stores:   backends,
		clock:    clk,
	}

	if err := service.seedMonitors(context.Background(), cfg); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	incidents := incident.NewMemory()
	service.queue = statsqueue.New(backends.pings, backends.stats, clk, logger, statsqueue.Options{
		Capacity: cfg.Stats.Capacity,
		Workers:  cfg.Stats.Workers,
		Window:   cfg.StatsWindow(),
	})

	builder := alert.NewContextBuilder(backends.monitors, backends.pings, backends.stats, clk, logger)
	dispatcher := alert.NewDispatcher(
		backends.monitors,
		backends.alerts,
		notify.NewRegistry(),
		builder,
		cfg.DomainProject(),
		clk,
		logger,
	)

	service.recorder = ingest.NewRecorder(
		backends.monitors,
		backends.pings,
		service.queue,
		incidents,
		dispatcher,
		clk,
		logger,
	)

	service.sched = scheduler.New(
		backends.monitors,
		backends.pings,
		backends.alerts,
		backends.watermarks,
		backends.uptime,
		poll.NewExecutor(nil),
		dispatcher,
		incidents,
		service.queue,
		clk,
		logger,
		scheduler.Options{
			TickInterval:    cfg.TickInterval(),
			PollConcurrency: cfg.Service.PollConcurrency,
			PruneInterval:   cfg.PruneInterval(),
			PingRetention:   cfg.PingRetention(),
			AlertRetention:  cfg.AlertRetention(),
		},
	)

	if err := service.buildHTTPServer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.queue.Run(shutdownCtx)
	go func() {
		if err := s.sched.Run(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduler stopped", "error", err.Error())
		}
	}()

	if s.cfg.Service.ReloadEnabled {
		go func() {
			err := config.Watch(shutdownCtx, s.cfgPath, s.logger, func(next config.Config) {
				s.applyReload(shutdownCtx, next)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("config watch stopped", "error", err.Error())
			}
		}()
	}

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown(shutdownCancel)
	case err := <-errChan:
		_ = s.shutdown(shutdownCancel)
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown(shutdownCancel)
	}
}

// shutdown closes runtime resources in dependency order.
// Params: cancel func stopping the scheduler and queue workers.
// Returns: first close error.
func (s *Service) shutdown(cancel context.CancelFunc) error {
	s.readyFlag.Store(false)
	ctx, ctxCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ctxCancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	cancel()
	s.queue.Close()
	if s.stores.closer != nil {
		if err := s.stores.closer.Close(); err != nil {
			s.logger.Error("store close failed", "error", err.Error())
			markErr(fmt.Errorf("store close: %w", err))
		}
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.queue != nil {
		s.queue.Close()
		s.queue = nil
	}
	if s.stores.closer != nil {
		_ = s.stores.closer.Close()
		s.stores.closer = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// seedMonitors upserts every configured monitor into the store.
// Params: context and config snapshot.
// Returns: first store error; Put preserves runtime fields so a reseed
// never resets live status.
func (s *Service) seedMonitors(ctx context.Context, cfg config.Config) error {
	for _, monitor := range cfg.Monitors() {
		if err := s.stores.monitors.Put(ctx, monitor); err != nil {
			return fmt.Errorf("seed monitor %s: %w", monitor.ID, err)
		}
	}
	return nil
}

// applyReload applies a freshly loaded config snapshot at runtime.
// Params: context and validated next snapshot.
// Returns: nothing; only monitor definitions are applied live, a mode
// change still requires a restart.
func (s *Service) applyReload(ctx context.Context, next config.Config) {
	if next.Service.Mode != s.cfg.Service.Mode {
		s.logger.Error("service mode change requires restart",
			"from", s.cfg.Service.Mode, "to", next.Service.Mode)
		return
	}
	if err := s.seedMonitors(ctx, next); err != nil {
		s.logger.Error("reload seed failed", "error", err.Error())
		return
	}
	s.cfg.Monitor = next.Monitor
	s.logger.Info("monitor definitions reloaded", "monitors", len(next.Monitor))
}

// buildHTTPServer wires router with ingest, control, and health endpoints.
// Params: none.
// Returns: setup error.
func (s *Service) buildHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})

	handler := ingest.NewHTTPHandler(s.recorder, s.cfg.HTTP.MaxBodyBytes, s.logger)
	handler.Register(mux)

	mux.HandleFunc("POST /monitors/{id}/pause", s.handleSetPaused(true))
	mux.HandleFunc("POST /monitors/{id}/resume", s.handleSetPaused(false))

	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// handleSetPaused builds the pause or resume route handler.
// Params: target paused flag.
// Returns: handler func; resuming puts the monitor back into the new
// state so the next heartbeat re-arms its deadline.
func (s *Service) handleSetPaused(paused bool) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		monitorID := request.PathValue("id")
		err := s.stores.monitors.SetPaused(request.Context(), monitorID, paused, s.clock.Now())
		switch {
		case errors.Is(err, state.ErrNotFound):
			http.Error(writer, "unknown monitor", http.StatusNotFound)
			return
		case err != nil:
			s.logger.Error("pause toggle failed", "monitor", monitorID, "error", err.Error())
			http.Error(writer, "internal error", http.StatusInternalServerError)
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	}
}

// buildStores creates the state backends selected by service mode.
// Params: config snapshot and clock.
// Returns: backend bundle; nats mode shares monitor state and the prune
// watermark across instances while history stays local.
func buildStores(cfg config.Config, clk clock.Clock) (stores, error) {
	memory := state.NewMemoryStore(clk.Now)
	backends := stores{
		monitors:   memory,
		pings:      memory,
		stats:      memory,
		alerts:     memory,
		watermarks: memory,
		uptime:     memory,
	}
	if cfg.Service.Mode != config.ServiceModeNATS {
		return backends, nil
	}

	natsStore, err := state.NewNATSStore(state.NATSConfig{
		URL:                cfg.State.NATS.URL,
		Bucket:             cfg.State.NATS.Bucket,
		AllowCreateBuckets: true,
	})
	if err != nil {
		return stores{}, err
	}
	backends.monitors = natsStore
	backends.watermarks = natsStore
	backends.closer = natsStore
	return backends, nil
}
