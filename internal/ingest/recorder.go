package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/alert"
	"vigil/internal/clock"
	"vigil/internal/domain"
	"vigil/internal/incident"
	"vigil/internal/schedule"
	"vigil/internal/state"
	"vigil/internal/statsqueue"
)

// Alerter dispatches one triggered event for one monitor.
// Params: event kind and monitor snapshot.
// Returns: dispatch outcome and audit/store error.
type Alerter interface {
	Trigger(ctx context.Context, kind domain.EventKind, monitor domain.Monitor) (alert.Outcome, error)
}

// Result reports what one recorded ping did to the monitor.
// Params: stored event id and whether the monitor recovered out of down.
// Returns: acknowledgment payload for the ingestion boundary.
type Result struct {
	EventID string `json:"event_id"`
	WasDown bool   `json:"was_down"`
}

// Recorder performs the ping-triggered half of the state machine.
// Params: stores, stats producer, incident service, alerter, clock, logger.
// Returns: ingestion engine shared by the HTTP boundary and tests.
type Recorder struct {
	monitors  state.MonitorStore
	pings     state.PingStore
	stats     statsqueue.Producer
	incidents incident.Service
	alerts    Alerter
	clock     clock.Clock
	logger    *slog.Logger
}

// NewRecorder creates ping recorder.
// Params: collaborators per field.
// Returns: initialized recorder.
func NewRecorder(
	monitors state.MonitorStore,
	pings state.PingStore,
	stats statsqueue.Producer,
	incidents incident.Service,
	alerts Alerter,
	clk clock.Clock,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		monitors:  monitors,
		pings:     pings,
		stats:     stats,
		incidents: incidents,
		alerts:    alerts,
		clock:     clk,
		logger:    logger,
	}
}

// Record ingests one heartbeat event for one monitor.
// Params: monitor id, ping kind, raw payload, source tag, and optional
// run-correlation token; a terminal kind pairs with an unconsumed start.
// Returns: result with the recovery flag; ErrNotFound for unknown monitors.
func (r *Recorder) Record(ctx context.Context, monitorID string, kind domain.PingKind, payload, source, runID string) (Result, error) {
	monitor, err := r.monitors.Get(ctx, monitorID)
	if err != nil {
		return Result{}, err
	}

	now := r.clock.Now()
	event := domain.PingEvent{
		ID:        uuid.NewString(),
		MonitorID: monitorID,
		Kind:      kind,
		At:        now,
		RunID:     runID,
		Payload:   payload,
		Source:    source,
	}

	if kind.Terminal() {
		start, paired, err := r.pings.TakeStart(ctx, monitorID, runID)
		if err != nil {
			return Result{}, fmt.Errorf("take start event: %w", err)
		}
		if paired {
			duration := float64(now.Sub(start.At).Microseconds()) / 1000.0
			event.DurationMS = &duration
			event.StartEventID = start.ID
		}
	}

	if err := r.pings.Append(ctx, event); err != nil {
		return Result{}, fmt.Errorf("append ping event: %w", err)
	}

	result := Result{EventID: event.ID}

	// Paused monitors keep their history but stay out of the state machine.
	if monitor.Status != domain.StatusPaused {
		switch kind {
		case domain.PingSuccess:
			wasDown, err := r.applyHeartbeat(ctx, monitor, now)
			if err != nil {
				return Result{}, err
			}
			result.WasDown = wasDown
		case domain.PingFail:
			if monitor.Status == domain.StatusUp {
				if outcome, err := r.alerts.Trigger(ctx, domain.EventFail, monitor); err != nil {
					r.logger.Error("fail alert dispatch failed", "monitor", monitor.ID, "error", err.Error())
				} else if outcome.Skipped {
					r.logger.Debug("fail alert under cooldown", "monitor", monitor.ID)
				}
			}
		}
	}

	if event.DurationMS != nil {
		task := statsqueue.Task{MonitorID: monitorID, EnqueuedAt: now}
		if err := r.stats.Enqueue(task); err != nil {
			r.logger.Warn("stats recompute enqueue failed", "monitor", monitorID, "error", err.Error())
		}
	}

	return result, nil
}

// applyHeartbeat advances the machine for one success heartbeat.
// Params: monitor snapshot and report time.
// Returns: whether the monitor was down before the heartbeat.
func (r *Recorder) applyHeartbeat(ctx context.Context, monitor domain.Monitor, at time.Time) (bool, error) {
	nextExpected, err := schedule.NextExpected(monitor, at)
	if err != nil {
		return false, fmt.Errorf("compute next expected: %w", err)
	}

	previous, err := r.monitors.RecordHeartbeat(ctx, monitor.ID, at, nextExpected)
	if err != nil {
		return false, fmt.Errorf("record heartbeat: %w", err)
	}
	if previous != domain.StatusDown {
		return false, nil
	}

	if err := r.incidents.ResolveDown(ctx, monitor.ID, at); err != nil {
		r.logger.Error("incident resolve failed", "monitor", monitor.ID, "error", err.Error())
	}
	if monitor.RecoveryAlert {
		if _, err := r.alerts.Trigger(ctx, domain.EventUp, monitor); err != nil {
			r.logger.Error("recovery alert dispatch failed", "monitor", monitor.ID, "error", err.Error())
		}
	}
	return true, nil
}
