package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vigil/internal/clock"
	"vigil/internal/domain"
	"vigil/internal/notify"
	"vigil/internal/state"
)

// Outcome reports the result of one trigger call.
// Params: attempt, aggregate success, and cooldown-skip flags.
// Returns: contract result for state machine callers.
type Outcome struct {
	Sent    bool
	Success bool
	Skipped bool
}

// SenderSource resolves channel configs into transports.
// Params: validated channel config.
// Returns: channel sender or construction error.
type SenderSource interface {
	Sender(cfg domain.ChannelConfig) (notify.ChannelSender, error)
}

// Dispatcher applies dedup policy and fans one event out to all channels.
// Params: stores, sender source, context builder, project snapshot, and clock.
// Returns: alert dispatch engine shared by scheduler and ingestion.
type Dispatcher struct {
	monitors state.MonitorStore
	alerts   state.AlertStore
	senders  SenderSource
	builder  *ContextBuilder
	project  domain.Project
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDispatcher creates alert dispatcher.
// Params: monitor/alert stores, sender source, context builder, project, clock, logger.
// Returns: initialized dispatcher.
func NewDispatcher(
	monitors state.MonitorStore,
	alerts state.AlertStore,
	senders SenderSource,
	builder *ContextBuilder,
	project domain.Project,
	clk clock.Clock,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		monitors: monitors,
		alerts:   alerts,
		senders:  senders,
		builder:  builder,
		project:  project,
		clock:    clk,
		logger:   logger,
	}
}

// Trigger dispatches one event for one monitor under cooldown policy.
// Params: context, event kind, and monitor snapshot.
// Returns: outcome flags and error for audit/store failures.
func (d *Dispatcher) Trigger(ctx context.Context, kind domain.EventKind, monitor domain.Monitor) (Outcome, error) {
	now := d.clock.Now()

	if cooldown := Cooldown(kind); cooldown > 0 {
		last, err := d.alerts.LastOfKind(ctx, monitor.ID, kind)
		switch {
		case err == nil:
			if now.Sub(last) < cooldown {
				return Outcome{Skipped: true}, nil
			}
		case errors.Is(err, state.ErrNotFound):
		default:
			return Outcome{}, fmt.Errorf("cooldown lookup: %w", err)
		}
	}

	if len(monitor.Channels) == 0 {
		return Outcome{}, nil
	}

	event := notify.Event{
		Kind:    kind,
		Monitor: monitor,
		Project: d.project,
		Context: d.builder.Build(ctx, monitor),
		At:      now,
	}

	identities, deliveryErrs := d.fanOut(ctx, monitor.Channels, event)

	success := true
	errorParts := make([]string, 0, len(deliveryErrs))
	for i, deliveryErr := range deliveryErrs {
		if deliveryErr == nil {
			continue
		}
		success = false
		errorParts = append(errorParts, identities[i]+": "+deliveryErr.Error())
	}

	record := domain.AlertRecord{
		ID:        uuid.NewString(),
		MonitorID: monitor.ID,
		EventKind: kind,
		Channels:  identities,
		Context:   event.Context,
		Success:   success,
		Errors:    strings.Join(errorParts, "; "),
		CreatedAt: now,
	}
	if err := d.alerts.AppendAlert(ctx, record); err != nil {
		return Outcome{Sent: true, Success: success}, fmt.Errorf("write alert record: %w", err)
	}
	if err := d.monitors.SetLastAlert(ctx, monitor.ID, now); err != nil {
		d.logger.Warn("update last alert failed", "monitor", monitor.ID, "error", err.Error())
	}

	return Outcome{Sent: true, Success: success}, nil
}

// fanOut delivers one event to every channel concurrently and settles all
// attempts before aggregating, so no channel blocks or fails another.
// Params: context, channel configs, and event payload.
// Returns: channel identities and per-channel delivery errors by index.
func (d *Dispatcher) fanOut(ctx context.Context, channels []domain.ChannelConfig, event notify.Event) ([]string, []error) {
	identities := make([]string, len(channels))
	deliveryErrs := make([]error, len(channels))

	var wg sync.WaitGroup
	for i, cfg := range channels {
		identities[i] = cfg.Identity()
		wg.Add(1)
		go func(i int, cfg domain.ChannelConfig) {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					deliveryErrs[i] = fmt.Errorf("channel panic: %v", recovered)
				}
			}()
			sender, err := d.senders.Sender(cfg)
			if err != nil {
				deliveryErrs[i] = err
				return
			}
			deliveryErrs[i] = sender.Send(ctx, event)
		}(i, cfg)
	}
	wg.Wait()

	return identities, deliveryErrs
}
