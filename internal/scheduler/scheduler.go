package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/alert"
	"vigil/internal/clock"
	"vigil/internal/domain"
	"vigil/internal/incident"
	"vigil/internal/poll"
	"vigil/internal/schedule"
	"vigil/internal/state"
	"vigil/internal/statsqueue"
)

const pruneWatermark = "prune"

// Alerter dispatches one triggered event for one monitor.
// Params: event kind and monitor snapshot.
// Returns: dispatch outcome and audit/store error.
type Alerter interface {
	Trigger(ctx context.Context, kind domain.EventKind, monitor domain.Monitor) (alert.Outcome, error)
}

// Options tunes the periodic driver.
// Params: tick cadence, poll fan-out bound, prune cadence, and retention spans.
// Returns: zero fields fall back to defaults in New.
type Options struct {
	TickInterval    time.Duration
	PollConcurrency int
	PruneInterval   time.Duration
	PingRetention   time.Duration
	AlertRetention  time.Duration
}

// Scheduler is the periodic driver for all time-based transitions.
// Params: stores, poll executor, alerter, incident service, stats producer.
// Returns: tick engine whose every transition is level-triggered and
// re-derivable from stored timestamps, so repeated or overlapping ticks
// converge to the same state.
type Scheduler struct {
	monitors   state.MonitorStore
	pings      state.PingStore
	alertStore state.AlertStore
	watermarks state.WatermarkStore
	uptime     state.UptimeStore
	executor   *poll.Executor
	alerts     Alerter
	incidents  incident.Service
	stats      statsqueue.Producer
	clock      clock.Clock
	logger     *slog.Logger
	opts       Options
}

// New creates scheduler.
// Params: collaborators per field and options.
// Returns: initialized scheduler with defaulted options.
func New(
	monitors state.MonitorStore,
	pings state.PingStore,
	alertStore state.AlertStore,
	watermarks state.WatermarkStore,
	uptime state.UptimeStore,
	executor *poll.Executor,
	alerts Alerter,
	incidents incident.Service,
	stats statsqueue.Producer,
	clk clock.Clock,
	logger *slog.Logger,
	opts Options,
) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.PollConcurrency <= 0 {
		opts.PollConcurrency = 8
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Hour
	}
	if opts.PingRetention <= 0 {
		opts.PingRetention = 30 * 24 * time.Hour
	}
	if opts.AlertRetention <= 0 {
		opts.AlertRetention = 90 * 24 * time.Hour
	}
	return &Scheduler{
		monitors:   monitors,
		pings:      pings,
		alertStore: alertStore,
		watermarks: watermarks,
		uptime:     uptime,
		executor:   executor,
		alerts:     alerts,
		incidents:  incidents,
		stats:      stats,
		clock:      clk,
		logger:     logger,
		opts:       opts,
	}
}

// Run drives ticks at the configured interval until the context ends.
// Params: lifetime context.
// Returns: nil after context cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every time-based transition once over the monitor population.
// Params: context.
// Returns: nothing; per-monitor failures are logged and never abort the
// remaining monitors.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	// Transition sets are fetched before any mutation so one tick moves each
	// monitor by at most one state.
	overdue := s.listOrEmpty(ctx, "overdue", s.monitors.ListOverdue, now)
	pastGrace := s.listOrEmpty(ctx, "past grace", s.monitors.ListPastGrace, now)
	reminderDue := s.listOrEmpty(ctx, "reminder due", s.monitors.ListReminderDue, now)
	duePolls := s.listOrEmpty(ctx, "due polls", s.monitors.ListDuePolls, now)

	for _, monitor := range overdue {
		if err := s.monitors.UpdateStatus(ctx, monitor.ID, domain.StatusLate); err != nil {
			s.logger.Error("late transition failed", "monitor", monitor.ID, "error", err.Error())
		}
	}

	for _, monitor := range pastGrace {
		s.markDown(ctx, monitor, now)
	}

	for _, monitor := range reminderDue {
		if _, err := s.alerts.Trigger(ctx, domain.EventStillDown, monitor); err != nil {
			s.logger.Error("reminder alert failed", "monitor", monitor.ID, "error", err.Error())
		}
	}

	s.pollDue(ctx, duePolls, now)
	s.recordUptime(ctx, now)
	s.pruneIfDue(ctx, now)
}

// markDown applies the late-to-down edge for one monitor.
// Params: context, monitor snapshot, and tick time.
// Returns: nothing; alert and incident failures are logged.
func (s *Scheduler) markDown(ctx context.Context, monitor domain.Monitor, now time.Time) {
	if err := s.monitors.UpdateStatus(ctx, monitor.ID, domain.StatusDown); err != nil {
		s.logger.Error("down transition failed", "monitor", monitor.ID, "error", err.Error())
		return
	}
	if _, err := s.alerts.Trigger(ctx, domain.EventDown, monitor); err != nil {
		s.logger.Error("down alert failed", "monitor", monitor.ID, "error", err.Error())
	}
	if err := s.incidents.OpenDown(ctx, monitor, now); err != nil {
		s.logger.Error("incident open failed", "monitor", monitor.ID, "error", err.Error())
	}
}

// pollDue probes every due HTTP monitor with bounded fan-out.
// Params: context, due monitor set, and tick time.
// Returns: nothing; every poll is bounded by its own check timeout so one
// slow endpoint cannot stall the tick.
func (s *Scheduler) pollDue(ctx context.Context, due []domain.Monitor, now time.Time) {
	if len(due) == 0 {
		return
	}

	semaphore := make(chan struct{}, s.opts.PollConcurrency)
	var wg sync.WaitGroup
	for _, monitor := range due {
		if monitor.Check == nil {
			s.logger.Warn("http monitor without check skipped", "monitor", monitor.ID)
			continue
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(monitor domain.Monitor) {
			defer wg.Done()
			defer func() { <-semaphore }()
			s.pollOne(ctx, monitor, now)
		}(monitor)
	}
	wg.Wait()
}

// pollOne runs one probe and applies the poll-driven half of the machine.
// Params: context, monitor snapshot, and tick time.
// Returns: nothing; outcome drives the same deadline fields as heartbeats.
func (s *Scheduler) pollOne(ctx context.Context, monitor domain.Monitor, now time.Time) {
	result := s.executor.Execute(ctx, *monitor.Check)

	nextCheck := schedule.NextCheck(monitor, now)
	nextExpected, err := schedule.NextExpected(monitor, now)
	if err != nil {
		s.logger.Error("poll schedule computation failed", "monitor", monitor.ID, "error", err.Error())
		return
	}

	previous, err := s.monitors.RecordPollCheck(ctx, monitor.ID, now, nextCheck, result.Success, nextExpected)
	if err != nil {
		s.logger.Error("record poll outcome failed", "monitor", monitor.ID, "error", err.Error())
		return
	}
	wasDown := previous == domain.StatusDown

	event := domain.PingEvent{
		ID:        uuid.NewString(),
		MonitorID: monitor.ID,
		At:        now,
		Source:    "poll",
	}
	if result.Success {
		duration := result.ResponseTimeMS
		event.Kind = domain.PingSuccess
		event.DurationMS = &duration
	} else {
		event.Kind = domain.PingFail
		event.Payload = string(result.Reason) + ": " + result.Error
	}
	if err := s.pings.Append(ctx, event); err != nil {
		s.logger.Error("append poll event failed", "monitor", monitor.ID, "error", err.Error())
	}

	if result.Success {
		if wasDown {
			if err := s.incidents.ResolveDown(ctx, monitor.ID, now); err != nil {
				s.logger.Error("incident resolve failed", "monitor", monitor.ID, "error", err.Error())
			}
			if monitor.RecoveryAlert {
				if _, err := s.alerts.Trigger(ctx, domain.EventUp, monitor); err != nil {
					s.logger.Error("recovery alert failed", "monitor", monitor.ID, "error", err.Error())
				}
			}
		}
		task := statsqueue.Task{MonitorID: monitor.ID, EnqueuedAt: now}
		if err := s.stats.Enqueue(task); err != nil {
			s.logger.Warn("stats recompute enqueue failed", "monitor", monitor.ID, "error", err.Error())
		}
		return
	}

	if previous == domain.StatusUp {
		if _, err := s.alerts.Trigger(ctx, domain.EventFail, monitor); err != nil {
			s.logger.Error("fail alert failed", "monitor", monitor.ID, "error", err.Error())
		}
	}
}

// recordUptime writes one availability minute per active monitor.
// Params: context and tick time.
// Returns: nothing; a monitor counts as up unless currently down.
func (s *Scheduler) recordUptime(ctx context.Context, now time.Time) {
	active, err := s.monitors.ListActive(ctx)
	if err != nil {
		s.logger.Error("list active for uptime failed", "error", err.Error())
		return
	}
	day := now.UTC().Format("2006-01-02")
	for _, monitor := range active {
		up := monitor.Status != domain.StatusDown
		if err := s.uptime.AddUptimeMinute(ctx, monitor.ID, day, up); err != nil {
			s.logger.Error("uptime bucket write failed", "monitor", monitor.ID, "error", err.Error())
		}
	}
}

// pruneIfDue runs retention pruning gated by a persisted watermark.
// Params: context and tick time.
// Returns: nothing; the watermark keeps multiple scheduler instances from
// re-running pruning against each other.
func (s *Scheduler) pruneIfDue(ctx context.Context, now time.Time) {
	last, err := s.watermarks.Watermark(ctx, pruneWatermark)
	switch {
	case errors.Is(err, state.ErrNotFound):
	case err != nil:
		s.logger.Error("prune watermark read failed", "error", err.Error())
		return
	case now.Sub(last) < s.opts.PruneInterval:
		return
	}

	removedPings, err := s.pings.PruneBefore(ctx, now.Add(-s.opts.PingRetention))
	if err != nil {
		s.logger.Error("ping prune failed", "error", err.Error())
		return
	}
	removedAlerts, err := s.alertStore.PruneAlertsBefore(ctx, now.Add(-s.opts.AlertRetention))
	if err != nil {
		s.logger.Error("alert prune failed", "error", err.Error())
		return
	}
	if err := s.watermarks.SetWatermark(ctx, pruneWatermark, now); err != nil {
		s.logger.Error("prune watermark write failed", "error", err.Error())
		return
	}
	s.logger.Info("retention pruning done", "pings", removedPings, "alerts", removedAlerts)
}

// listOrEmpty wraps one predicate read with error logging.
// Params: context, set label, predicate func, and evaluation time.
// Returns: monitor set or empty slice after a logged failure.
func (s *Scheduler) listOrEmpty(ctx context.Context, label string, list func(context.Context, time.Time) ([]domain.Monitor, error), now time.Time) []domain.Monitor {
	monitors, err := list(ctx, now)
	if err != nil {
		s.logger.Error("predicate read failed", "set", label, "error", err.Error())
		return nil
	}
	return monitors
}
