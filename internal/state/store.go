package state

import (
	"context"
	"errors"
	"time"

	"vigil/internal/domain"
)

var (
	// ErrNotFound indicates absent monitor/record/key.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates revision mismatch for CAS update.
	ErrConflict = errors.New("revision conflict")
)

// MonitorStore provides monitor persistence and predicate reads for the tick.
// Params: atomic status/outcome updates and evaluation set queries.
// Returns: backend persistence behavior consumed by scheduler and ingestion.
type MonitorStore interface {
	Get(ctx context.Context, id string) (domain.Monitor, error)
	Put(ctx context.Context, monitor domain.Monitor) error
	ListActive(ctx context.Context) ([]domain.Monitor, error)
	ListOverdue(ctx context.Context, now time.Time) ([]domain.Monitor, error)
	ListPastGrace(ctx context.Context, now time.Time) ([]domain.Monitor, error)
	ListReminderDue(ctx context.Context, now time.Time) ([]domain.Monitor, error)
	ListDuePolls(ctx context.Context, now time.Time) ([]domain.Monitor, error)
	UpdateStatus(ctx context.Context, id string, status domain.MonitorStatus) error
	RecordHeartbeat(ctx context.Context, id string, at, nextExpected time.Time) (domain.MonitorStatus, error)
	RecordPollCheck(ctx context.Context, id string, at, nextCheck time.Time, success bool, nextExpected time.Time) (domain.MonitorStatus, error)
	SetLastAlert(ctx context.Context, id string, at time.Time) error
	SetPaused(ctx context.Context, id string, paused bool, at time.Time) error
}

// PingStore provides append-only heartbeat history operations.
// Params: pairing take, duration reads, failure lookups, and pruning.
// Returns: history behavior consumed by ingestion, analytics, and context builder.
type PingStore interface {
	Append(ctx context.Context, event domain.PingEvent) error
	// TakeStart consumes the most recent unconsumed start event; when runID is
	// non-empty only a start carrying the same run id is eligible.
	TakeStart(ctx context.Context, monitorID, runID string) (domain.PingEvent, bool, error)
	LastDurations(ctx context.Context, monitorID string, n int) ([]float64, error)
	DurationsSince(ctx context.Context, monitorID string, since time.Time) ([]float64, error)
	LastFail(ctx context.Context, monitorID string) (domain.PingEvent, error)
	CountFailsSince(ctx context.Context, monitorID string, since time.Time) (int, error)
	ProjectFailsBetween(ctx context.Context, projectID, excludeMonitorID string, from, to time.Time) ([]domain.PingEvent, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// StatStore persists recomputed duration window aggregates.
// Params: upsert by monitor and latest read.
// Returns: aggregate storage for the stats queue and context builder.
type StatStore interface {
	UpsertWindowStat(ctx context.Context, stat domain.DurationWindowStat) error
	LatestWindowStat(ctx context.Context, monitorID string) (domain.DurationWindowStat, error)
}

// AlertStore persists immutable dispatch audit records.
// Params: append, cooldown lookup by event kind, and pruning.
// Returns: audit storage for the alert dispatcher.
type AlertStore interface {
	AppendAlert(ctx context.Context, record domain.AlertRecord) error
	LastOfKind(ctx context.Context, monitorID string, kind domain.EventKind) (time.Time, error)
	PruneAlertsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// WatermarkStore persists last-run markers for coarse periodic tasks.
// Params: named watermark read/write.
// Returns: persisted gate shared across scheduler instances.
type WatermarkStore interface {
	Watermark(ctx context.Context, name string) (time.Time, error)
	SetWatermark(ctx context.Context, name string, at time.Time) error
}

// UptimeStore accumulates per-monitor per-day availability minutes.
// Params: minute accounting and day bucket read.
// Returns: availability aggregates for external dashboards.
type UptimeStore interface {
	AddUptimeMinute(ctx context.Context, monitorID, day string, up bool) error
	Day(ctx context.Context, monitorID, day string) (domain.UptimeBucket, error)
}
