package domain

import "time"

// PingKind classifies one heartbeat event.
// Params: start/success/fail event constants.
// Returns: classification consumed by pairing and state transitions.
type PingKind string

const (
	// PingStart marks the beginning of one job run.
	PingStart PingKind = "start"
	// PingSuccess marks a finished run and drives recovery transitions.
	PingSuccess PingKind = "success"
	// PingFail marks a failed run; it never changes monitor status.
	PingFail PingKind = "fail"
)

// Terminal reports whether the kind closes a run and may pair with a start.
// Params: none.
// Returns: true for success and fail events.
func (k PingKind) Terminal() bool {
	return k == PingSuccess || k == PingFail
}

// PingEvent is one immutable append-only heartbeat record.
// Params: monitor binding, kind, timing, optional pairing and payload fields.
// Returns: history row written once by ingestion and never mutated.
type PingEvent struct {
	ID           string    `json:"id"`
	MonitorID    string    `json:"monitor_id"`
	Kind         PingKind  `json:"kind"`
	At           time.Time `json:"at"`
	DurationMS   *float64  `json:"duration_ms,omitempty"`
	StartEventID string    `json:"start_event_id,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
	Payload      string    `json:"payload,omitempty"`
	Source       string    `json:"source,omitempty"`
}

// DurationWindowStat is recomputed trailing-window duration aggregate for one monitor.
// Params: window bounds and order statistics over all samples inside the window.
// Returns: aggregate satisfying p50 <= p95 <= p99 under linear interpolation.
type DurationWindowStat struct {
	MonitorID   string    `json:"monitor_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	SampleCount int       `json:"sample_count"`
	Mean        float64   `json:"mean"`
	P50         float64   `json:"p50"`
	P95         float64   `json:"p95"`
	P99         float64   `json:"p99"`
	StdDev      float64   `json:"stddev"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
}
