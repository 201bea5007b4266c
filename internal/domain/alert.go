package domain

import "time"

// EventKind identifies one alert trigger cause.
// Params: down/up/fail/still_down event constants.
// Returns: boundary contract identifier shared with channel transports.
type EventKind string

const (
	// EventDown fires on the late-to-down transition edge.
	EventDown EventKind = "down"
	// EventUp fires on recovery out of down when the recovery flag is set.
	EventUp EventKind = "up"
	// EventFail fires on a fail ping while the monitor is up, under cooldown.
	EventFail EventKind = "fail"
	// EventStillDown fires as a reminder while the monitor remains down.
	EventStillDown EventKind = "still_down"
)

// AnomalyVerdict is typed duration anomaly classification for one sample.
// Params: detection method, severity, score, and expected value range.
// Returns: analytics output embedded in alert context.
type AnomalyVerdict struct {
	Anomalous    bool    `json:"anomalous"`
	Type         string  `json:"type,omitempty"`
	Severity     string  `json:"severity,omitempty"`
	ZScore       float64 `json:"z_score,omitempty"`
	DriftPercent float64 `json:"drift_percent,omitempty"`
	ExpectedLow  float64 `json:"expected_low,omitempty"`
	ExpectedHigh float64 `json:"expected_high,omitempty"`
}

// DurationContext enriches an alert with recent duration behavior.
// Params: last raw samples oldest to newest, verdict, trend, and mean.
// Returns: optional alert context section.
type DurationContext struct {
	RecentMS []float64       `json:"recent_ms"`
	Anomaly  *AnomalyVerdict `json:"anomaly,omitempty"`
	Trend    string          `json:"trend"`
	MeanMS   float64         `json:"mean_ms"`
}

// ErrorPatternContext enriches an alert with recent failure evidence.
// Params: truncated last failure payload and trailing 24h failure count.
// Returns: optional alert context section.
type ErrorPatternContext struct {
	LastErrorSnippet string `json:"last_error_snippet,omitempty"`
	FailureCount24h  int    `json:"failure_count_24h"`
}

// RelatedFailure is one correlated failure on another monitor in the same project.
// Params: monitor identity and failure timestamp.
// Returns: correlation context entry.
type RelatedFailure struct {
	MonitorID   string    `json:"monitor_id"`
	MonitorName string    `json:"monitor_name,omitempty"`
	At          time.Time `json:"at"`
}

// CorrelationContext enriches an alert with cross-monitor failures near now.
// Params: deduplicated related failures capped at ten.
// Returns: optional alert context section.
type CorrelationContext struct {
	Related []RelatedFailure `json:"related"`
}

// AlertContext is ephemeral enrichment composed for one triggered event.
// Params: independent optional sections; nil sections are omitted entirely.
// Returns: context embedded in the audit record and channel payloads.
type AlertContext struct {
	Duration     *DurationContext     `json:"duration,omitempty"`
	ErrorPattern *ErrorPatternContext `json:"error_pattern,omitempty"`
	Correlation  *CorrelationContext  `json:"correlation,omitempty"`
}

// AlertRecord is immutable audit entry written once per dispatch attempt.
// Params: event kind, channel identity snapshot, context, and aggregate outcome.
// Returns: append-only delivery audit row.
type AlertRecord struct {
	ID        string       `json:"id"`
	MonitorID string       `json:"monitor_id"`
	EventKind EventKind    `json:"event_kind"`
	Channels  []string     `json:"channels"`
	Context   AlertContext `json:"context"`
	Success   bool         `json:"success"`
	Errors    string       `json:"errors,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
