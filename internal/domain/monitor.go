package domain

import "time"

// MonitorStatus is current state machine position of one monitor.
// Params: new/up/late/down/paused state constants.
// Returns: status mutated only by ingestion, scheduler tick, or explicit pause/resume.
type MonitorStatus string

const (
	// StatusNew indicates monitor never reported.
	StatusNew MonitorStatus = "new"
	// StatusUp indicates monitor is on schedule.
	StatusUp MonitorStatus = "up"
	// StatusLate indicates heartbeat is overdue but within grace.
	StatusLate MonitorStatus = "late"
	// StatusDown indicates grace period was exceeded.
	StatusDown MonitorStatus = "down"
	// StatusPaused indicates monitor is excluded from evaluation by explicit command.
	StatusPaused MonitorStatus = "paused"
)

// MonitorKind distinguishes heartbeat-driven and poll-driven monitors.
// Params: cron/http kind constants.
// Returns: evaluation mode selector for scheduler.
type MonitorKind string

const (
	// KindCron marks scheduled-job monitors driven by inbound heartbeats.
	KindCron MonitorKind = "cron"
	// KindHTTP marks endpoint monitors driven by outbound polls.
	KindHTTP MonitorKind = "http"
)

// Sensitivity selects duration anomaly z-score threshold.
// Params: low/normal/high sensitivity constants.
// Returns: threshold selector for analytics evaluation.
type Sensitivity string

const (
	// SensitivityLow requires |z| >= 3.5 before flagging an anomaly.
	SensitivityLow Sensitivity = "low"
	// SensitivityNormal requires |z| >= 3.0 before flagging an anomaly.
	SensitivityNormal Sensitivity = "normal"
	// SensitivityHigh requires |z| >= 2.5 before flagging an anomaly.
	SensitivityHigh Sensitivity = "high"
)

// HTTPCheck describes one bounded endpoint probe.
// Params: request shape, timeout, and expected response predicates.
// Returns: poll executor input.
type HTTPCheck struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	TimeoutSec     int               `json:"timeout_sec,omitempty"`
	ExpectedStatus int               `json:"expected_status,omitempty"`
	BodySubstring  string            `json:"body_substring,omitempty"`
}

// Monitor is one observed scheduled job or HTTP endpoint.
// Params: schedule spec, grace policy, alert policy, and state machine fields.
// Returns: persisted monitor record provisioned from configuration.
type Monitor struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"project_id"`
	Name            string          `json:"name"`
	Kind            MonitorKind     `json:"kind"`
	PeriodSec       int             `json:"period_sec,omitempty"`
	CronExpr        string          `json:"cron_expr,omitempty"`
	GraceSec        int             `json:"grace_sec"`
	PollIntervalSec int             `json:"poll_interval_sec,omitempty"`
	Check           *HTTPCheck      `json:"check,omitempty"`
	Status          MonitorStatus   `json:"status"`
	LastHeartbeatAt *time.Time      `json:"last_heartbeat_at,omitempty"`
	NextExpectedAt  *time.Time      `json:"next_expected_at,omitempty"`
	NextCheckAt     *time.Time      `json:"next_check_at,omitempty"`
	LastAlertAt     *time.Time      `json:"last_alert_at,omitempty"`
	RecoveryAlert   bool            `json:"recovery_alert"`
	ReminderSec     int             `json:"reminder_sec,omitempty"`
	Sensitivity     Sensitivity     `json:"sensitivity"`
	Channels        []ChannelConfig `json:"channels,omitempty"`
}

// Grace returns configured grace period as duration.
// Params: none.
// Returns: grace window after next-expected before down transition.
func (m Monitor) Grace() time.Duration {
	return time.Duration(m.GraceSec) * time.Second
}

// Reminder returns configured still-down reminder interval.
// Params: none.
// Returns: reminder spacing or zero when reminders are disabled.
func (m Monitor) Reminder() time.Duration {
	return time.Duration(m.ReminderSec) * time.Second
}

// Project is minimal project snapshot carried in alert payloads.
// Params: stable id and display name.
// Returns: boundary contract metadata for channel transports.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UptimeBucket accumulates per-day availability minutes for one monitor.
// Params: day key in YYYY-MM-DD form and minute counters.
// Returns: availability aggregate consumed by external dashboards.
type UptimeBucket struct {
	MonitorID    string `json:"monitor_id"`
	Day          string `json:"day"`
	UpMinutes    int    `json:"up_minutes"`
	TotalMinutes int    `json:"total_minutes"`
}
