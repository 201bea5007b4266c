package state

import (
	"context"
	"sync"
	"time"

	"vigil/internal/domain"
)

// MemoryStore keeps all monitoring state in process memory.
// Params: in-memory maps guarded by one mutex and injected now function.
// Returns: store implementing every collaborator interface for single-instance
// mode and tests.
type MemoryStore struct {
	mu             sync.RWMutex
	now            func() time.Time
	monitors       map[string]domain.Monitor
	pings          map[string][]domain.PingEvent
	consumedStarts map[string]bool
	stats          map[string]domain.DurationWindowStat
	alerts         []domain.AlertRecord
	watermarks     map[string]time.Time
	uptime         map[string]map[string]domain.UptimeBucket
}

// NewMemoryStore creates in-memory store.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:            now,
		monitors:       make(map[string]domain.Monitor),
		pings:          make(map[string][]domain.PingEvent),
		consumedStarts: make(map[string]bool),
		stats:          make(map[string]domain.DurationWindowStat),
		watermarks:     make(map[string]time.Time),
		uptime:         make(map[string]map[string]domain.UptimeBucket),
	}
}

// Get reads one monitor by id.
// Params: monitor id.
// Returns: monitor copy or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	monitor, ok := s.monitors[id]
	if !ok {
		return domain.Monitor{}, ErrNotFound
	}
	return monitor, nil
}

// Put upserts one monitor definition.
// Params: monitor record; runtime fields of an existing monitor are preserved
// so definition reloads never reset the state machine.
// Returns: nil.
func (s *MemoryStore) Put(_ context.Context, monitor domain.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.monitors[monitor.ID]; ok {
		monitor.Status = existing.Status
		monitor.LastHeartbeatAt = existing.LastHeartbeatAt
		monitor.NextExpectedAt = existing.NextExpectedAt
		monitor.NextCheckAt = existing.NextCheckAt
		monitor.LastAlertAt = existing.LastAlertAt
	} else {
		if monitor.Status == "" {
			monitor.Status = domain.StatusNew
		}
		// A fresh http monitor is due immediately; later polls advance the
		// schedule from their own check time.
		if monitor.Kind == domain.KindHTTP && monitor.NextCheckAt == nil {
			now := s.now()
			monitor.NextCheckAt = &now
		}
	}
	s.monitors[monitor.ID] = monitor
	return nil
}

// ListActive returns all monitors not paused.
// Params: none.
// Returns: monitor copies in map order.
func (s *MemoryStore) ListActive(_ context.Context) ([]domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(s.monitors))
	for _, monitor := range s.monitors {
		if monitor.Status == domain.StatusPaused {
			continue
		}
		out = append(out, monitor)
	}
	return out, nil
}

// ListOverdue returns up monitors whose next-expected time has passed.
// Params: evaluation time.
// Returns: late-transition candidate set.
func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Monitor
	for _, monitor := range s.monitors {
		if monitor.Status != domain.StatusUp || monitor.NextExpectedAt == nil {
			continue
		}
		if now.After(*monitor.NextExpectedAt) {
			out = append(out, monitor)
		}
	}
	return out, nil
}

// ListPastGrace returns late monitors past their grace window.
// Params: evaluation time.
// Returns: down-transition candidate set.
func (s *MemoryStore) ListPastGrace(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Monitor
	for _, monitor := range s.monitors {
		if monitor.Status != domain.StatusLate || monitor.NextExpectedAt == nil {
			continue
		}
		if now.After(monitor.NextExpectedAt.Add(monitor.Grace())) {
			out = append(out, monitor)
		}
	}
	return out, nil
}

// ListReminderDue returns down monitors whose reminder interval elapsed.
// Params: evaluation time.
// Returns: still-down reminder candidate set.
func (s *MemoryStore) ListReminderDue(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Monitor
	for _, monitor := range s.monitors {
		if monitor.Status != domain.StatusDown || monitor.ReminderSec <= 0 || monitor.LastAlertAt == nil {
			continue
		}
		if now.Sub(*monitor.LastAlertAt) >= monitor.Reminder() {
			out = append(out, monitor)
		}
	}
	return out, nil
}

// ListDuePolls returns http monitors whose next-check time has arrived.
// Params: evaluation time.
// Returns: poll candidate set excluding paused monitors.
func (s *MemoryStore) ListDuePolls(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Monitor
	for _, monitor := range s.monitors {
		if monitor.Kind != domain.KindHTTP || monitor.Status == domain.StatusPaused || monitor.NextCheckAt == nil {
			continue
		}
		if !now.Before(*monitor.NextCheckAt) {
			out = append(out, monitor)
		}
	}
	return out, nil
}

// UpdateStatus sets the monitor status field.
// Params: monitor id and target status.
// Returns: ErrNotFound for unknown monitor.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status domain.MonitorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	monitor, ok := s.monitors[id]
	if !ok {
		return ErrNotFound
	}
	monitor.Status = status
	s.monitors[id] = monitor
	return nil
}

// RecordHeartbeat applies one successful heartbeat atomically.
// Params: monitor id, report time, and recomputed next-expected time.
// Returns: status before the update, or ErrNotFound.
func (s *MemoryStore) RecordHeartbeat(_ context.Context, id string, at, nextExpected time.Time) (domain.MonitorStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	monitor, ok := s.monitors[id]
	if !ok {
		return "", ErrNotFound
	}
	previous := monitor.Status
	monitor.Status = domain.StatusUp
	monitor.LastHeartbeatAt = &at
	monitor.NextExpectedAt = &nextExpected
	s.monitors[id] = monitor
	return previous, nil
}

// RecordPollCheck applies one poll outcome atomically.
// Params: monitor id, check time, next poll time, outcome, and next-expected
// time applied only on success.
// Returns: status before the update, or ErrNotFound.
func (s *MemoryStore) RecordPollCheck(_ context.Context, id string, at, nextCheck time.Time, success bool, nextExpected time.Time) (domain.MonitorStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	monitor, ok := s.monitors[id]
	if !ok {
		return "", ErrNotFound
	}
	previous := monitor.Status
	monitor.NextCheckAt = &nextCheck
	if success {
		monitor.Status = domain.StatusUp
		monitor.LastHeartbeatAt = &at
		monitor.NextExpectedAt = &nextExpected
	}
	s.monitors[id] = monitor
	return previous, nil
}

// SetLastAlert updates the last-alert timestamp.
// Params: monitor id and alert time.
// Returns: ErrNotFound for unknown monitor.
func (s *MemoryStore) SetLastAlert(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	monitor, ok := s.monitors[id]
	if !ok {
		return ErrNotFound
	}
	monitor.LastAlertAt = &at
	s.monitors[id] = monitor
	return nil
}

// SetPaused enters or exits the paused state orthogonally to the machine.
// Params: monitor id, paused flag, and command time.
// Returns: ErrNotFound for unknown monitor.
func (s *MemoryStore) SetPaused(_ context.Context, id string, paused bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	monitor, ok := s.monitors[id]
	if !ok {
		return ErrNotFound
	}
	if paused {
		monitor.Status = domain.StatusPaused
	} else {
		// Resume re-enters the machine as never-reported; the next heartbeat
		// or poll rebuilds the schedule fields.
		monitor.Status = domain.StatusNew
		monitor.NextExpectedAt = nil
		if monitor.Kind == domain.KindHTTP {
			monitor.NextCheckAt = &at
		}
	}
	s.monitors[id] = monitor
	return nil
}

// Append stores one immutable ping event.
// Params: ping event row.
// Returns: nil.
func (s *MemoryStore) Append(_ context.Context, event domain.PingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings[event.MonitorID] = append(s.pings[event.MonitorID], event)
	return nil
}

// TakeStart consumes the most recent unconsumed start event for one monitor.
// Params: monitor id and optional run correlation id.
// Returns: consumed start event and found flag.
func (s *MemoryStore) TakeStart(_ context.Context, monitorID, runID string) (domain.PingEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.pings[monitorID]
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		if event.Kind != domain.PingStart || s.consumedStarts[event.ID] {
			continue
		}
		if runID != "" && event.RunID != runID {
			continue
		}
		s.consumedStarts[event.ID] = true
		return event, true, nil
	}
	return domain.PingEvent{}, false, nil
}

// LastDurations returns up to n most recent duration samples.
// Params: monitor id and sample cap.
// Returns: samples ordered oldest to newest.
func (s *MemoryStore) LastDurations(_ context.Context, monitorID string, n int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.pings[monitorID]
	var out []float64
	for i := len(events) - 1; i >= 0 && len(out) < n; i-- {
		if events[i].DurationMS != nil {
			out = append(out, *events[i].DurationMS)
		}
	}
	for left, right := 0, len(out)-1; left < right; left, right = left+1, right-1 {
		out[left], out[right] = out[right], out[left]
	}
	return out, nil
}

// DurationsSince returns all duration samples recorded at or after the bound.
// Params: monitor id and window start.
// Returns: samples ordered oldest to newest.
func (s *MemoryStore) DurationsSince(_ context.Context, monitorID string, since time.Time) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []float64
	for _, event := range s.pings[monitorID] {
		if event.DurationMS == nil || event.At.Before(since) {
			continue
		}
		out = append(out, *event.DurationMS)
	}
	return out, nil
}

// LastFail returns the most recent fail event for one monitor.
// Params: monitor id.
// Returns: fail event or ErrNotFound.
func (s *MemoryStore) LastFail(_ context.Context, monitorID string) (domain.PingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.pings[monitorID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == domain.PingFail {
			return events[i], nil
		}
	}
	return domain.PingEvent{}, ErrNotFound
}

// CountFailsSince counts fail events at or after the bound.
// Params: monitor id and window start.
// Returns: fail event count.
func (s *MemoryStore) CountFailsSince(_ context.Context, monitorID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, event := range s.pings[monitorID] {
		if event.Kind == domain.PingFail && !event.At.Before(since) {
			count++
		}
	}
	return count, nil
}

// ProjectFailsBetween returns fail events across sibling monitors in a window.
// Params: project id, excluded monitor id, and window bounds.
// Returns: fail events from other monitors of the same project.
func (s *MemoryStore) ProjectFailsBetween(_ context.Context, projectID, excludeMonitorID string, from, to time.Time) ([]domain.PingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PingEvent
	for id, monitor := range s.monitors {
		if id == excludeMonitorID || monitor.ProjectID != projectID {
			continue
		}
		for _, event := range s.pings[id] {
			if event.Kind != domain.PingFail || event.At.Before(from) || event.At.After(to) {
				continue
			}
			out = append(out, event)
		}
	}
	return out, nil
}

// PruneBefore removes ping history older than the cutoff.
// Params: retention cutoff time.
// Returns: number of removed events.
func (s *MemoryStore) PruneBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for monitorID, events := range s.pings {
		kept := events[:0]
		for _, event := range events {
			if event.At.Before(cutoff) {
				removed++
				delete(s.consumedStarts, event.ID)
				continue
			}
			kept = append(kept, event)
		}
		s.pings[monitorID] = kept
	}
	return removed, nil
}

// UpsertWindowStat replaces the aggregate for one monitor.
// Params: recomputed window aggregate.
// Returns: nil.
func (s *MemoryStore) UpsertWindowStat(_ context.Context, stat domain.DurationWindowStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stat.MonitorID] = stat
	return nil
}

// LatestWindowStat reads the current aggregate for one monitor.
// Params: monitor id.
// Returns: aggregate or ErrNotFound.
func (s *MemoryStore) LatestWindowStat(_ context.Context, monitorID string) (domain.DurationWindowStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.stats[monitorID]
	if !ok {
		return domain.DurationWindowStat{}, ErrNotFound
	}
	return stat, nil
}

// AppendAlert stores one immutable audit record.
// Params: alert record.
// Returns: nil.
func (s *MemoryStore) AppendAlert(_ context.Context, record domain.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, record)
	return nil
}

// LastOfKind returns creation time of the newest record of one kind.
// Params: monitor id and event kind.
// Returns: record time or ErrNotFound.
func (s *MemoryStore) LastOfKind(_ context.Context, monitorID string, kind domain.EventKind) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.alerts) - 1; i >= 0; i-- {
		record := s.alerts[i]
		if record.MonitorID == monitorID && record.EventKind == kind {
			return record.CreatedAt, nil
		}
	}
	return time.Time{}, ErrNotFound
}

// AlertRecords returns copies of all audit records for assertions.
// Params: none.
// Returns: records in append order.
func (s *MemoryStore) AlertRecords() []domain.AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AlertRecord(nil), s.alerts...)
}

// PruneAlertsBefore removes audit records older than the cutoff.
// Params: retention cutoff time.
// Returns: number of removed records.
func (s *MemoryStore) PruneAlertsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	removed := 0
	for _, record := range s.alerts {
		if record.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	s.alerts = kept
	return removed, nil
}

// Watermark reads one named last-run marker.
// Params: watermark name.
// Returns: marker time or ErrNotFound.
func (s *MemoryStore) Watermark(_ context.Context, name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.watermarks[name]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return at, nil
}

// SetWatermark writes one named last-run marker.
// Params: watermark name and run time.
// Returns: nil.
func (s *MemoryStore) SetWatermark(_ context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[name] = at
	return nil
}

// AddUptimeMinute accounts one evaluated minute for a monitor day bucket.
// Params: monitor id, day key, and availability flag.
// Returns: nil.
func (s *MemoryStore) AddUptimeMinute(_ context.Context, monitorID, day string, up bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.uptime[monitorID]
	if !ok {
		days = make(map[string]domain.UptimeBucket)
		s.uptime[monitorID] = days
	}
	bucket, ok := days[day]
	if !ok {
		bucket = domain.UptimeBucket{MonitorID: monitorID, Day: day}
	}
	bucket.TotalMinutes++
	if up {
		bucket.UpMinutes++
	}
	days[day] = bucket
	return nil
}

// Day reads one uptime bucket.
// Params: monitor id and day key.
// Returns: bucket or ErrNotFound.
func (s *MemoryStore) Day(_ context.Context, monitorID, day string) (domain.UptimeBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.uptime[monitorID][day]
	if !ok {
		return domain.UptimeBucket{}, ErrNotFound
	}
	return bucket, nil
}
