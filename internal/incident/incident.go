package incident

import (
	"context"
	"sync"
	"time"

	"vigil/internal/domain"
)

// Service is the incident-lifecycle capability consumed on down/up edges.
// Params: monitor going down or recovering.
// Returns: idempotent open/resolve operations; both are no-ops when the
// target state is already in place.
type Service interface {
	OpenDown(ctx context.Context, monitor domain.Monitor, at time.Time) error
	ResolveDown(ctx context.Context, monitorID string, at time.Time) error
}

// Noop disables incident management entirely.
// Params: none.
// Returns: service whose operations always succeed without effect.
type Noop struct{}

// OpenDown does nothing.
// Params: ignored.
// Returns: nil.
func (Noop) OpenDown(context.Context, domain.Monitor, time.Time) error { return nil }

// ResolveDown does nothing.
// Params: ignored.
// Returns: nil.
func (Noop) ResolveDown(context.Context, string, time.Time) error { return nil }

// Record is one auto-opened incident tracked by the in-memory service.
// Params: monitor binding and lifecycle timestamps.
// Returns: incident row readable by tests and dashboards.
type Record struct {
	MonitorID  string
	Title      string
	OpenedAt   time.Time
	ResolvedAt *time.Time
}

// Memory tracks auto-incidents in process memory.
// Params: open incident map keyed by monitor id plus closed history.
// Returns: idempotent in-memory incident service.
type Memory struct {
	mu     sync.Mutex
	open   map[string]*Record
	closed []Record
}

// NewMemory creates in-memory incident service.
// Params: none.
// Returns: initialized service.
func NewMemory() *Memory {
	return &Memory{open: make(map[string]*Record)}
}

// OpenDown opens or reuses the incident for one monitor going down.
// Params: monitor and open time.
// Returns: nil; reopening an already-open incident has no effect.
func (m *Memory) OpenDown(_ context.Context, monitor domain.Monitor, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.open[monitor.ID]; exists {
		return nil
	}
	m.open[monitor.ID] = &Record{
		MonitorID: monitor.ID,
		Title:     monitor.Name + " is down",
		OpenedAt:  at,
	}
	return nil
}

// ResolveDown closes the open auto-incident for one monitor.
// Params: monitor id and resolve time.
// Returns: nil; resolving without an open incident has no effect.
func (m *Memory) ResolveDown(_ context.Context, monitorID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.open[monitorID]
	if !exists {
		return nil
	}
	delete(m.open, monitorID)
	record.ResolvedAt = &at
	m.closed = append(m.closed, *record)
	return nil
}

// Open reports whether one monitor currently has an open auto-incident.
// Params: monitor id.
// Returns: open flag.
func (m *Memory) Open(monitorID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.open[monitorID]
	return exists
}

// Closed returns resolved incident history.
// Params: none.
// Returns: records in resolve order.
func (m *Memory) Closed() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.closed...)
}
