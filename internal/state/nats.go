package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"vigil/internal/domain"
)

const (
	monitorKeyPrefix   = "monitor."
	watermarkKeyPrefix = "watermark."
	// casAttempts bounds optimistic retry of read-modify-write updates.
	casAttempts = 5
)

// NATSConfig holds JetStream KV connection settings.
// Params: server URLs, bucket name, and bucket auto-create policy.
// Returns: settings consumed by NewNATSStore.
type NATSConfig struct {
	URL                []string
	Bucket             string
	AllowCreateBuckets bool
}

// NATSStore persists monitors and watermarks in a JetStream KV bucket so
// multiple scheduler instances share state and the prune watermark.
// Params: NATS connection and KV bucket handle.
// Returns: KV-backed MonitorStore and WatermarkStore implementation.
type NATSStore struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// NewNATSStore connects and opens (or creates) the state bucket.
// Params: NATS KV settings.
// Returns: initialized store or setup error.
func NewNATSStore(settings NATSConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(settings.Bucket)
	if err != nil {
		if !settings.AllowCreateBuckets {
			nc.Close()
			return nil, fmt.Errorf("open bucket %q: %w", settings.Bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: settings.Bucket})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create bucket %q: %w", settings.Bucket, err)
		}
	}

	return &NATSStore{nc: nc, kv: kv}, nil
}

// Close releases the NATS connection.
// Params: none.
// Returns: nil.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}

// Get reads one monitor by id.
// Params: monitor id.
// Returns: decoded monitor or ErrNotFound.
func (s *NATSStore) Get(_ context.Context, id string) (domain.Monitor, error) {
	monitor, _, err := s.getMonitor(id)
	return monitor, err
}

func (s *NATSStore) getMonitor(id string) (domain.Monitor, uint64, error) {
	entry, err := s.kv.Get(monitorKeyPrefix + id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return domain.Monitor{}, 0, ErrNotFound
		}
		return domain.Monitor{}, 0, fmt.Errorf("kv get monitor: %w", err)
	}
	var monitor domain.Monitor
	if err := json.Unmarshal(entry.Value(), &monitor); err != nil {
		return domain.Monitor{}, 0, fmt.Errorf("decode monitor %s: %w", id, err)
	}
	return monitor, entry.Revision(), nil
}

func (s *NATSStore) putMonitor(monitor domain.Monitor, revision uint64) error {
	payload, err := json.Marshal(monitor)
	if err != nil {
		return fmt.Errorf("encode monitor %s: %w", monitor.ID, err)
	}
	key := monitorKeyPrefix + monitor.ID
	if revision == 0 {
		if _, err := s.kv.Put(key, payload); err != nil {
			return fmt.Errorf("kv put monitor: %w", err)
		}
		return nil
	}
	if _, err := s.kv.Update(key, payload, revision); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return nil
}

// Put upserts one monitor definition preserving runtime fields.
// Params: monitor record from configuration.
// Returns: KV write error.
func (s *NATSStore) Put(_ context.Context, monitor domain.Monitor) error {
	existing, revision, err := s.getMonitor(monitor.ID)
	switch {
	case err == nil:
		monitor.Status = existing.Status
		monitor.LastHeartbeatAt = existing.LastHeartbeatAt
		monitor.NextExpectedAt = existing.NextExpectedAt
		monitor.NextCheckAt = existing.NextCheckAt
		monitor.LastAlertAt = existing.LastAlertAt
		return s.putMonitor(monitor, revision)
	case errors.Is(err, ErrNotFound):
		if monitor.Status == "" {
			monitor.Status = domain.StatusNew
		}
		// A fresh http monitor is due immediately; later polls advance the
		// schedule from their own check time.
		if monitor.Kind == domain.KindHTTP && monitor.NextCheckAt == nil {
			now := time.Now()
			monitor.NextCheckAt = &now
		}
		return s.putMonitor(monitor, 0)
	default:
		return err
	}
}

// listMonitors scans all monitor keys and decodes them.
// Params: none.
// Returns: full monitor population.
func (s *NATSStore) listMonitors() ([]domain.Monitor, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}

	out := make([]domain.Monitor, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, monitorKeyPrefix) {
			continue
		}
		monitor, _, err := s.getMonitor(strings.TrimPrefix(key, monitorKeyPrefix))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, monitor)
	}
	return out, nil
}

func (s *NATSStore) listByPredicate(keep func(domain.Monitor) bool) ([]domain.Monitor, error) {
	monitors, err := s.listMonitors()
	if err != nil {
		return nil, err
	}
	var out []domain.Monitor
	for _, monitor := range monitors {
		if keep(monitor) {
			out = append(out, monitor)
		}
	}
	return out, nil
}

// ListActive returns all monitors not paused.
// Params: none.
// Returns: monitor set or scan error.
func (s *NATSStore) ListActive(_ context.Context) ([]domain.Monitor, error) {
	return s.listByPredicate(func(monitor domain.Monitor) bool {
		return monitor.Status != domain.StatusPaused
	})
}

// ListOverdue returns up monitors whose next-expected time has passed.
// Params: evaluation time.
// Returns: late-transition candidate set.
func (s *NATSStore) ListOverdue(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	return s.listByPredicate(func(monitor domain.Monitor) bool {
		return monitor.Status == domain.StatusUp &&
			monitor.NextExpectedAt != nil && now.After(*monitor.NextExpectedAt)
	})
}

// ListPastGrace returns late monitors past their grace window.
// Params: evaluation time.
// Returns: down-transition candidate set.
func (s *NATSStore) ListPastGrace(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	return s.listByPredicate(func(monitor domain.Monitor) bool {
		return monitor.Status == domain.StatusLate &&
			monitor.NextExpectedAt != nil && now.After(monitor.NextExpectedAt.Add(monitor.Grace()))
	})
}

// ListReminderDue returns down monitors whose reminder interval elapsed.
// Params: evaluation time.
// Returns: still-down reminder candidate set.
func (s *NATSStore) ListReminderDue(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	return s.listByPredicate(func(monitor domain.Monitor) bool {
		return monitor.Status == domain.StatusDown && monitor.ReminderSec > 0 &&
			monitor.LastAlertAt != nil && now.Sub(*monitor.LastAlertAt) >= monitor.Reminder()
	})
}

// ListDuePolls returns http monitors whose next-check time has arrived.
// Params: evaluation time.
// Returns: poll candidate set excluding paused monitors.
func (s *NATSStore) ListDuePolls(_ context.Context, now time.Time) ([]domain.Monitor, error) {
	return s.listByPredicate(func(monitor domain.Monitor) bool {
		return monitor.Kind == domain.KindHTTP && monitor.Status != domain.StatusPaused &&
			monitor.NextCheckAt != nil && !now.Before(*monitor.NextCheckAt)
	})
}

// update applies one mutation under optimistic revision CAS.
// Params: monitor id and mutation callback.
// Returns: ErrConflict after exhausted attempts or underlying error.
func (s *NATSStore) update(id string, mutate func(*domain.Monitor)) (domain.MonitorStatus, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		monitor, revision, err := s.getMonitor(id)
		if err != nil {
			return "", err
		}
		previous := monitor.Status
		mutate(&monitor)
		err = s.putMonitor(monitor, revision)
		if err == nil {
			return previous, nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", err
		}
	}
	return "", ErrConflict
}

// UpdateStatus sets the monitor status field.
// Params: monitor id and target status.
// Returns: CAS or lookup error.
func (s *NATSStore) UpdateStatus(_ context.Context, id string, status domain.MonitorStatus) error {
	_, err := s.update(id, func(monitor *domain.Monitor) {
		monitor.Status = status
	})
	return err
}

// RecordHeartbeat applies one successful heartbeat atomically.
// Params: monitor id, report time, and recomputed next-expected time.
// Returns: status before the update.
func (s *NATSStore) RecordHeartbeat(_ context.Context, id string, at, nextExpected time.Time) (domain.MonitorStatus, error) {
	return s.update(id, func(monitor *domain.Monitor) {
		monitor.Status = domain.StatusUp
		monitor.LastHeartbeatAt = &at
		monitor.NextExpectedAt = &nextExpected
	})
}

// RecordPollCheck applies one poll outcome atomically.
// Params: monitor id, check time, next poll time, outcome, and next-expected
// time applied only on success.
// Returns: status before the update.
func (s *NATSStore) RecordPollCheck(_ context.Context, id string, at, nextCheck time.Time, success bool, nextExpected time.Time) (domain.MonitorStatus, error) {
	return s.update(id, func(monitor *domain.Monitor) {
		monitor.NextCheckAt = &nextCheck
		if success {
			monitor.Status = domain.StatusUp
			monitor.LastHeartbeatAt = &at
			monitor.NextExpectedAt = &nextExpected
		}
	})
}

// SetLastAlert updates the last-alert timestamp.
// Params: monitor id and alert time.
// Returns: CAS or lookup error.
func (s *NATSStore) SetLastAlert(_ context.Context, id string, at time.Time) error {
	_, err := s.update(id, func(monitor *domain.Monitor) {
		monitor.LastAlertAt = &at
	})
	return err
}

// SetPaused enters or exits the paused state.
// Params: monitor id, paused flag, and command time.
// Returns: CAS or lookup error.
func (s *NATSStore) SetPaused(_ context.Context, id string, paused bool, at time.Time) error {
	_, err := s.update(id, func(monitor *domain.Monitor) {
		if paused {
			monitor.Status = domain.StatusPaused
			return
		}
		monitor.Status = domain.StatusNew
		monitor.NextExpectedAt = nil
		if monitor.Kind == domain.KindHTTP {
			next := at
			monitor.NextCheckAt = &next
		}
	})
	return err
}

// Watermark reads one named last-run marker.
// Params: watermark name.
// Returns: marker time or ErrNotFound.
func (s *NATSStore) Watermark(_ context.Context, name string) (time.Time, error) {
	entry, err := s.kv.Get(watermarkKeyPrefix + name)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("kv get watermark: %w", err)
	}
	var at time.Time
	if err := json.Unmarshal(entry.Value(), &at); err != nil {
		return time.Time{}, fmt.Errorf("decode watermark %s: %w", name, err)
	}
	return at, nil
}

// SetWatermark writes one named last-run marker.
// Params: watermark name and run time.
// Returns: KV write error.
func (s *NATSStore) SetWatermark(_ context.Context, name string, at time.Time) error {
	payload, err := json.Marshal(at)
	if err != nil {
		return fmt.Errorf("encode watermark %s: %w", name, err)
	}
	if _, err := s.kv.Put(watermarkKeyPrefix+name, payload); err != nil {
		return fmt.Errorf("kv put watermark: %w", err)
	}
	return nil
}
