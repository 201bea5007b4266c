package ingest

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"vigil/internal/alert"
	"vigil/internal/clock"
	"vigil/internal/domain"
	"vigil/internal/incident"
	"vigil/internal/state"
	"vigil/internal/statsqueue"
)

type fakeAlerter struct {
	mu       sync.Mutex
	triggers []domain.EventKind
}

func (f *fakeAlerter) Trigger(_ context.Context, kind domain.EventKind, _ domain.Monitor) (alert.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, kind)
	return alert.Outcome{Sent: true, Success: true}, nil
}

func (f *fakeAlerter) kinds() []domain.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.EventKind(nil), f.triggers...)
}

type fakeProducer struct {
	mu    sync.Mutex
	tasks []statsqueue.Task
}

func (f *fakeProducer) Enqueue(task statsqueue.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

type fixture struct {
	store     *state.MemoryStore
	clock     *clock.ManualClock
	alerter   *fakeAlerter
	producer  *fakeProducer
	incidents *incident.Memory
	recorder  *Recorder
}

func newFixture(t *testing.T) *fixture {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManualClock(now)
	f := &fixture{
		store:     state.NewMemoryStore(clk.Now),
		clock:     clk,
		alerter:   &fakeAlerter{},
		producer:  &fakeProducer{},
		incidents: incident.NewMemory(),
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	f.recorder = NewRecorder(f.store, f.store, f.producer, f.incidents, f.alerter, clk, logger)
	return f
}

func (f *fixture) seed(t *testing.T, monitor domain.Monitor) {
	t.Helper()
	if monitor.PeriodSec == 0 {
		monitor.PeriodSec = 3600
	}
	if err := f.store.Put(context.Background(), monitor); err != nil {
		t.Fatalf("seed monitor: %v", err)
	}
}

func TestRecordUnknownMonitorIsNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.recorder.Record(context.Background(), "ghost", domain.PingSuccess, "", "http", ""); err != state.ErrNotFound {
		t.Fatalf("record = %v, want ErrNotFound", err)
	}
}

func TestRecordSuccessRecoversDownMonitor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	monitor := domain.Monitor{ID: "m1", ProjectID: "p1", Name: "backup", Kind: domain.KindCron, Status: domain.StatusDown, RecoveryAlert: true}
	f.seed(t, monitor)
	if err := f.incidents.OpenDown(ctx, monitor, f.clock.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("open incident: %v", err)
	}

	result, err := f.recorder.Record(ctx, "m1", domain.PingSuccess, "", "http", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !result.WasDown {
		t.Fatal("was_down not reported for recovery out of down")
	}

	got, err := f.store.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusUp {
		t.Fatalf("status = %s, want up", got.Status)
	}
	if got.NextExpectedAt == nil || !got.NextExpectedAt.Equal(f.clock.Now().Add(time.Hour)) {
		t.Fatalf("next expected = %v, want one period ahead", got.NextExpectedAt)
	}
	if kinds := f.alerter.kinds(); len(kinds) != 1 || kinds[0] != domain.EventUp {
		t.Fatalf("triggers = %v, want exactly one up alert", kinds)
	}
	if f.incidents.Open("m1") {
		t.Fatal("incident still open after recovery")
	}
}

func TestRecordSuccessWithoutRecoveryFlagStaysQuiet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusDown})

	result, err := f.recorder.Record(ctx, "m1", domain.PingSuccess, "", "http", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !result.WasDown {
		t.Fatal("was_down must be reported even without the recovery-alert flag")
	}
	if kinds := f.alerter.kinds(); len(kinds) != 0 {
		t.Fatalf("triggers = %v, want none", kinds)
	}
}

func TestRecordFailWhileUpAlertsWithoutTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusUp})

	result, err := f.recorder.Record(ctx, "m1", domain.PingFail, "disk full", "http", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.WasDown {
		t.Fatal("fail reported was_down")
	}

	got, _ := f.store.Get(ctx, "m1")
	if got.Status != domain.StatusUp {
		t.Fatalf("status = %s, fail must never change status", got.Status)
	}
	if kinds := f.alerter.kinds(); len(kinds) != 1 || kinds[0] != domain.EventFail {
		t.Fatalf("triggers = %v, want exactly one fail alert", kinds)
	}

	lastFail, err := f.store.LastFail(ctx, "m1")
	if err != nil {
		t.Fatalf("last fail: %v", err)
	}
	if lastFail.Payload != "disk full" {
		t.Fatalf("payload = %q", lastFail.Payload)
	}
}

func TestRecordFailWhileDownNeverRecovers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusDown, RecoveryAlert: true})

	result, err := f.recorder.Record(ctx, "m1", domain.PingFail, "", "http", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.WasDown {
		t.Fatal("fail on a down monitor reported recovery")
	}
	got, _ := f.store.Get(ctx, "m1")
	if got.Status != domain.StatusDown {
		t.Fatalf("status = %s, want down", got.Status)
	}
	if kinds := f.alerter.kinds(); len(kinds) != 0 {
		t.Fatalf("triggers = %v, want none (fail alerts only fire while up)", kinds)
	}
}

func TestRecordPairsStartWithTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusUp})

	startResult, err := f.recorder.Record(ctx, "m1", domain.PingStart, "", "http", "run-7")
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	f.clock.Advance(90 * time.Second)

	successResult, err := f.recorder.Record(ctx, "m1", domain.PingSuccess, "", "http", "run-7")
	if err != nil {
		t.Fatalf("record success: %v", err)
	}

	durations, err := f.store.LastDurations(ctx, "m1", 1)
	if err != nil {
		t.Fatalf("last durations: %v", err)
	}
	if len(durations) != 1 || durations[0] != 90000 {
		t.Fatalf("durations = %v, want single 90000ms sample", durations)
	}

	f.producer.mu.Lock()
	tasks := len(f.producer.tasks)
	f.producer.mu.Unlock()
	if tasks != 1 {
		t.Fatalf("enqueued %d recompute tasks, want 1", tasks)
	}
	if startResult.EventID == successResult.EventID {
		t.Fatal("start and terminal share an event id")
	}
}

func TestRecordStartWithoutTerminalEnqueuesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusUp})

	if _, err := f.recorder.Record(ctx, "m1", domain.PingStart, "", "http", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	f.producer.mu.Lock()
	defer f.producer.mu.Unlock()
	if len(f.producer.tasks) != 0 {
		t.Fatalf("enqueued %d recompute tasks, want none for a bare start", len(f.producer.tasks))
	}
}

func TestRecordPausedMonitorKeepsHistoryOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusPaused})

	result, err := f.recorder.Record(ctx, "m1", domain.PingSuccess, "", "http", "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.WasDown {
		t.Fatal("paused monitor reported recovery")
	}
	got, _ := f.store.Get(ctx, "m1")
	if got.Status != domain.StatusPaused {
		t.Fatalf("status = %s, want paused untouched by pings", got.Status)
	}
	if kinds := f.alerter.kinds(); len(kinds) != 0 {
		t.Fatalf("triggers = %v, want none while paused", kinds)
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(payload []byte) (int, error) {
	w.t.Log(string(payload))
	return len(payload), nil
}
