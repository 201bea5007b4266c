package alert

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"vigil/internal/clock"
	"vigil/internal/domain"
	"vigil/internal/state"
)

func newTestBuilder(store *state.MemoryStore, clk clock.Clock, t *testing.T) *ContextBuilder {
	return NewContextBuilder(store, store, store, clk, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
}

func appendPing(t *testing.T, store *state.MemoryStore, event domain.PingEvent) {
	t.Helper()
	if err := store.Append(context.Background(), event); err != nil {
		t.Fatalf("append ping: %v", err)
	}
}

func TestBuildWithNoHistoryOmitsEverySection(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := state.NewMemoryStore(func() time.Time { return now })
	builder := newTestBuilder(store, clock.NewManualClock(now), t)

	composed := builder.Build(context.Background(), domain.Monitor{ID: "m1", ProjectID: "p1"})
	if composed.Duration != nil || composed.ErrorPattern != nil || composed.Correlation != nil {
		t.Fatalf("context = %+v, want every section nil", composed)
	}
}

func TestDurationSectionUsesWindowStat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := state.NewMemoryStore(func() time.Time { return now })
	builder := newTestBuilder(store, clock.NewManualClock(now), t)

	for i, value := range []float64{100, 102, 98, 101, 400} {
		value := value
		appendPing(t, store, domain.PingEvent{
			ID: string(rune('a' + i)), MonitorID: "m1", Kind: domain.PingSuccess,
			At: now.Add(time.Duration(i-5) * time.Minute), DurationMS: &value,
		})
	}
	stat := domain.DurationWindowStat{
		MonitorID: "m1", SampleCount: 20, Mean: 100, StdDev: 10, P50: 100,
		WindowStart: now.Add(-7 * 24 * time.Hour), WindowEnd: now,
	}
	if err := store.UpsertWindowStat(ctx, stat); err != nil {
		t.Fatalf("upsert stat: %v", err)
	}

	composed := builder.Build(ctx, domain.Monitor{ID: "m1", ProjectID: "p1", Sensitivity: domain.SensitivityNormal})
	section := composed.Duration
	if section == nil {
		t.Fatal("duration section missing")
	}
	if len(section.RecentMS) != 5 || section.RecentMS[4] != 400 {
		t.Fatalf("recent = %v, want five samples ending in 400", section.RecentMS)
	}
	if section.MeanMS != 100 {
		t.Fatalf("mean = %v, want window-stat mean 100", section.MeanMS)
	}
	if section.Anomaly == nil {
		t.Fatal("400ms against mean 100 stddev 10 must be flagged")
	}
	if section.Anomaly.Severity != "critical" || section.Anomaly.Type != "zscore" {
		t.Fatalf("verdict = %+v, want critical zscore", section.Anomaly)
	}
}

func TestDurationSectionFallsBackToRecentMean(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := state.NewMemoryStore(func() time.Time { return now })
	builder := newTestBuilder(store, clock.NewManualClock(now), t)

	for i, value := range []float64{100, 200, 300} {
		value := value
		appendPing(t, store, domain.PingEvent{
			ID: string(rune('a' + i)), MonitorID: "m1", Kind: domain.PingSuccess,
			At: now.Add(time.Duration(i-3) * time.Minute), DurationMS: &value,
		})
	}

	composed := builder.Build(context.Background(), domain.Monitor{ID: "m1", ProjectID: "p1"})
	section := composed.Duration
	if section == nil {
		t.Fatal("duration section missing")
	}
	if section.MeanMS != 200 {
		t.Fatalf("mean = %v, want mean of recent samples without a window stat", section.MeanMS)
	}
	if section.Anomaly != nil {
		t.Fatalf("verdict = %+v, want none without a window stat", section.Anomaly)
	}
}

func TestErrorPatternSnippetTruncation(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := state.NewMemoryStore(func() time.Time { return now })
	builder := newTestBuilder(store, clock.NewManualClock(now), t)

	long := strings.Repeat("é", 250)
	appendPing(t, store, domain.PingEvent{
		ID: "f1", MonitorID: "m1", Kind: domain.PingFail,
		At: now.Add(-time.Hour), Payload: long,
	})
	appendPing(t, store, domain.PingEvent{
		ID: "f2", MonitorID: "m1", Kind: domain.PingFail,
		At: now.Add(-30 * time.Hour), Payload: "stale",
	})

	composed := builder.Build(context.Background(), domain.Monitor{ID: "m1", ProjectID: "p1"})
	section := composed.ErrorPattern
	if section == nil {
		t.Fatal("error pattern section missing")
	}
	if section.FailureCount24h != 1 {
		t.Fatalf("failure count = %d, want 1 (30h-old fail outside window)", section.FailureCount24h)
	}
	runes := []rune(section.LastErrorSnippet)
	if len(runes) != 201 || runes[200] != '…' {
		t.Fatalf("snippet length = %d runes, want 200 plus ellipsis", len(runes))
	}
}

func TestCorrelationDedupsAndCaps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := state.NewMemoryStore(func() time.Time { return now })
	builder := newTestBuilder(store, clock.NewManualClock(now), t)

	// Twelve siblings each fail twice inside the window; one more fails outside.
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		if err := store.Put(ctx, domain.Monitor{ID: "sib-" + id, ProjectID: "p1", Name: "sibling " + id}); err != nil {
			t.Fatalf("put sibling: %v", err)
		}
		offset := time.Duration(i*10) * time.Second
		appendPing(t, store, domain.PingEvent{ID: id + "0", MonitorID: "sib-" + id, Kind: domain.PingFail, At: now.Add(-offset)})
		appendPing(t, store, domain.PingEvent{ID: id + "1", MonitorID: "sib-" + id, Kind: domain.PingFail, At: now.Add(-offset - time.Minute)})
	}
	if err := store.Put(ctx, domain.Monitor{ID: "sib-far", ProjectID: "p1", Name: "far"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	appendPing(t, store, domain.PingEvent{ID: "far", MonitorID: "sib-far", Kind: domain.PingFail, At: now.Add(-time.Hour)})

	composed := builder.Build(ctx, domain.Monitor{ID: "m1", ProjectID: "p1"})
	section := composed.Correlation
	if section == nil {
		t.Fatal("correlation section missing")
	}
	if len(section.Related) != 10 {
		t.Fatalf("related = %d entries, want cap of 10", len(section.Related))
	}
	seen := make(map[string]bool)
	for _, entry := range section.Related {
		if seen[entry.MonitorID] {
			t.Fatalf("monitor %s listed twice", entry.MonitorID)
		}
		seen[entry.MonitorID] = true
		if entry.MonitorName == "" {
			t.Fatalf("entry %s missing resolved name", entry.MonitorID)
		}
	}
}

func TestCorrelationIgnoresOwnFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := state.NewMemoryStore(func() time.Time { return now })
	builder := newTestBuilder(store, clock.NewManualClock(now), t)

	if err := store.Put(ctx, domain.Monitor{ID: "m1", ProjectID: "p1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	appendPing(t, store, domain.PingEvent{ID: "own", MonitorID: "m1", Kind: domain.PingFail, At: now})

	composed := builder.Build(ctx, domain.Monitor{ID: "m1", ProjectID: "p1"})
	if composed.Correlation != nil {
		t.Fatalf("correlation = %+v, want nil when only the alerting monitor failed", composed.Correlation)
	}
}
