package alert

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"vigil/internal/analytics"
	"vigil/internal/clock"
	"vigil/internal/domain"
	"vigil/internal/state"
)

const (
	recentSampleCount  = 5
	snippetLimit       = 200
	failureWindow      = 24 * time.Hour
	correlationWindow  = 5 * time.Minute
	correlationMaxSize = 10
)

// ContextBuilder composes optional enrichment sections for one event.
// Params: stores, clock, and logger for best-effort section builders.
// Returns: context assembly engine used by the dispatcher.
type ContextBuilder struct {
	monitors state.MonitorStore
	pings    state.PingStore
	stats    state.StatStore
	clock    clock.Clock
	logger   *slog.Logger
}

// NewContextBuilder creates context builder.
// Params: monitor/ping/stat stores, clock, and logger.
// Returns: initialized builder.
func NewContextBuilder(monitors state.MonitorStore, pings state.PingStore, stats state.StatStore, clk clock.Clock, logger *slog.Logger) *ContextBuilder {
	return &ContextBuilder{monitors: monitors, pings: pings, stats: stats, clock: clk, logger: logger}
}

// Build runs the three sub-builders concurrently and composes the result.
// Params: context and monitor snapshot.
// Returns: alert context; a sub-builder with nothing to report stays nil.
func (b *ContextBuilder) Build(ctx context.Context, monitor domain.Monitor) domain.AlertContext {
	var composed domain.AlertContext

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		composed.Duration = b.durationSection(ctx, monitor)
	}()
	go func() {
		defer wg.Done()
		composed.ErrorPattern = b.errorPatternSection(ctx, monitor)
	}()
	go func() {
		defer wg.Done()
		composed.Correlation = b.correlationSection(ctx, monitor)
	}()
	wg.Wait()

	return composed
}

// durationSection builds recent-duration enrichment.
// Params: context and monitor snapshot.
// Returns: section or nil when no duration samples exist.
func (b *ContextBuilder) durationSection(ctx context.Context, monitor domain.Monitor) *domain.DurationContext {
	recent, err := b.pings.LastDurations(ctx, monitor.ID, recentSampleCount)
	if err != nil {
		b.logger.Warn("duration context read failed", "monitor", monitor.ID, "error", err.Error())
		return nil
	}
	if len(recent) == 0 {
		return nil
	}

	section := &domain.DurationContext{
		RecentMS: recent,
		Trend:    analytics.Trend(recent),
	}

	stat, err := b.stats.LatestWindowStat(ctx, monitor.ID)
	switch {
	case err == nil:
		section.MeanMS = stat.Mean
		verdict := analytics.Evaluate(recent[len(recent)-1], stat, monitor.Sensitivity)
		if verdict.Anomalous {
			section.Anomaly = &verdict
		}
	case errors.Is(err, state.ErrNotFound):
		sum := 0.0
		for _, value := range recent {
			sum += value
		}
		section.MeanMS = sum / float64(len(recent))
	default:
		b.logger.Warn("window stat read failed", "monitor", monitor.ID, "error", err.Error())
	}

	return section
}

// errorPatternSection builds recent-failure enrichment.
// Params: context and monitor snapshot.
// Returns: section or nil without snippet and recent failures.
func (b *ContextBuilder) errorPatternSection(ctx context.Context, monitor domain.Monitor) *domain.ErrorPatternContext {
	now := b.clock.Now()

	snippet := ""
	lastFail, err := b.pings.LastFail(ctx, monitor.ID)
	switch {
	case err == nil:
		snippet = truncateSnippet(lastFail.Payload)
	case errors.Is(err, state.ErrNotFound):
	default:
		b.logger.Warn("last fail read failed", "monitor", monitor.ID, "error", err.Error())
		return nil
	}

	count, err := b.pings.CountFailsSince(ctx, monitor.ID, now.Add(-failureWindow))
	if err != nil {
		b.logger.Warn("failure count read failed", "monitor", monitor.ID, "error", err.Error())
		return nil
	}

	if snippet == "" && count == 0 {
		return nil
	}
	return &domain.ErrorPatternContext{LastErrorSnippet: snippet, FailureCount24h: count}
}

// correlationSection builds cross-monitor failure enrichment.
// Params: context and monitor snapshot.
// Returns: section or nil when no sibling failures are near now.
func (b *ContextBuilder) correlationSection(ctx context.Context, monitor domain.Monitor) *domain.CorrelationContext {
	now := b.clock.Now()

	fails, err := b.pings.ProjectFailsBetween(ctx, monitor.ProjectID, monitor.ID,
		now.Add(-correlationWindow), now.Add(correlationWindow))
	if err != nil {
		b.logger.Warn("correlation read failed", "monitor", monitor.ID, "error", err.Error())
		return nil
	}
	if len(fails) == 0 {
		return nil
	}

	sort.Slice(fails, func(i, j int) bool { return fails[i].At.Before(fails[j].At) })

	seen := make(map[string]bool, len(fails))
	related := make([]domain.RelatedFailure, 0, correlationMaxSize)
	for _, fail := range fails {
		if seen[fail.MonitorID] {
			continue
		}
		seen[fail.MonitorID] = true

		entry := domain.RelatedFailure{MonitorID: fail.MonitorID, At: fail.At}
		if sibling, err := b.monitors.Get(ctx, fail.MonitorID); err == nil {
			entry.MonitorName = sibling.Name
		}
		related = append(related, entry)
		if len(related) == correlationMaxSize {
			break
		}
	}

	return &domain.CorrelationContext{Related: related}
}

// truncateSnippet bounds a failure payload for context embedding.
// Params: raw payload text.
// Returns: payload cut to the snippet limit with an ellipsis marker.
func truncateSnippet(payload string) string {
	runes := []rune(payload)
	if len(runes) <= snippetLimit {
		return payload
	}
	return string(runes[:snippetLimit]) + "…"
}
