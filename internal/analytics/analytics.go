package analytics

import (
	"math"
	"sort"
	"time"

	"vigil/internal/domain"
)

const (
	// minSamplesForVerdict gates z-score evaluation on sample support.
	minSamplesForVerdict = 10
	// driftWarningPercent is minimum median drift flagged as anomaly.
	driftWarningPercent = 30.0
	// driftCriticalPercent escalates median drift severity.
	driftCriticalPercent = 50.0
	// trendWindow is number of recent samples inspected for trend direction.
	trendWindow = 5
	// trendMovePercent ignores consecutive moves below this magnitude.
	trendMovePercent = 10.0
)

// Trend direction labels reported in duration context.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
	TrendUnknown    = "unknown"
)

// Threshold maps sensitivity level to z-score threshold.
// Params: monitor anomaly sensitivity.
// Returns: absolute z-score boundary for anomaly classification.
func Threshold(sensitivity domain.Sensitivity) float64 {
	switch sensitivity {
	case domain.SensitivityLow:
		return 3.5
	case domain.SensitivityHigh:
		return 2.5
	default:
		return 3.0
	}
}

// Compute recomputes one trailing-window aggregate from raw duration samples.
// Params: raw samples in any order and window bounds.
// Returns: full aggregate; zero-valued stats when the sample set is empty.
func Compute(samples []float64, windowStart, windowEnd time.Time) domain.DurationWindowStat {
	stat := domain.DurationWindowStat{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		SampleCount: len(samples),
	}
	if len(samples) == 0 {
		return stat
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, value := range sorted {
		sum += value
	}
	mean := sum / float64(len(sorted))

	variance := 0.0
	if len(sorted) > 1 {
		for _, value := range sorted {
			delta := value - mean
			variance += delta * delta
		}
		variance /= float64(len(sorted) - 1)
	}

	stat.Mean = mean
	stat.StdDev = math.Sqrt(variance)
	stat.P50 = Percentile(sorted, 50)
	stat.P95 = Percentile(sorted, 95)
	stat.P99 = Percentile(sorted, 99)
	stat.Min = sorted[0]
	stat.Max = sorted[len(sorted)-1]
	return stat
}

// Percentile computes one percentile with linear interpolation between ranks.
// Params: samples sorted ascending and percentile in [0,100].
// Returns: interpolated value at index (p/100)*(n-1), zero for empty input.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower < 0 {
		lower = 0
	}
	if upper >= len(sorted) {
		upper = len(sorted) - 1
	}
	if lower == upper {
		return sorted[lower]
	}
	fraction := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*fraction
}

// Evaluate classifies one new duration sample against current window stats.
// Params: sample value, current aggregate, and monitor sensitivity.
// Returns: typed verdict; Anomalous=false when not evaluable or within bounds.
func Evaluate(value float64, stat domain.DurationWindowStat, sensitivity domain.Sensitivity) domain.AnomalyVerdict {
	if stat.SampleCount < minSamplesForVerdict || stat.StdDev <= 0 {
		return domain.AnomalyVerdict{}
	}

	threshold := Threshold(sensitivity)
	z := (value - stat.Mean) / stat.StdDev
	if math.Abs(z) >= threshold {
		severity := "warning"
		if math.Abs(z) >= threshold+1 {
			severity = "critical"
		}
		low := stat.Mean - threshold*stat.StdDev
		if low < 0 {
			low = 0
		}
		return domain.AnomalyVerdict{
			Anomalous:    true,
			Type:         "zscore",
			Severity:     severity,
			ZScore:       z,
			ExpectedLow:  low,
			ExpectedHigh: stat.Mean + threshold*stat.StdDev,
		}
	}

	if stat.P50 > 0 {
		drift := (value - stat.P50) / stat.P50 * 100.0
		if drift >= driftWarningPercent {
			severity := "warning"
			if drift >= driftCriticalPercent {
				severity = "critical"
			}
			return domain.AnomalyVerdict{
				Anomalous:    true,
				Type:         "drift",
				Severity:     severity,
				ZScore:       z,
				DriftPercent: drift,
				ExpectedLow:  stat.Min,
				ExpectedHigh: stat.P50 * 1.3,
			}
		}
	}

	return domain.AnomalyVerdict{}
}

// Trend reports direction over the most recent samples.
// Params: duration samples ordered oldest to newest.
// Returns: increasing/decreasing/stable, or unknown below three samples or
// two usable consecutive moves.
func Trend(samples []float64) string {
	if len(samples) > trendWindow {
		samples = samples[len(samples)-trendWindow:]
	}
	if len(samples) < 3 {
		return TrendUnknown
	}

	ups, downs, usable := 0, 0, 0
	for i := 1; i < len(samples); i++ {
		previous := samples[i-1]
		if previous == 0 {
			continue
		}
		usable++
		movePercent := (samples[i] - previous) / previous * 100.0
		switch {
		case movePercent >= trendMovePercent:
			ups++
		case movePercent <= -trendMovePercent:
			downs++
		}
	}
	// Three samples are only meaningful when they yield two comparable moves.
	if usable < 2 {
		return TrendUnknown
	}

	switch {
	case ups > 0 && ups >= 2*downs:
		return TrendIncreasing
	case downs > 0 && downs >= 2*ups:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
