package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"vigil/internal/domain"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextExpected computes when the next heartbeat is due after one report.
// Params: monitor schedule spec and report time.
// Returns: next-expected timestamp or error for an invalid cron expression.
func NextExpected(monitor domain.Monitor, reportedAt time.Time) (time.Time, error) {
	if monitor.CronExpr != "" {
		parsed, err := cronParser.Parse(monitor.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron %q: %w", monitor.CronExpr, err)
		}
		return parsed.Next(reportedAt), nil
	}

	period := time.Duration(monitor.PeriodSec) * time.Second
	if monitor.Kind == domain.KindHTTP {
		period = time.Duration(monitor.PollIntervalSec) * time.Second
	}
	if period <= 0 {
		return time.Time{}, fmt.Errorf("monitor %s has no usable schedule", monitor.ID)
	}
	return reportedAt.Add(period), nil
}

// NextCheck computes when an HTTP monitor should be polled again.
// Params: monitor poll interval and current check time.
// Returns: next poll timestamp.
func NextCheck(monitor domain.Monitor, checkedAt time.Time) time.Time {
	interval := time.Duration(monitor.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return checkedAt.Add(interval)
}

// Validate checks that the monitor carries exactly one usable schedule spec.
// Params: monitor definition.
// Returns: error describing missing or conflicting schedule fields.
func Validate(monitor domain.Monitor) error {
	switch monitor.Kind {
	case domain.KindCron:
		if monitor.CronExpr == "" && monitor.PeriodSec <= 0 {
			return fmt.Errorf("monitor %s requires cron expression or period", monitor.ID)
		}
		if monitor.CronExpr != "" {
			if _, err := cronParser.Parse(monitor.CronExpr); err != nil {
				return fmt.Errorf("monitor %s cron: %w", monitor.ID, err)
			}
		}
	case domain.KindHTTP:
		if monitor.PollIntervalSec <= 0 {
			return fmt.Errorf("monitor %s requires poll interval", monitor.ID)
		}
		if monitor.Check == nil || monitor.Check.URL == "" {
			return fmt.Errorf("monitor %s requires check url", monitor.ID)
		}
	default:
		return fmt.Errorf("monitor %s has unsupported kind %q", monitor.ID, monitor.Kind)
	}
	return nil
}
