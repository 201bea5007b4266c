package schedule

import (
	"testing"
	"time"

	"vigil/internal/domain"
)

func TestNextExpectedPeriod(t *testing.T) {
	t.Parallel()

	reported := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	monitor := domain.Monitor{ID: "m1", Kind: domain.KindCron, PeriodSec: 3600}

	next, err := NextExpected(monitor, reported)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(reported.Add(time.Hour)) {
		t.Fatalf("next = %v, want %v", next, reported.Add(time.Hour))
	}
}

func TestNextExpectedCron(t *testing.T) {
	t.Parallel()

	reported := time.Date(2025, 3, 1, 12, 20, 0, 0, time.UTC)
	monitor := domain.Monitor{ID: "m1", Kind: domain.KindCron, CronExpr: "0 * * * *"}

	next, err := NextExpected(monitor, reported)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextExpectedInvalid(t *testing.T) {
	t.Parallel()

	if _, err := NextExpected(domain.Monitor{ID: "m1", Kind: domain.KindCron, CronExpr: "not a cron"}, time.Now()); err == nil {
		t.Fatalf("expected cron parse error")
	}
	if _, err := NextExpected(domain.Monitor{ID: "m1", Kind: domain.KindCron}, time.Now()); err == nil {
		t.Fatalf("expected missing schedule error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		monitor domain.Monitor
		wantErr bool
	}{
		{"cron period ok", domain.Monitor{ID: "a", Kind: domain.KindCron, PeriodSec: 60}, false},
		{"cron expr ok", domain.Monitor{ID: "b", Kind: domain.KindCron, CronExpr: "*/5 * * * *"}, false},
		{"cron missing schedule", domain.Monitor{ID: "c", Kind: domain.KindCron}, true},
		{"cron bad expr", domain.Monitor{ID: "d", Kind: domain.KindCron, CronExpr: "bad"}, true},
		{"http ok", domain.Monitor{ID: "e", Kind: domain.KindHTTP, PollIntervalSec: 60, Check: &domain.HTTPCheck{URL: "http://example.test"}}, false},
		{"http missing url", domain.Monitor{ID: "f", Kind: domain.KindHTTP, PollIntervalSec: 60, Check: &domain.HTTPCheck{}}, true},
		{"http missing interval", domain.Monitor{ID: "g", Kind: domain.KindHTTP, Check: &domain.HTTPCheck{URL: "http://example.test"}}, true},
		{"unknown kind", domain.Monitor{ID: "h", Kind: "icmp"}, true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.monitor)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate(%s) error = %v, wantErr %v", tc.monitor.ID, err, tc.wantErr)
			}
		})
	}
}
