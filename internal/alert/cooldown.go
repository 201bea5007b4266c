package alert

import (
	"time"

	"vigil/internal/domain"
)

// cooldowns is the compile-time dedup table keyed by event kind.
// "down" and "up" are always attempted; "still_down" is gated upstream by the
// reminder interval; only "fail" absorbs repeated rapid failures here.
var cooldowns = map[domain.EventKind]time.Duration{
	domain.EventDown:      0,
	domain.EventUp:        0,
	domain.EventStillDown: 0,
	domain.EventFail:      10 * time.Minute,
}

// Cooldown returns minimum spacing between alerts of one kind per monitor.
// Params: event kind.
// Returns: cooldown duration; zero disables dedup for the kind.
func Cooldown(kind domain.EventKind) time.Duration {
	return cooldowns[kind]
}
