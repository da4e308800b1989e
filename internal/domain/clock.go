package domain

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze time via SetClock.
// The freshness check and report timestamps read it; production code uses the
// real clock and tests inject a fake for deterministic reports.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for validation. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
