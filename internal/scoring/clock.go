package scoring

import "github.com/jonboulle/clockwork"

// clock times scorer calls. Tests swap it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for latency metrics. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
