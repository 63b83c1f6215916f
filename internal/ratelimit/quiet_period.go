package ratelimit

import "sync/atomic"

// QuietPeriod is a small shared flag: any component can raise it, and
// every source skips its next scheduled fetch while it is set. Backed by
// atomic.Bool so readers never
// block writers (plain atomic load/store, no lock contention on the
// adapter hot path).
type QuietPeriod struct {
	flag atomic.Bool
}

// Set raises the quiet period flag.
func (q *QuietPeriod) Set() { q.flag.Store(true) }

// Clear lowers the quiet period flag.
func (q *QuietPeriod) Clear() { q.flag.Store(false) }

// Active reports whether the quiet period is currently in effect.
func (q *QuietPeriod) Active() bool { return q.flag.Load() }
