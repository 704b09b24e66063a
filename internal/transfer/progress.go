package transfer

import "time"

// Percent is received bytes over the announced size, clamped to 100. An
// empty file has no bytes to count, so it only reaches 100 when done.
func Percent(received, size int64, done bool) float64 {
	if size <= 0 {
		if done {
			return 100
		}
		return 0
	}
	p := float64(received) / float64(size) * 100
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// progressThrottle limits progress events to one per interval, always letting
// the final one through.
type progressThrottle struct {
	interval time.Duration
	last     time.Time
}

func (p *progressThrottle) allow(now time.Time, final bool) bool {
	if final || p.interval <= 0 || now.Sub(p.last) >= p.interval {
		p.last = now
		return true
	}
	return false
}
