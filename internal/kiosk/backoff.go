package kiosk

import "time"

// ReconnectPolicy computes the delay before a reconnect. The zero value
// reconnects immediately.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Delay returns the wait before the attempt-th consecutive reconnect
// (1-based): InitialDelay * 2^(attempt-1), capped at MaxDelay when set.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		next := d * 2
		if next < d {
			// overflow
			d = time.Duration(1<<63 - 1)
			break
		}
		d = next
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
