package chat

import "time"

// frameBudget caps how fast one session may send frames: at most burst
// frames back to back, refilled evenly over interval. It tracks a single
// theoretical arrival time instead of a token count and is only touched by
// the session's receive loop.
type frameBudget struct {
	emission  time.Duration
	tolerance time.Duration
	tat       time.Time
	dropped   int
	now       func() time.Time
}

func newFrameBudget(burst int, interval time.Duration) *frameBudget {
	burst = max(burst, 1)
	if interval <= 0 {
		interval = time.Second
	}
	emission := interval / time.Duration(burst)
	return &frameBudget{
		emission:  emission,
		tolerance: interval - emission,
		now:       time.Now,
	}
}

// allow spends one frame of the budget. Refused frames are counted.
func (b *frameBudget) allow() bool {
	now := b.now()
	tat := b.tat
	if tat.Before(now) {
		tat = now
	}
	if tat.Sub(now) > b.tolerance {
		b.dropped++
		return false
	}
	b.tat = tat.Add(b.emission)
	return true
}
