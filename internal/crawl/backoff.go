package crawl

import (
	"math"
	"math/rand"
	"time"
)

const (
	StrategyLinear      = "linear"
	StrategyExponential = "exponential"
)

// Backoff computes the wait before retry number attempt (1-based).
type Backoff struct {
	Strategy  string
	Base      time.Duration
	Max       time.Duration
	JitterPct int
}

func (b Backoff) Duration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var wait float64
	switch b.Strategy {
	case StrategyExponential:
		// base * 2^(attempt-1)
		wait = float64(b.Base) * math.Pow(2, float64(attempt-1))
	default:
		wait = float64(b.Base) * float64(attempt)
	}

	if b.Max > 0 && wait > float64(b.Max) {
		wait = float64(b.Max)
	}

	// Apply jitter: ±JitterPct%
	if b.JitterPct > 0 {
		jitterRange := wait * float64(b.JitterPct) / 100
		wait += (rand.Float64() - 0.5) * 2 * jitterRange
	}

	return time.Duration(math.Max(wait, 0))
}
