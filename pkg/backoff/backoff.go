package backoff

import (
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

// Policy 重连退避策略：失败次数 -> 等待时长
// 指数增长，下限 Min，上限 Max，Jitter 为随机抖动比例（0.2 即 ±20%）
type Policy struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultPolicy 默认退避参数
func DefaultPolicy() Policy {
	return Policy{
		Min:        time.Second,
		Max:        60 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// Delay returns the wait before the next attempt after failures consecutive
// failures. Delay(0) is zero; the result is never below Min.
func (p Policy) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}

	b := &cbackoff.ExponentialBackOff{
		InitialInterval:     p.Min,
		RandomizationFactor: p.Jitter,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
		MaxElapsedTime:      0,
		Stop:                cbackoff.Stop,
		Clock:               cbackoff.SystemClock,
	}
	b.Reset()

	var d time.Duration
	for i := 0; i < failures; i++ {
		d = b.NextBackOff()
		// Stop only appears when MaxElapsedTime is set
		if d == cbackoff.Stop {
			return p.Max
		}
	}

	if d < p.Min {
		d = p.Min
	}
	// 抖动上限 Max*(1+Jitter)
	if limit := time.Duration(float64(p.Max) * (1 + p.Jitter)); d > limit {
		d = limit
	}
	return d
}
