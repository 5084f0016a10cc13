package receiver

import (
	"math/rand"
	"time"
)

// Retry defaults for socket open and group join.
const (
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25
	DefaultAttempts   = 5
)

// BackoffConfig customizes retry delays. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// backoff computes exponential retry delays with jitter. One per binding.
type backoff struct {
	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	rng        *rand.Rand
}

func newBackoff(cfg BackoffConfig, rng *rand.Rand) *backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rng,
	}
}

// next returns the jittered delay and advances the base delay.
func (b *backoff) next() time.Duration {
	d := b.current
	if b.jitter > 0 && b.rng != nil {
		d += time.Duration(float64(d) * b.jitter * b.rng.Float64())
	}
	n := time.Duration(float64(b.current) * b.multiplier)
	if n > b.max {
		n = b.max
	}
	b.current = n
	return d
}

func (b *backoff) reset() { b.current = b.initial }
