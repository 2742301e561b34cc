package inference

import (
	"math/rand/v2"
	"time"

	"github.com/cespare/xxhash/v2"
)

// FallbackConfig bounds synthetic scores.
type FallbackConfig struct {
	Min    float64
	Max    float64
	Spread float64 // jitter around the per-subject centre
	Seed   uint64  // 0 seeds from the clock
}

// DefaultFallback is [40,95] with +/-5 jitter.
var DefaultFallback = FallbackConfig{Min: 40, Max: 95, Spread: 5}

// fallback produces bounded synthetic scores. Not safe for concurrent use;
// the Engine holds its lock while calling it.
type fallback struct {
	cfg FallbackConfig
	rng *rand.Rand
}

func newFallback(cfg FallbackConfig) *fallback {
	if cfg.Max < cfg.Min {
		cfg.Min, cfg.Max = cfg.Max, cfg.Min
	}
	if cfg.Spread < 0 {
		cfg.Spread = 0
	}
	// the jitter can never exceed half the range
	if half := (cfg.Max - cfg.Min) / 2; cfg.Spread > half {
		cfg.Spread = half
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &fallback{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// score returns a value in [Min, Max]. With a subject the value stays within
// Spread of a centre derived from the subject's hash.
func (f *fallback) score(subject string) float64 {
	lo, hi := f.cfg.Min, f.cfg.Max
	if subject == "" {
		return lo + f.rng.Float64()*(hi-lo)
	}

	s := f.centre(subject) + (f.rng.Float64()*2-1)*f.cfg.Spread
	switch {
	case s < lo:
		return lo
	case s > hi:
		return hi
	}
	return s
}

// centre maps the subject hash into [Min+Spread, Max-Spread].
func (f *fallback) centre(subject string) float64 {
	inner := f.cfg.Max - f.cfg.Min - 2*f.cfg.Spread
	frac := float64(xxhash.Sum64String(subject)%10000) / 9999
	return f.cfg.Min + f.cfg.Spread + frac*inner
}
