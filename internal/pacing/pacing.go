// Package pacing computes human-like send cadence for dispatched batches.
package pacing

import (
	"math/rand"
	"time"
)

const (
	MinInterLeadDelayMs = 1000
	MaxInterLeadDelayMs = 30000
	MinIntraLeadDelayMs = 500
	MaxIntraLeadDelayMs = 10000
	MaxJitterFraction   = 0.5

	DefaultInterLeadDelayMs = 3000
	DefaultIntraLeadDelayMs = 1500
	DefaultJitterFraction   = 0.2
)

// Config is a per-dispatch value object; it is never persisted.
type Config struct {
	InterLeadDelayMs int     `json:"interLeadDelayMs" validate:"gte=1000,lte=30000"`
	IntraLeadDelayMs int     `json:"intraLeadDelayMs" validate:"gte=500,lte=10000"`
	JitterFraction   float64 `json:"jitterFraction" validate:"gte=0,lte=0.5"`
}

// Default returns the pacing applied when a dispatch names none.
func Default() Config {
	return Config{
		InterLeadDelayMs: DefaultInterLeadDelayMs,
		IntraLeadDelayMs: DefaultIntraLeadDelayMs,
		JitterFraction:   DefaultJitterFraction,
	}
}

// EffectiveDelay returns base scaled by a uniform factor in
// [1-jitter, 1+jitter], so consecutive sends never land on a perfectly
// periodic, obviously-automated cadence.
func EffectiveDelay(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	factor := 1 + (rand.Float64()*2-1)*jitter
	return time.Duration(float64(base) * factor)
}
