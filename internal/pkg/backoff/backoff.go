// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package backoff provides truncated exponential backoff with full jitter.
//
// The delay for a given number of attempts is base * position * (2^attempts - 1),
// where position is sampled from a Distribution. At zero attempts the window is
// empty and the delay is always zero.
package backoff

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	// DefaultCeiling is the default exponent ceiling, giving a maximum window of
	// 1023 slot times.
	DefaultCeiling uint32 = 10
	// MaxCeiling is the largest exponent whose window 2^MaxCeiling - 1 fits in a uint64.
	MaxCeiling uint32 = 63
)

// Distribution samples the jitter position within the backoff window.
type Distribution interface {
	// Sample returns a value in [0.0, 1.0] drawn using rng.
	Sample(rng *rand.Rand) float64
	// String returns the name of the distribution as accepted by ParseDistribution.
	String() string
}

var (
	// Uniform samples uniformly from [0.0, 1.0).
	Uniform Distribution = uniform{}
	// UniformClosed samples uniformly from [0.0, 1.0].
	UniformClosed Distribution = uniformClosed{}
)

// Fixed returns a Distribution that always returns position.
//
// Fixed(1) disables jitter, always waiting the full window.
func Fixed(position float64) Distribution {
	return fixed(position)
}

// ParseDistribution parses a distribution name.
//
// Valid names are "uniform", "uniform-closed", and "none". The empty string
// selects Uniform.
func ParseDistribution(s string) (Distribution, error) {
	switch strings.ToLower(s) {
	case "", "uniform":
		return Uniform, nil
	case "uniform-closed":
		return UniformClosed, nil
	case "none":
		return Fixed(1), nil
	default:
		return nil, fmt.Errorf("unknown jitter distribution %q, must be one of: uniform, uniform-closed, none", s)
	}
}

// Window returns the size of the backoff window in slot times for the given
// number of attempts, 2^attempts - 1. Attempts are clamped to MaxCeiling.
func Window(attempts uint32) uint64 {
	attempts = clamp(attempts, 0, MaxCeiling)
	return (uint64(1) << attempts) - 1
}

// Delay computes a full-jitter delay without a caller-supplied ceiling.
//
// The exponent is still bounded by MaxCeiling, and the result saturates at the
// largest representable time.Duration.
func Delay(base time.Duration, attempts uint32, rng *rand.Rand, distribution Distribution) time.Duration {
	return DelayTruncated(base, attempts, MaxCeiling, rng, distribution)
}

// DelayTruncated computes a full-jitter delay with the exponent truncated at ceiling.
//
// Any attempts value at or above ceiling produces the same result for the same draw.
//
//	backoff.DelayTruncated(time.Second, 0, 10, rng, backoff.Fixed(1))  // 0s
//	backoff.DelayTruncated(time.Second, 3, 10, rng, backoff.Fixed(1))  // 7s
//	backoff.DelayTruncated(time.Second, 12, 10, rng, backoff.Fixed(1)) // 1023s
func DelayTruncated(
	base time.Duration,
	attempts uint32,
	ceiling uint32,
	rng *rand.Rand,
	distribution Distribution,
) time.Duration {
	ceiling = clamp(ceiling, 0, MaxCeiling)
	window := Window(clamp(attempts, 0, ceiling))
	if window == 0 || base <= 0 {
		return 0
	}
	position := distribution.Sample(rng)
	if math.IsNaN(position) {
		position = 0
	}
	position = clamp(position, 0, 1)
	delay := float64(base) * position * float64(window)
	// float64(math.MaxInt64) rounds up to 2^63, so anything at or above it overflows.
	if delay >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

type uniform struct{}

func (uniform) Sample(rng *rand.Rand) float64 {
	return rng.Float64()
}

func (uniform) String() string {
	return "uniform"
}

type uniformClosed struct{}

// closedDenominator is 2^53, the number of evenly spaced float64 values in [0, 1).
const closedDenominator = 1 << 53

func (uniformClosed) Sample(rng *rand.Rand) float64 {
	return float64(rng.Int64N(closedDenominator+1)) / closedDenominator
}

func (uniformClosed) String() string {
	return "uniform-closed"
}

type fixed float64

func (f fixed) Sample(*rand.Rand) float64 {
	return float64(f)
}

func (f fixed) String() string {
	if f == 1 {
		return "none"
	}
	return fmt.Sprintf("fixed(%g)", float64(f))
}

// clamp bounds value to [low, high]. It panics if low > high.
func clamp[T cmp.Ordered](value, low, high T) T {
	if low > high {
		panic(fmt.Sprintf("backoff: clamp bounds out of order: %v > %v", low, high))
	}
	return min(max(value, low), high)
}
