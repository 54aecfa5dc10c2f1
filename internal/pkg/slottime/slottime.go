// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package slottime provides the base unit of backoff delay and its running estimator.
//
// A SlotTime is either UserSpecified, pinned by configuration and never changed, or
// AutoGenerated, learned from the observed execution time of the retried command.
package slottime

import (
	"fmt"
	"math/bits"
	"time"
)

// SlotTime is the base unit of delay multiplied by the backoff window.
//
// The only implementations are UserSpecified and AutoGenerated. A nil SlotTime
// means no slot time has been established yet.
type SlotTime interface {
	// Duration returns the slot duration.
	Duration() time.Duration
	// String returns a human-readable description, e.g. "auto:1.5s".
	String() string

	isSlotTime()
}

// UserSpecified is a slot time fixed by configuration.
type UserSpecified time.Duration

// AutoGenerated is a slot time derived from observed execution times.
type AutoGenerated time.Duration

// Duration implements SlotTime.
func (u UserSpecified) Duration() time.Duration {
	return time.Duration(u)
}

// String implements SlotTime.
func (u UserSpecified) String() string {
	return fmt.Sprintf("user:%v", time.Duration(u))
}

// Duration implements SlotTime.
func (a AutoGenerated) Duration() time.Duration {
	return time.Duration(a)
}

// String implements SlotTime.
func (a AutoGenerated) String() string {
	return fmt.Sprintf("auto:%v", time.Duration(a))
}

// Update returns the slot time to use after an attempt that took elapsed.
//
// attemptIndex is the number of completed attempts including the one that took
// elapsed. A UserSpecified slot time is returned unchanged. An AutoGenerated slot
// time becomes the running mean of all observed elapsed times. A nil slot time is
// seeded with elapsed.
//
//	s := slottime.Update(nil, 1, 2*time.Second) // auto:2s
//	s = slottime.Update(s, 2, 4*time.Second)    // auto:3s
func Update(current SlotTime, attemptIndex uint32, elapsed time.Duration) SlotTime {
	switch current := current.(type) {
	case nil:
		return AutoGenerated(elapsed)
	case UserSpecified:
		return current
	case AutoGenerated:
		// attemptIndex 0 would divide by zero, and means this is the first observation.
		return AutoGenerated(runningMean(time.Duration(current), uint64(max(attemptIndex, 1)), elapsed))
	default:
		panic(fmt.Sprintf("slottime: unknown SlotTime type %T", current))
	}
}

// runningMean returns (mean*(n-1) + elapsed) / n for n >= 1.
//
// The sum is computed in 128 bits so that long latencies over many attempts cannot
// overflow. Negative inputs are treated as zero.
func runningMean(mean time.Duration, n uint64, elapsed time.Duration) time.Duration {
	hi, lo := bits.Mul64(uint64(max(mean, 0)), n-1)
	lo, carry := bits.Add64(lo, uint64(max(elapsed, 0)), 0)
	hi += carry
	// Both terms are at most math.MaxInt64, so the quotient fits and hi < n.
	quotient, _ := bits.Div64(hi, lo, n)
	return time.Duration(quotient)
}

func (UserSpecified) isSlotTime() {}
func (AutoGenerated) isSlotTime() {}
