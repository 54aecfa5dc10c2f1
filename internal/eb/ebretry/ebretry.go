// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ebretry runs a command repeatedly with truncated exponential backoff
// until it succeeds, is killed by a signal, or runs out of attempts.
//
// Each iteration runs the command once, classifies its exit, and on a non-zero
// exit updates the slot time estimate and sleeps for a jittered delay before the
// next iteration. When no slot time is configured, the slot time is the running
// mean of the command's observed execution time.
package ebretry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bufdev/eb/internal/pkg/backoff"
	"github.com/bufdev/eb/internal/pkg/procexec"
	"github.com/bufdev/eb/internal/pkg/slottime"
)

// ErrChildTerminatedBySignal is matched by errors.Is for any *SignalError.
var ErrChildTerminatedBySignal = errors.New("child terminated by signal")

// SignalError is returned when the command is killed by a signal.
type SignalError struct {
	// Attempt is the attempt that was killed.
	Attempt uint32
	// Signal is the name of the signal.
	Signal string
}

// Error implements error.
func (e *SignalError) Error() string {
	return fmt.Sprintf("child terminated by signal %s on attempt %d", e.Signal, e.Attempt)
}

// Is reports whether target is ErrChildTerminatedBySignal.
func (e *SignalError) Is(target error) bool {
	return target == ErrChildTerminatedBySignal
}

// State is the state of a retry run.
type State int

const (
	// StateRunning is the initial state.
	StateRunning State = iota
	// StateRetrying means the last attempt failed and another will follow the delay.
	StateRetrying
	// StateSucceeded means an attempt exited with status 0. Terminal.
	StateSucceeded
	// StateFatal means the run stopped on a non-retryable condition. Terminal.
	StateFatal
	// StateExhausted means the maximum number of attempts was reached without success. Terminal.
	StateExhausted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFatal:
		return "fatal"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config is the immutable configuration of a retry run.
type Config struct {
	// MaxAttempts caps the total number of attempts. Nil means unbounded.
	MaxAttempts *uint32
	// SlotTime pins the slot time. Nil means the slot time is learned from
	// observed execution times. Only slottime.UserSpecified is meaningful here.
	SlotTime slottime.SlotTime
	// Ceiling is the backoff exponent ceiling.
	Ceiling uint32
	// Distribution is the jitter distribution. Nil means backoff.Uniform.
	Distribution backoff.Distribution
	// Seed seeds the jitter rng. Nil means a random seed.
	Seed *uint64
}

// NewConfig returns a Config with the default ceiling and distribution.
func NewConfig() Config {
	return Config{
		Ceiling:      backoff.DefaultCeiling,
		Distribution: backoff.Uniform,
	}
}

// AttemptRecord describes a single completed attempt.
type AttemptRecord struct {
	// Attempt is the 1-based attempt number.
	Attempt uint32
	// Start is when the attempt was started.
	Start time.Time
	// Exit is how the command terminated.
	Exit procexec.Exit
	// Elapsed is how long the command ran.
	Elapsed time.Duration
	// SlotTime is the slot time after this attempt was observed.
	//
	// Nil if the attempt did not continue to backoff.
	SlotTime slottime.SlotTime
	// Delay is the backoff delay computed after this attempt.
	//
	// Zero if the attempt did not continue to backoff.
	Delay time.Duration
}

// Result is the outcome of a retry run.
type Result struct {
	// State is the terminal state, or StateRunning or StateRetrying if the run was
	// canceled or the command could not be started.
	State State
	// Attempts is the number of completed attempts.
	Attempts uint32
	// SlotTime is the final slot time, nil if none was established.
	SlotTime slottime.SlotTime
	// Records holds one record per completed attempt.
	Records []AttemptRecord
}

// Runner runs a command with retries.
type Runner interface {
	// Run runs name with args until a terminal state is reached.
	//
	// A Result is always returned, describing the attempts made so far.
	// The returned error is non-nil if the command could not be started
	// (*procexec.SpawnError), was killed by a signal (*SignalError), or ctx
	// was canceled between attempts.
	Run(ctx context.Context, name string, args []string) (*Result, error)
}

// RunnerOption is an option for a new Runner.
type RunnerOption func(*runner)

// RunnerWithRand sets the jitter rng, overriding Config.Seed.
func RunnerWithRand(rng *rand.Rand) RunnerOption {
	return func(runner *runner) {
		runner.rng = rng
	}
}

// RunnerWithSleep sets the function used to wait out backoff delays.
//
// The default sleeps on a timer and returns early with ctx.Err() if ctx is done.
func RunnerWithSleep(sleep func(ctx context.Context, delay time.Duration) error) RunnerOption {
	return func(runner *runner) {
		runner.sleep = sleep
	}
}

// RunnerWithNow sets the clock used for attempt start times.
func RunnerWithNow(now func() time.Time) RunnerOption {
	return func(runner *runner) {
		runner.now = now
	}
}

// NewRunner returns a new Runner.
//
//	runner := ebretry.NewRunner(logger, procexec.NewExecutor(), ebretry.NewConfig())
//	result, err := runner.Run(ctx, "curl", []string{"-f", url})
func NewRunner(
	logger *slog.Logger,
	executor procexec.Executor,
	config Config,
	options ...RunnerOption,
) Runner {
	if config.Distribution == nil {
		config.Distribution = backoff.Uniform
	}
	runner := &runner{
		logger:   logger,
		executor: executor,
		config:   config,
		sleep:    sleep,
		now:      time.Now,
	}
	for _, option := range options {
		option(runner)
	}
	if runner.rng == nil {
		runner.rng = newRand(config.Seed)
	}
	return runner
}

// *** PRIVATE ***

type runner struct {
	logger   *slog.Logger
	executor procexec.Executor
	config   Config
	rng      *rand.Rand
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

func (r *runner) Run(ctx context.Context, name string, args []string) (*Result, error) {
	result := &Result{
		State:    StateRunning,
		SlotTime: r.config.SlotTime,
	}
	r.logger.Debug("beginning iteration", "command", name, "max_attempts", formatMaxAttempts(r.config.MaxAttempts))
	for {
		// Cancellation is only observed between iterations, never mid-attempt.
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if r.attemptsExhausted(result.Attempts) {
			result.State = StateExhausted
			r.logger.Info("maximum attempts reached", "attempts", result.Attempts)
			return result, nil
		}
		r.logger.Debug("starting attempt", "attempt", result.Attempts+1)
		start := r.now()
		completion, err := r.executor.Execute(ctx, name, args)
		if err != nil {
			return result, err
		}
		result.Attempts++
		record := AttemptRecord{
			Attempt: result.Attempts,
			Start:   start,
			Exit:    completion.Exit,
			Elapsed: completion.Elapsed,
		}
		switch exit := completion.Exit.(type) {
		case procexec.Success:
			r.logger.Info("child exited with status 0, finished", "attempt", result.Attempts, "elapsed", completion.Elapsed)
			result.Records = append(result.Records, record)
			result.State = StateSucceeded
			return result, nil
		case procexec.Failure:
			r.logger.Info("child exited with non-zero status", "attempt", result.Attempts, "exit_code", exit.Code, "elapsed", completion.Elapsed)
		case procexec.SignalTerminated:
			r.logger.Error("child terminated by signal", "attempt", result.Attempts, "signal", exit.Signal)
			result.Records = append(result.Records, record)
			result.State = StateFatal
			return result, &SignalError{Attempt: result.Attempts, Signal: exit.Signal}
		default:
			return result, fmt.Errorf("unknown exit classification %T", completion.Exit)
		}
		if r.attemptsExhausted(result.Attempts) {
			// No delay is computed when no further attempt can follow.
			result.Records = append(result.Records, record)
			result.State = StateExhausted
			r.logger.Info("maximum attempts reached", "attempts", result.Attempts)
			return result, nil
		}
		result.SlotTime = slottime.Update(result.SlotTime, result.Attempts, completion.Elapsed)
		delay := backoff.DelayTruncated(
			result.SlotTime.Duration(),
			result.Attempts,
			r.config.Ceiling,
			r.rng,
			r.config.Distribution,
		)
		record.SlotTime = result.SlotTime
		record.Delay = delay
		result.Records = append(result.Records, record)
		result.State = StateRetrying
		r.logger.Debug("sleeping", "attempt", result.Attempts, "delay", delay, "slot_time", result.SlotTime.String())
		if err := r.sleep(ctx, delay); err != nil {
			// The attempt is fully recorded; the loop stops at the next boundary.
			r.logger.Debug("sleep interrupted", "error", err)
		}
	}
}

func (r *runner) attemptsExhausted(attempts uint32) bool {
	return r.config.MaxAttempts != nil && attempts >= *r.config.MaxAttempts
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func formatMaxAttempts(maxAttempts *uint32) string {
	if maxAttempts == nil {
		return "unbounded"
	}
	return fmt.Sprintf("%d", *maxAttempts)
}
