// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package procexec runs a command to completion and classifies how it exited.
package procexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Exit is the classification of how a command terminated.
//
// The only implementations are Success, Failure, and SignalTerminated.
type Exit interface {
	// String returns a human-readable description, e.g. "exit status 1".
	String() string

	isExit()
}

// Success is an exit with status 0.
type Success struct{}

// Failure is an exit with a non-zero status.
type Failure struct {
	// Code is the exit status.
	Code int
}

// SignalTerminated is a termination by signal, with no exit status.
type SignalTerminated struct {
	// Signal is the name of the signal, e.g. "SIGTERM".
	Signal string
}

// String implements Exit.
func (Success) String() string {
	return "exit status 0"
}

// String implements Exit.
func (f Failure) String() string {
	return fmt.Sprintf("exit status %d", f.Code)
}

// String implements Exit.
func (s SignalTerminated) String() string {
	return "signal: " + s.Signal
}

// Completion is the result of running a command that was started.
type Completion struct {
	// Exit is how the command terminated.
	Exit Exit
	// Elapsed is the wall-clock time from start to exit.
	Elapsed time.Duration
}

// SpawnError is returned when a command could not be started at all.
type SpawnError struct {
	// Name is the command name.
	Name string
	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("could not start %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Executor runs a command and waits for it to exit.
type Executor interface {
	// Execute starts name with args and waits for it to exit.
	//
	// If the command cannot be started, a *SpawnError is returned. A command that
	// starts is never killed by Execute; ctx is only consulted before starting.
	Execute(ctx context.Context, name string, args []string) (Completion, error)
}

// ExecutorOption is an option for a new Executor.
type ExecutorOption func(*executor)

// ExecutorWithStdio sets the stdin, stdout, and stderr inherited by the command.
//
// A nil value leaves the command's corresponding stream connected to the null device.
func ExecutorWithStdio(stdin io.Reader, stdout io.Writer, stderr io.Writer) ExecutorOption {
	return func(executor *executor) {
		executor.stdin = stdin
		executor.stdout = stdout
		executor.stderr = stderr
	}
}

// ExecutorWithEnv sets the environment of the command as KEY=VALUE pairs.
//
// If not set, the command inherits the environment of the current process.
func ExecutorWithEnv(env []string) ExecutorOption {
	return func(executor *executor) {
		executor.env = env
	}
}

// ExecutorWithNow sets the clock used to measure elapsed time.
func ExecutorWithNow(now func() time.Time) ExecutorOption {
	return func(executor *executor) {
		executor.now = now
	}
}

// NewExecutor returns a new Executor backed by os/exec.
//
//	executor := procexec.NewExecutor(procexec.ExecutorWithStdio(os.Stdin, os.Stdout, os.Stderr))
//	completion, err := executor.Execute(ctx, "curl", []string{"-f", url})
func NewExecutor(options ...ExecutorOption) Executor {
	executor := &executor{
		now: time.Now,
	}
	for _, option := range options {
		option(executor)
	}
	return executor
}

type executor struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	env    []string
	now    func() time.Time
}

func (e *executor) Execute(ctx context.Context, name string, args []string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	cmd := exec.Command(name, args...)
	cmd.Stdin = e.stdin
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	cmd.Env = e.env
	start := e.now()
	if err := cmd.Start(); err != nil {
		return Completion{}, &SpawnError{Name: name, Err: err}
	}
	err := cmd.Wait()
	elapsed := e.now().Sub(start)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The process ran but copying its stdio failed.
			return Completion{}, fmt.Errorf("waiting for %q: %w", name, err)
		}
	}
	exit, err := classify(cmd)
	if err != nil {
		return Completion{}, err
	}
	return Completion{
		Exit:    exit,
		Elapsed: elapsed,
	}, nil
}

func classify(cmd *exec.Cmd) (Exit, error) {
	state := cmd.ProcessState
	if state == nil {
		return nil, fmt.Errorf("no process state for %q", cmd.Path)
	}
	if signal, ok := terminatingSignal(state); ok {
		return SignalTerminated{Signal: signal}, nil
	}
	switch code := state.ExitCode(); code {
	case 0:
		return Success{}, nil
	case -1:
		// Exited without a status and without a signal we can name.
		return SignalTerminated{Signal: "unknown"}, nil
	default:
		return Failure{Code: code}, nil
	}
}

func (Success) isExit()          {}
func (Failure) isExit()          {}
func (SignalTerminated) isExit() {}
