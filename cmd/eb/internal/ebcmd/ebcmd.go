// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ebcmd provides shared wiring for the eb command: reading configuration,
// constructing the executor from the app container, writing the attempt report,
// and mapping outcomes to exit codes.
package ebcmd

import (
	"errors"
	"fmt"
	"io"

	"buf.build/go/app"
	"github.com/bufdev/eb/internal/eb/ebconfig"
	"github.com/bufdev/eb/internal/eb/ebreport"
	"github.com/bufdev/eb/internal/eb/ebretry"
	"github.com/bufdev/eb/internal/pkg/cliio"
	"github.com/bufdev/eb/internal/pkg/procexec"
)

const (
	// ExitCodeExhausted is the exit code when the maximum number of attempts was
	// reached without success. It is also used for errors with no specific code.
	ExitCodeExhausted = 1
	// ExitCodeNoCommand is the exit code when no command was given.
	ExitCodeNoCommand = 2
	// ExitCodeInvalidConfiguration is the exit code for an invalid configuration value.
	ExitCodeInvalidConfiguration = 3
	// ExitCodeSignal is the exit code when the command was terminated by a signal.
	ExitCodeSignal = 4
	// ExitCodeSpawnFailure is the exit code when the command could not be started.
	ExitCodeSpawnFailure = 5
)

// reportStderr is the report path that writes the report to stderr.
const reportStderr = "-"

// Args returns the positional arguments of the container.
func Args(container app.ArgContainer) []string {
	args := make([]string, container.NumArgs())
	for i := range args {
		args[i] = container.Arg(i)
	}
	return args
}

// NewConfig reads the configuration file, if any, and merges flagValues over it.
//
// If configFilePath is empty, the path is taken from the EB_CONFIG environment
// variable via getenv. If that is also empty, only flagValues are used.
func NewConfig(getenv func(string) string, configFilePath string, flagValues ebconfig.Values) (ebretry.Config, error) {
	if configFilePath == "" {
		configFilePath = getenv(ebconfig.ConfigEnvVar)
	}
	var fileValues ebconfig.Values
	if configFilePath != "" {
		var err error
		fileValues, err = ebconfig.ReadValues(configFilePath)
		if err != nil {
			return ebretry.Config{}, err
		}
	}
	return ebconfig.NewConfig(ebconfig.Merge(fileValues, flagValues))
}

// NewExecutor returns an Executor whose commands inherit the stdio and
// environment of the container.
func NewExecutor(container app.Container) procexec.Executor {
	var env []string
	container.ForEachEnv(func(key string, value string) {
		env = append(env, key+"="+value)
	})
	return procexec.NewExecutor(
		procexec.ExecutorWithStdio(container.Stdin(), container.Stdout(), container.Stderr()),
		procexec.ExecutorWithEnv(env),
	)
}

// WriteReport writes the attempt report for result to reportPath.
//
// A reportPath of "-" writes to stderr.
func WriteReport(container app.StderrContainer, reportPath string, format cliio.Format, result *ebretry.Result) error {
	if reportPath == reportStderr {
		return ebreport.Write(container.Stderr(), format, result)
	}
	return cliio.ForWriteFile(reportPath, func(writer io.Writer) error {
		return ebreport.Write(writer, format, result)
	})
}

// ExitCode returns the process exit code for the outcome of a run.
//
// result may be nil if the run never started.
func ExitCode(result *ebretry.Result, err error) int {
	var (
		invalidValueErr *ebconfig.InvalidValueError
		spawnErr        *procexec.SpawnError
	)
	switch {
	case errors.Is(err, ebconfig.ErrNoCommandGiven):
		return ExitCodeNoCommand
	case errors.As(err, &invalidValueErr):
		return ExitCodeInvalidConfiguration
	case errors.Is(err, ebretry.ErrChildTerminatedBySignal):
		return ExitCodeSignal
	case errors.As(err, &spawnErr):
		return ExitCodeSpawnFailure
	case err != nil:
		return ExitCodeExhausted
	case result != nil && result.State == ebretry.StateSucceeded:
		return 0
	default:
		return ExitCodeExhausted
	}
}

// NewAppError returns an error carrying the exit code for the outcome of a run,
// or nil if the run succeeded.
func NewAppError(result *ebretry.Result, err error) error {
	exitCode := ExitCode(result, err)
	if exitCode == 0 {
		return nil
	}
	if err != nil {
		return app.NewError(exitCode, err.Error())
	}
	var attempts uint32
	if result != nil {
		attempts = result.Attempts
	}
	return app.NewError(exitCode, fmt.Sprintf("command did not succeed after %d attempts", attempts))
}
