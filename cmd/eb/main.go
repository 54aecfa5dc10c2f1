// Copyright 2026 Peter Edge
//
// All rights reserved.

package main

import (
	"context"
	"fmt"

	"buf.build/go/app/appcmd"
	"buf.build/go/app/appext"
	"github.com/bufdev/eb/cmd/eb/internal/ebcmd"
	"github.com/bufdev/eb/internal/eb/ebconfig"
	"github.com/bufdev/eb/internal/eb/ebretry"
	"github.com/bufdev/eb/internal/pkg/backoff"
	"github.com/bufdev/eb/internal/pkg/cliio"
	"github.com/spf13/pflag"
)

const (
	// maxFlagName is the flag name for the maximum number of attempts.
	maxFlagName = "max"
	// maxFlagShortName is the short flag name for the maximum number of attempts.
	maxFlagShortName = "x"
	// slotTimeFlagName is the flag name for the slot time.
	slotTimeFlagName = "slot-time"
	// ceilingFlagName is the flag name for the backoff exponent ceiling.
	ceilingFlagName = "ceiling"
	// jitterFlagName is the flag name for the jitter distribution.
	jitterFlagName = "jitter"
	// seedFlagName is the flag name for the jitter rng seed.
	seedFlagName = "seed"
	// configFlagName is the flag name for the configuration file path.
	configFlagName = "config"
	// reportFlagName is the flag name for the attempt report path.
	reportFlagName = "report"
	// reportFormatFlagName is the flag name for the attempt report format.
	reportFormatFlagName = "report-format"
)

func main() {
	appcmd.Main(context.Background(), newRootCommand("eb"))
}

// newRootCommand creates the root eb command.
func newRootCommand(name string) *appcmd.Command {
	builder := appext.NewBuilder(name)
	flags := newFlags()
	return &appcmd.Command{
		Use:   name + " [flags] command [args...]",
		Short: "Run a command until it succeeds, with exponential backoff between attempts",
		Long: `Run a command until it succeeds, with exponential backoff between attempts.

The command is run until it exits with status 0, is terminated by a signal, or
--max attempts have been made. After each non-zero exit, eb sleeps for a random
delay between zero and (2^n - 1) slot times, where n is the number of attempts
so far, capped at --ceiling.

Unless --slot-time is set, the slot time is the running mean of how long the
command has taken to run.

Flags must come before the command. Everything from the command name onwards is
passed to the command unchanged.

Exit codes:

  0  the command succeeded
  1  the command did not succeed within --max attempts
  2  no command was given
  3  a configuration value was invalid
  4  the command was terminated by a signal
  5  the command could not be started`,
		Args: appcmd.ArbitraryArgs,
		Run: builder.NewRunFunc(
			func(ctx context.Context, container appext.Container) error {
				return run(ctx, container, flags)
			},
		),
		BindFlags:           flags.Bind,
		BindPersistentFlags: builder.BindRoot,
	}
}

type flags struct {
	// Max is the maximum number of attempts.
	Max string
	// SlotTime is the slot time.
	SlotTime string
	// Ceiling is the backoff exponent ceiling.
	Ceiling string
	// Jitter is the jitter distribution.
	Jitter string
	// Seed is the jitter rng seed.
	Seed string
	// Config is the path to the configuration file.
	Config string
	// Report is the path to write the attempt report to.
	Report string
	// ReportFormat is the format of the attempt report.
	ReportFormat string
}

func newFlags() *flags {
	return &flags{}
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	// Stop at the first positional argument so the command's own flags reach it.
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(
		&f.Max,
		maxFlagName,
		maxFlagShortName,
		"",
		"Limit the number of times the command is executed (default unbounded)",
	)
	flagSet.StringVar(
		&f.SlotTime,
		slotTimeFlagName,
		"",
		"The slot time as a duration such as 500ms (default: the mean execution time of the command)",
	)
	flagSet.StringVar(
		&f.Ceiling,
		ceilingFlagName,
		"",
		fmt.Sprintf("The maximum backoff exponent, at most %d (default %d)", backoff.MaxCeiling, backoff.DefaultCeiling),
	)
	flagSet.StringVar(
		&f.Jitter,
		jitterFlagName,
		"",
		"The jitter distribution, one of: uniform, uniform-closed, none (default uniform)",
	)
	flagSet.StringVar(
		&f.Seed,
		seedFlagName,
		"",
		"Seed the jitter random number generator for reproducible delays",
	)
	flagSet.StringVar(
		&f.Config,
		configFlagName,
		"",
		fmt.Sprintf("The configuration file path (default $%s)", ebconfig.ConfigEnvVar),
	)
	flagSet.StringVar(
		&f.Report,
		reportFlagName,
		"",
		`Write a report of all attempts to this path, or "-" for stderr`,
	)
	flagSet.StringVar(
		&f.ReportFormat,
		reportFormatFlagName,
		string(cliio.FormatTable),
		"The report format, one of: table, csv, json",
	)
}

// values returns the configuration values set by flags.
func (f *flags) values() ebconfig.Values {
	return ebconfig.Values{
		Max:      f.Max,
		SlotTime: f.SlotTime,
		Ceiling:  f.Ceiling,
		Jitter:   f.Jitter,
		Seed:     f.Seed,
	}
}

func run(ctx context.Context, container appext.Container, flags *flags) error {
	name, args, err := ebconfig.SplitCommand(ebcmd.Args(container))
	if err != nil {
		return ebcmd.NewAppError(nil, err)
	}
	config, err := ebcmd.NewConfig(container.Env, flags.Config, flags.values())
	if err != nil {
		return ebcmd.NewAppError(nil, err)
	}
	reportFormat, err := cliio.ParseFormat(flags.ReportFormat)
	if err != nil {
		return ebcmd.NewAppError(nil, &ebconfig.InvalidValueError{Name: reportFormatFlagName, Value: flags.ReportFormat, Err: err})
	}
	logger := container.Logger()
	runner := ebretry.NewRunner(logger, ebcmd.NewExecutor(container), config)
	result, runErr := runner.Run(ctx, name, args)
	if flags.Report != "" {
		if err := ebcmd.WriteReport(container, flags.Report, reportFormat, result); err != nil {
			logger.Error("could not write report", "path", flags.Report, "error", err)
			if runErr == nil && result.State == ebretry.StateSucceeded {
				return err
			}
		}
	}
	return ebcmd.NewAppError(result, runErr)
}
