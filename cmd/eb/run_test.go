// Copyright 2026 Peter Edge
//
// All rights reserved.

//go:build !windows

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"buf.build/go/app"
	"buf.build/go/app/appcmd"
	"github.com/bufdev/eb/cmd/eb/internal/ebcmd"
	"github.com/stretchr/testify/require"
)

func TestRunExitCodes(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		name string
		args []string
		want int
	}{
		{
			name: "succeeded",
			args: []string{"true"},
			want: 0,
		},
		{
			name: "exhausted",
			args: []string{"-x", "2", "--slot-time", "1ms", "sh", "-c", "exit 1"},
			want: ebcmd.ExitCodeExhausted,
		},
		{
			name: "no_command",
			want: ebcmd.ExitCodeNoCommand,
		},
		{
			name: "invalid_max",
			args: []string{"-x", "-1", "true"},
			want: ebcmd.ExitCodeInvalidConfiguration,
		},
		{
			name: "invalid_report_format",
			args: []string{"--report-format", "xml", "true"},
			want: ebcmd.ExitCodeInvalidConfiguration,
		},
		{
			name: "signal",
			args: []string{"sh", "-c", "kill -TERM $$"},
			want: ebcmd.ExitCodeSignal,
		},
		{
			name: "spawn_failure",
			args: []string{filepath.Join(t.TempDir(), "does-not-exist")},
			want: ebcmd.ExitCodeSpawnFailure,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			exitCode, _, _ := runRootCommand(t, test.args...)
			require.Equal(t, test.want, exitCode)
		})
	}
}

func TestRunArgsAfterCommandReachCommand(t *testing.T) {
	t.Parallel()
	exitCode, stdout, _ := runRootCommand(t, "sh", "-c", `echo "$1 $2"`, "sh", "-x", "10")
	require.Equal(t, 0, exitCode)
	require.Equal(t, "-x 10\n", stdout)
}

func TestRunWritesReport(t *testing.T) {
	t.Parallel()
	reportPath := filepath.Join(t.TempDir(), "report.csv")
	exitCode, _, _ := runRootCommand(
		t,
		"-x", "2",
		"--slot-time", "1ms",
		"--report", reportPath,
		"--report-format", "csv",
		"sh", "-c", "exit 3",
	)
	require.Equal(t, ebcmd.ExitCodeExhausted, exitCode)
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "ATTEMPT,START,EXIT,ELAPSED,SLOT_TIME,DELAY", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "1,"), lines[1])
	require.Contains(t, lines[1], ",exit status 3,")
	require.True(t, strings.HasPrefix(lines[2], "2,"), lines[2])
}

func TestRunReportToStderr(t *testing.T) {
	t.Parallel()
	exitCode, _, stderr := runRootCommand(t, "--report", "-", "--report-format", "csv", "true")
	require.Equal(t, 0, exitCode)
	require.Contains(t, stderr, "ATTEMPT,START,EXIT,ELAPSED,SLOT_TIME,DELAY\n")
}

func TestRunReportWriteFailureAfterSuccess(t *testing.T) {
	t.Parallel()
	reportPath := filepath.Join(t.TempDir(), "missing", "report.csv")
	exitCode, _, _ := runRootCommand(t, "--report", reportPath, "true")
	require.NotEqual(t, 0, exitCode)
}

func TestRunReportWriteFailureKeepsRunExitCode(t *testing.T) {
	t.Parallel()
	reportPath := filepath.Join(t.TempDir(), "missing", "report.csv")
	exitCode, _, _ := runRootCommand(t, "--report", reportPath, "sh", "-c", "kill -TERM $$")
	require.Equal(t, ebcmd.ExitCodeSignal, exitCode)
}

// runRootCommand runs the root command with args and returns the exit code,
// stdout, and stderr.
func runRootCommand(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	container := app.NewContainer(
		map[string]string{
			"PATH": os.Getenv("PATH"),
		},
		nil,
		&stdout,
		&stderr,
		append([]string{"eb"}, args...)...,
	)
	err := appcmd.Run(context.Background(), container, newRootCommand("eb"))
	return app.GetExitCode(err), stdout.String(), stderr.String()
}
