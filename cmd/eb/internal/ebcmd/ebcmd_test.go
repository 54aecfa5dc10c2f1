// Copyright 2026 Peter Edge
//
// All rights reserved.

package ebcmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bufdev/eb/internal/eb/ebconfig"
	"github.com/bufdev/eb/internal/eb/ebretry"
	"github.com/bufdev/eb/internal/pkg/cliio"
	"github.com/bufdev/eb/internal/pkg/procexec"
	"github.com/bufdev/eb/internal/pkg/slottime"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		name   string
		result *ebretry.Result
		err    error
		want   int
	}{
		{
			name:   "succeeded",
			result: &ebretry.Result{State: ebretry.StateSucceeded},
			want:   0,
		},
		{
			name:   "exhausted",
			result: &ebretry.Result{State: ebretry.StateExhausted},
			want:   ExitCodeExhausted,
		},
		{
			name: "no_command",
			err:  ebconfig.ErrNoCommandGiven,
			want: ExitCodeNoCommand,
		},
		{
			name: "invalid_value",
			err:  &ebconfig.InvalidValueError{Name: "max", Value: "x", Err: errors.New("invalid syntax")},
			want: ExitCodeInvalidConfiguration,
		},
		{
			name:   "signal",
			result: &ebretry.Result{State: ebretry.StateFatal},
			err:    &ebretry.SignalError{Attempt: 1, Signal: "SIGKILL"},
			want:   ExitCodeSignal,
		},
		{
			name:   "spawn",
			result: &ebretry.Result{},
			err:    fmt.Errorf("running: %w", &procexec.SpawnError{Name: "cmd", Err: os.ErrNotExist}),
			want:   ExitCodeSpawnFailure,
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: ExitCodeExhausted,
		},
	} {
		require.Equal(t, test.want, ExitCode(test.result, test.err), test.name)
	}
}

func TestNewAppError(t *testing.T) {
	t.Parallel()
	require.NoError(t, NewAppError(&ebretry.Result{State: ebretry.StateSucceeded}, nil))
	err := NewAppError(&ebretry.Result{State: ebretry.StateExhausted, Attempts: 3}, nil)
	require.EqualError(t, err, "command did not succeed after 3 attempts")
	err = NewAppError(nil, ebconfig.ErrNoCommandGiven)
	require.EqualError(t, err, "no command given")
}

func TestNewConfigFromFlags(t *testing.T) {
	t.Parallel()
	config, err := NewConfig(emptyGetenv, "", ebconfig.Values{Max: "4", SlotTime: "1s"})
	require.NoError(t, err)
	require.Equal(t, uint32(4), *config.MaxAttempts)
	require.Equal(t, slottime.UserSpecified(time.Second), config.SlotTime)
}

func TestNewConfigFlagsOverrideFile(t *testing.T) {
	t.Parallel()
	filePath := filepath.Join(t.TempDir(), "eb.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte("version: v1\nmax: 9\nceiling: 5\n"), 0o644))
	getenv := func(key string) string {
		if key == ebconfig.ConfigEnvVar {
			return filePath
		}
		return ""
	}
	config, err := NewConfig(getenv, "", ebconfig.Values{Max: "2"})
	require.NoError(t, err)
	require.Equal(t, uint32(2), *config.MaxAttempts)
	require.Equal(t, uint32(5), config.Ceiling)
}

func TestNewConfigMissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewConfig(emptyGetenv, filepath.Join(t.TempDir(), "missing.yaml"), ebconfig.Values{})
	require.Equal(t, ExitCodeInvalidConfiguration, ExitCode(nil, err))
}

func TestWriteReport(t *testing.T) {
	t.Parallel()
	result := &ebretry.Result{
		State:    ebretry.StateSucceeded,
		Attempts: 1,
		Records: []ebretry.AttemptRecord{
			{
				Attempt: 1,
				Start:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				Exit:    procexec.Success{},
				Elapsed: time.Second,
			},
		},
	}
	container := &fakeStderrContainer{}
	require.NoError(t, WriteReport(container, "-", cliio.FormatCSV, result))
	require.Equal(t, "ATTEMPT,START,EXIT,ELAPSED,SLOT_TIME,DELAY\n1,2026-03-01T12:00:00Z,exit status 0,1s,,\n", container.stderr.String())

	filePath := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReport(container, filePath, cliio.FormatJSON, result))
	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	require.Equal(t, `{"attempt":1,"start":"2026-03-01T12:00:00Z","exit_code":0,"elapsed":"1s"}`+"\n", string(data))
}

func emptyGetenv(string) string {
	return ""
}

type fakeStderrContainer struct {
	stderr bytes.Buffer
}

func (c *fakeStderrContainer) Stderr() io.Writer {
	return &c.stderr
}
