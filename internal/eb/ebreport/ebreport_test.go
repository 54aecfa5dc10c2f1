// Copyright 2026 Peter Edge
//
// All rights reserved.

package ebreport

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bufdev/eb/internal/eb/ebretry"
	"github.com/bufdev/eb/internal/pkg/cliio"
	"github.com/bufdev/eb/internal/pkg/procexec"
	"github.com/bufdev/eb/internal/pkg/slottime"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestWriteJSON(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, cliio.FormatJSON, newTestResult()))
	require.Equal(
		t,
		strings.Join(
			[]string{
				`{"attempt":1,"start":"2026-03-01T12:00:00Z","exit_code":1,"elapsed":"2s","slot_time":"auto:2s","delay":"1s"}`,
				`{"attempt":2,"start":"2026-03-01T12:00:03Z","signal":"SIGKILL","elapsed":"500ms"}`,
				`{"attempt":3,"start":"2026-03-01T12:00:04Z","exit_code":0,"elapsed":"1s"}`,
				``,
			},
			"\n",
		),
		buffer.String(),
	)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, cliio.FormatCSV, newTestResult()))
	require.Equal(
		t,
		strings.Join(
			[]string{
				"ATTEMPT,START,EXIT,ELAPSED,SLOT_TIME,DELAY",
				"1,2026-03-01T12:00:00Z,exit status 1,2s,auto:2s,1s",
				"2,2026-03-01T12:00:03Z,signal: SIGKILL,500ms,,",
				"3,2026-03-01T12:00:04Z,exit status 0,1s,,",
				"",
			},
			"\n",
		),
		buffer.String(),
	)
}

func TestWriteTableTotals(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, cliio.FormatTable, newTestResult()))
	lines := strings.Split(strings.TrimSuffix(buffer.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	require.Equal(t, []string{"ATTEMPT", "START", "EXIT", "ELAPSED", "SLOT_TIME", "DELAY"}, strings.Fields(lines[0]))
	require.Equal(t, []string{"TOTAL", "succeeded", "3.5s", "1s"}, strings.Fields(lines[5]))
}

func TestWriteEmpty(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	require.NoError(t, Write(&buffer, cliio.FormatJSON, &ebretry.Result{State: ebretry.StateExhausted}))
	require.Empty(t, buffer.String())
}

func TestWriteUnknownFormat(t *testing.T) {
	t.Parallel()
	require.Error(t, Write(&bytes.Buffer{}, cliio.Format("xml"), newTestResult()))
}

func newTestResult() *ebretry.Result {
	return &ebretry.Result{
		State:    ebretry.StateSucceeded,
		Attempts: 3,
		SlotTime: slottime.AutoGenerated(2 * time.Second),
		Records: []ebretry.AttemptRecord{
			{
				Attempt:  1,
				Start:    testStart,
				Exit:     procexec.Failure{Code: 1},
				Elapsed:  2 * time.Second,
				SlotTime: slottime.AutoGenerated(2 * time.Second),
				Delay:    time.Second,
			},
			{
				Attempt: 2,
				Start:   testStart.Add(3 * time.Second),
				Exit:    procexec.SignalTerminated{Signal: "SIGKILL"},
				Elapsed: 500 * time.Millisecond,
			},
			{
				Attempt: 3,
				Start:   testStart.Add(4 * time.Second),
				Exit:    procexec.Success{},
				Elapsed: time.Second,
			},
		},
	}
}
