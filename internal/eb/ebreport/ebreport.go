// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package ebreport renders the attempt history of a retry run.
package ebreport

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bufdev/eb/internal/eb/ebretry"
	"github.com/bufdev/eb/internal/pkg/cliio"
	"github.com/bufdev/eb/internal/pkg/procexec"
)

// Headers are the column names of the report in table and CSV formats.
var Headers = []string{"ATTEMPT", "START", "EXIT", "ELAPSED", "SLOT_TIME", "DELAY"}

// AttemptJSON is the JSON representation of a single attempt.
type AttemptJSON struct {
	Attempt  uint32 `json:"attempt"`
	Start    string `json:"start"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Signal   string `json:"signal,omitempty"`
	Elapsed  string `json:"elapsed"`
	SlotTime string `json:"slot_time,omitempty"`
	Delay    string `json:"delay,omitempty"`
}

// Write writes the attempts of result to writer in the given format.
//
// The table format ends with a totals row holding the terminal state, the
// total time spent running the command, and the total backoff delay.
func Write(writer io.Writer, format cliio.Format, result *ebretry.Result) error {
	switch format {
	case cliio.FormatTable:
		return cliio.WriteTable(writer, newTable(result))
	case cliio.FormatCSV:
		return cliio.WriteCSV(writer, newTable(result))
	case cliio.FormatJSON:
		attemptJSONs := make([]AttemptJSON, 0, len(result.Records))
		for _, record := range result.Records {
			attemptJSONs = append(attemptJSONs, newAttemptJSON(record))
		}
		return cliio.WriteJSON(writer, attemptJSONs...)
	default:
		return fmt.Errorf("unknown format: %q", format)
	}
}

func newTable(result *ebretry.Result) cliio.Table {
	rows := make([][]string, 0, len(result.Records))
	var totalElapsed, totalDelay time.Duration
	for _, record := range result.Records {
		totalElapsed += record.Elapsed
		totalDelay += record.Delay
		rows = append(
			rows,
			[]string{
				strconv.FormatUint(uint64(record.Attempt), 10),
				record.Start.Format(time.RFC3339),
				record.Exit.String(),
				record.Elapsed.String(),
				slotTimeString(record),
				delayString(record),
			},
		)
	}
	return cliio.Table{
		Headers: Headers,
		Rows:    rows,
		Totals: []string{
			"TOTAL",
			"",
			result.State.String(),
			totalElapsed.String(),
			"",
			totalDelay.String(),
		},
	}
}

func newAttemptJSON(record ebretry.AttemptRecord) AttemptJSON {
	attemptJSON := AttemptJSON{
		Attempt:  record.Attempt,
		Start:    record.Start.Format(time.RFC3339Nano),
		Elapsed:  record.Elapsed.String(),
		SlotTime: slotTimeString(record),
		Delay:    delayString(record),
	}
	switch exit := record.Exit.(type) {
	case procexec.Success:
		attemptJSON.ExitCode = new(int)
	case procexec.Failure:
		attemptJSON.ExitCode = &exit.Code
	case procexec.SignalTerminated:
		attemptJSON.Signal = exit.Signal
	}
	return attemptJSON
}

func slotTimeString(record ebretry.AttemptRecord) string {
	if record.SlotTime == nil {
		return ""
	}
	return record.SlotTime.String()
}

// delayString is empty for attempts that did not continue to backoff.
func delayString(record ebretry.AttemptRecord) string {
	if record.SlotTime == nil {
		return ""
	}
	return record.Delay.String()
}
