// Copyright 2026 Peter Edge
//
// All rights reserved.

//go:build !windows

package procexec

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// terminatingSignal returns the name of the signal that killed the process, if any.
//
// Names are the conventional SIG-prefixed names such as SIGTERM.
func terminatingSignal(state *os.ProcessState) (string, bool) {
	waitStatus, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !waitStatus.Signaled() {
		return "", false
	}
	signal := waitStatus.Signal()
	if name := unix.SignalName(signal); name != "" {
		return name, true
	}
	return signal.String(), true
}
