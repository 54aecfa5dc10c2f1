// Copyright 2026 Peter Edge
//
// All rights reserved.

//go:build windows

package procexec

import "os"

// terminatingSignal always reports false; Windows processes always have an exit code.
func terminatingSignal(*os.ProcessState) (string, bool) {
	return "", false
}
