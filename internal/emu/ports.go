// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"fmt"
	"net"
)

// The emulator binds a console port and an adb control port as an even/odd
// pair; the platform reserves even ports in [5554, 5682) for the pair base.
const (
	portRangeStart = 5554
	portRangeEnd   = 5682
)

// AllocatePort scans even ports in [5554, 5682), skipping ports the caller
// already holds, and probes both the port and its +1 pair with a local bind
// before releasing the probe listeners. The result is advisory: a race
// between probe and actual use exists and is accepted for a single-operator
// tool.
func AllocatePort(held map[int]bool) (int, error) {
	for p := portRangeStart; p < portRangeEnd; p += 2 {
		if held[p] {
			continue
		}
		if !portFree(p) || !portFree(p+1) {
			continue
		}
		return p, nil
	}
	return 0, errPortsExhausted(portRangeStart, portRangeEnd)
}

func portFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Serial derives the adb serial for a control port.
func Serial(port int) string { return fmt.Sprintf("emulator-%d", port) }
