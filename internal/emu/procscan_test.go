// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"runtime"
	"testing"
)

func TestLooksLikeEmulator(t *testing.T) {
	cases := []struct {
		argv0 string
		want  bool
	}{
		{"/opt/android-sdk/emulator/emulator", true},
		{"emulator", true},
		{"/usr/bin/qemu-system-x86_64", true},
		{"qemu-system-aarch64", true},
		{"/usr/bin/bash", false},
		{"adb", false},
		{"/opt/emulator-sdk/bin/java", false},
	}
	for _, c := range cases {
		if got := looksLikeEmulator(c.argv0); got != c.want {
			t.Errorf("looksLikeEmulator(%q) = %v, want %v", c.argv0, got, c.want)
		}
	}
}

func TestScanInstancesWalksProcessTable(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process scan relies on /proc")
	}
	infos, err := ScanInstances()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// The host may legitimately run emulators; just verify the shape.
	for _, info := range infos {
		if info.Port == 0 {
			t.Errorf("instance pid %d has no port", info.PID)
		}
		if info.Serial != Serial(info.Port) {
			t.Errorf("serial %q does not match port %d", info.Serial, info.Port)
		}
	}
}
