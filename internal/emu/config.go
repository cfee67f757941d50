// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

// Config describes one emulator launch. Values are fixed at construction;
// nothing in this package mutates a Config after it has been used.
type Config struct {
	// AVD settings.
	AVDName       string
	SystemImage   string
	DeviceProfile string

	// Display.
	Headless bool
	GPU      string // swiftshader_indirect for headless, host otherwise

	// Resources.
	MemoryMB int
	Cores    int
	SDCardMB int

	// Port pins the control port; 0 means auto-assign.
	Port int

	// Persistence.
	WritableSystem bool
	SnapshotOnExit bool
}

// DefaultConfig returns the documented launch defaults.
func DefaultConfig() Config {
	return Config{
		AVDName:        "base_pixel7_api34",
		SystemImage:    "system-images;android-34;google_apis;x86_64",
		DeviceProfile:  "pixel_7",
		Headless:       true,
		GPU:            "swiftshader_indirect",
		MemoryMB:       4096,
		Cores:          4,
		SDCardMB:       2048,
		SnapshotOnExit: true,
	}
}
