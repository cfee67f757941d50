// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
)

// Env carries the data directory and external tool locations used by every
// operation in this package. Values are plain strings so callers (CLI,
// tests) can point individual tools at stubs.
type Env struct {
	DataDir string // EMUSESS_DATA_DIR (default ~/.local/share/emusess)
	SDKRoot string // ANDROID_SDK_ROOT / ANDROID_HOME

	Emulator   string // emulator
	ADB        string // adb
	AvdManager string // avdmanager
	SdkManager string // sdkmanager
	Aapt       string // aapt
	MkSDCard   string // mksdcard
	QemuImg    string // qemu-img

	// CorrelationID ties logs and spans to a specific workflow/activity.
	CorrelationID string
	// Context is used to parent OpenTelemetry spans.
	Context context.Context
}

// Detect builds an Env from environment variables, falling back to the
// tools' bare names so PATH lookup applies.
func Detect() Env {
	usr, _ := user.Current()
	home := ""
	if usr != nil {
		home = usr.HomeDir
	} else if h := os.Getenv("HOME"); h != "" {
		home = h
	}

	sdk := getenv("ANDROID_SDK_ROOT", os.Getenv("ANDROID_HOME"))
	data := getenv("EMUSESS_DATA_DIR", filepath.Join(home, ".local", "share", "emusess"))

	env := Env{
		DataDir:       data,
		SDKRoot:       sdk,
		Emulator:      "emulator",
		ADB:           "adb",
		AvdManager:    "avdmanager",
		SdkManager:    "sdkmanager",
		Aapt:          "aapt",
		MkSDCard:      "mksdcard",
		QemuImg:       "qemu-img",
		CorrelationID: os.Getenv("EMUSESS_CORRELATION_ID"),
		Context:       context.Background(),
	}
	if sdk != "" {
		env.Emulator = filepath.Join(sdk, "emulator", "emulator")
		env.ADB = filepath.Join(sdk, "platform-tools", "adb")
		env.AvdManager = filepath.Join(sdk, "cmdline-tools", "latest", "bin", "avdmanager")
		env.SdkManager = filepath.Join(sdk, "cmdline-tools", "latest", "bin", "sdkmanager")
		env.MkSDCard = filepath.Join(sdk, "emulator", "mksdcard")
	}
	return env
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// SessionsDir is where per-session directories live.
func (e Env) SessionsDir() string { return filepath.Join(e.DataDir, "sessions") }

// SharedDir holds images shared across sessions (base userdata template).
func (e Env) SharedDir() string { return filepath.Join(e.DataDir, "shared") }

// AVDHome is where AVD templates are created, delegated to avdmanager.
func (e Env) AVDHome() string { return filepath.Join(e.DataDir, "avds") }
