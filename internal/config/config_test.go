// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/droidbay/emusess/internal/emu"
)

// fakeHome points HOME at a temp dir and clears homedir's cache so Load
// resolves against it.
func fakeHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.Reset()
	t.Cleanup(homedir.Reset)
	return home
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	home := fakeHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := filepath.Join(home, ".local", "share", "emusess"); cfg.DataDir != want {
		t.Fatalf("data_dir = %q, want %q", cfg.DataDir, want)
	}
	if cfg.BootTimeout != emu.DefaultBootTimeout {
		t.Fatalf("boot_timeout = %v", cfg.BootTimeout)
	}
	launch := emu.DefaultConfig()
	if cfg.Defaults.AVDName != launch.AVDName {
		t.Fatalf("avd_name = %q", cfg.Defaults.AVDName)
	}
	if cfg.Defaults.MemoryMB != launch.MemoryMB || cfg.Defaults.Cores != launch.Cores {
		t.Fatalf("launch defaults = %+v", cfg.Defaults)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	home := fakeHome(t)
	dir := filepath.Join(home, ".emusess")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	yaml := `data_dir: /srv/emusess
sdk_root: /opt/android-sdk
boot_timeout: 90s
defaults:
  memory_mb: 8192
  cores: 8
tools:
  adb: /custom/adb
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/emusess" {
		t.Fatalf("data_dir = %q", cfg.DataDir)
	}
	if cfg.SDKRoot != "/opt/android-sdk" {
		t.Fatalf("sdk_root = %q", cfg.SDKRoot)
	}
	if cfg.BootTimeout != 90*time.Second {
		t.Fatalf("boot_timeout = %v", cfg.BootTimeout)
	}
	if cfg.Defaults.MemoryMB != 8192 || cfg.Defaults.Cores != 8 {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Tools.ADB != "/custom/adb" {
		t.Fatalf("tools.adb = %q", cfg.Tools.ADB)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	fakeHome(t)
	t.Setenv("EMUSESS_DATA_DIR", "/env/emusess")
	t.Setenv("EMUSESS_SDK_ROOT", "/env/android-sdk")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/env/emusess" {
		t.Fatalf("data_dir = %q", cfg.DataDir)
	}
	if cfg.SDKRoot != "/env/android-sdk" {
		t.Fatalf("sdk_root = %q", cfg.SDKRoot)
	}
}

func TestEnvDerivesToolPathsFromSDKRoot(t *testing.T) {
	cfg := &Config{
		SDKRoot: "/opt/android-sdk",
		Tools:   Tools{ADB: "/custom/adb"},
	}
	env := cfg.Env()
	if env.Emulator != "/opt/android-sdk/emulator/emulator" {
		t.Fatalf("emulator = %q", env.Emulator)
	}
	if env.AvdManager != "/opt/android-sdk/cmdline-tools/latest/bin/avdmanager" {
		t.Fatalf("avdmanager = %q", env.AvdManager)
	}
	// Explicit tool override beats the SDK-derived path.
	if env.ADB != "/custom/adb" {
		t.Fatalf("adb = %q", env.ADB)
	}
}

func TestEnvAppliesDataDir(t *testing.T) {
	cfg := &Config{DataDir: "/srv/emusess"}
	if env := cfg.Env(); env.DataDir != "/srv/emusess" {
		t.Fatalf("data_dir = %q", env.DataDir)
	}
}

func TestLaunchConfigAppliesDefaults(t *testing.T) {
	cfg := &Config{Defaults: Defaults{
		AVDName:  "custom_avd",
		MemoryMB: 8192,
	}}
	launch := cfg.LaunchConfig()
	if launch.AVDName != "custom_avd" {
		t.Fatalf("avd_name = %q", launch.AVDName)
	}
	if launch.MemoryMB != 8192 {
		t.Fatalf("memory_mb = %d", launch.MemoryMB)
	}
	// Unset fields keep the built-in defaults.
	base := emu.DefaultConfig()
	if launch.SystemImage != base.SystemImage || launch.Cores != base.Cores {
		t.Fatalf("launch = %+v", launch)
	}
}
