// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// consoleKillADBStub makes the adb stub terminate the long-running emulator
// stub when asked for a console kill, so graceful shutdown paths complete.
func consoleKillADBStub(t *testing.T, env Env) {
	t.Helper()
	writeStub(t, filepath.Dir(env.ADB), "adb", `#!/bin/sh
dir="$(dirname "$0")"
echo "$@" >> "$dir/adb.log"
case "$*" in
*"emu kill"*) touch "$dir/die" ;;
esac
exit 0
`)
}

func newTestSupervisor(t *testing.T) (*Supervisor, Env) {
	t.Helper()
	env := newTestEnv(t)
	longRunningEmulatorStub(t, env)
	sup := NewSupervisor(env)
	sup.GracefulTimeout = 2 * time.Second
	sup.ExitTimeout = 100 * time.Millisecond
	t.Cleanup(sup.StopAll)
	return sup, env
}

func TestLaunchRegistersAndIsIdempotent(t *testing.T) {
	sup, env := newTestSupervisor(t)

	port, err := sup.Launch("s1", DefaultConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if !sup.IsRunning("s1") {
		t.Fatal("session not running after launch")
	}
	again, err := sup.Launch("s1", DefaultConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	if again != port {
		t.Fatalf("relaunch returned port %d, want %d", again, port)
	}
	if n := strings.Count(waitForStubLog(t, env, "emulator", "-avd", 1), "-avd"); n != 1 {
		t.Fatalf("emulator spawned %d times, want 1", n)
	}
	if serial, ok := sup.SerialFor("s1"); !ok || serial != Serial(port) {
		t.Fatalf("serial = %q, %v", serial, ok)
	}
}

func TestLaunchPassesSessionDiskImages(t *testing.T) {
	sup, env := newTestSupervisor(t)

	dir := t.TempDir()
	userdata := filepath.Join(dir, userdataFilename)
	sdcard := filepath.Join(dir, sdcardFilename)
	for _, p := range []string{userdata, sdcard} {
		if err := os.WriteFile(p, []byte("img"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	cfg := DefaultConfig()
	port, err := sup.Launch("s1", cfg, dir)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	log := waitForStubLog(t, env, "emulator", "-avd", 1)
	for _, want := range []string{
		"-avd " + cfg.AVDName,
		fmt.Sprintf("-port %d", port),
		"-data " + userdata,
		"-sdcard " + sdcard,
		"-no-window",
		"-gpu " + cfg.GPU,
	} {
		if !strings.Contains(log, want) {
			t.Errorf("emulator args missing %q:\n%s", want, log)
		}
	}
}

func TestLaunchSkipsMissingDiskImages(t *testing.T) {
	sup, env := newTestSupervisor(t)

	if _, err := sup.Launch("s1", DefaultConfig(), t.TempDir()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	log := stubLog(t, env, "emulator")
	if strings.Contains(log, "-data") || strings.Contains(log, "-sdcard") {
		t.Fatalf("disk image flags passed without images:\n%s", log)
	}
}

func TestLaunchHonorsFixedPort(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	cfg := DefaultConfig()
	cfg.Port = 5600

	port, err := sup.Launch("s1", cfg, t.TempDir())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if port != 5600 {
		t.Fatalf("port = %d, want 5600", port)
	}
}

func TestLaunchAssignsDistinctPorts(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	p1, err := sup.Launch("a", DefaultConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("launch a: %v", err)
	}
	p2, err := sup.Launch("b", DefaultConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("launch b: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("both sessions got port %d", p1)
	}
	if len(sup.Running()) != 2 {
		t.Fatalf("running = %v", sup.Running())
	}
}

func TestStopUnknownSessionIsNoop(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	wasRunning, err := sup.Stop("nope", false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if wasRunning {
		t.Fatal("unknown session reported as running")
	}
}

func TestStopGracefulConsoleKill(t *testing.T) {
	sup, env := newTestSupervisor(t)
	consoleKillADBStub(t, env)
	sup.ExitTimeout = 5 * time.Second

	port, err := sup.Launch("s1", DefaultConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	wasRunning, err := sup.Stop("s1", false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !wasRunning {
		t.Fatal("stop reported session as not running")
	}
	if sup.IsRunning("s1") {
		t.Fatal("session still running after stop")
	}
	want := fmt.Sprintf("-s %s emu kill", Serial(port))
	if !logContains(t, env, "adb", want) {
		t.Fatalf("console kill not issued:\n%s", stubLog(t, env, "adb"))
	}
}

func TestStopForceKillsUnresponsiveInstance(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	// Default adb stub never terminates the emulator, so the process group
	// kill after ExitTimeout has to finish the job.
	if _, err := sup.Launch("s1", DefaultConfig(), t.TempDir()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	wasRunning, err := sup.Stop("s1", false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !wasRunning {
		t.Fatal("stop reported session as not running")
	}
	if sup.IsRunning("s1") {
		t.Fatal("session still registered after force kill")
	}
}

func TestStopDiscardStateSkipsConsoleKill(t *testing.T) {
	sup, env := newTestSupervisor(t)
	consoleKillADBStub(t, env)
	// A long ExitTimeout must not delay the discard-state path: the group
	// is killed up front, not after the wait.
	sup.ExitTimeout = 10 * time.Second

	if _, err := sup.Launch("s1", DefaultConfig(), t.TempDir()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	began := time.Now()
	if _, err := sup.Stop("s1", true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(began); elapsed > 2*time.Second {
		t.Fatalf("discard-state stop took %s, want an immediate kill", elapsed)
	}
	if logContains(t, env, "adb", "emu kill") {
		t.Fatal("console kill issued despite discarding state")
	}
	if sup.IsRunning("s1") {
		t.Fatal("session still running after discard-state stop")
	}
}

func TestStopAllEmptiesRegistry(t *testing.T) {
	sup, _ := newTestSupervisor(t)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := sup.Launch(id, DefaultConfig(), t.TempDir()); err != nil {
			t.Fatalf("launch %s: %v", id, err)
		}
	}
	sup.StopAll()
	if len(sup.Running()) != 0 {
		t.Fatalf("registry not empty: %v", sup.Running())
	}
}

func TestIsRunningDetectsCrashedInstance(t *testing.T) {
	env := newTestEnv(t) // default emulator stub exits immediately
	sup := NewSupervisor(env)
	sup.ExitTimeout = time.Second
	t.Cleanup(sup.StopAll)

	if _, err := sup.Launch("s1", DefaultConfig(), t.TempDir()); err != nil {
		t.Fatalf("launch: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for sup.IsRunning("s1") {
		if time.Now().After(deadline) {
			t.Fatal("exited instance still reported running")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
