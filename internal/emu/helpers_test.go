// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestEnv builds an Env rooted in a temp dir with every external tool
// pointed at a do-nothing shell stub. Individual tests overwrite the stubs
// they care about.
func newTestEnv(t *testing.T) Env {
	t.Helper()
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	env := Env{
		DataDir:    filepath.Join(root, "data"),
		Emulator:   writeStub(t, bin, "emulator", "#!/bin/sh\nexit 0\n"),
		ADB:        writeStub(t, bin, "adb", "#!/bin/sh\nexit 0\n"),
		AvdManager: writeStub(t, bin, "avdmanager", "#!/bin/sh\nexit 0\n"),
		SdkManager: writeStub(t, bin, "sdkmanager", "#!/bin/sh\nexit 0\n"),
		Aapt:       writeStub(t, bin, "aapt", "#!/bin/sh\nexit 0\n"),
		MkSDCard:   filepath.Join(bin, "mksdcard-absent"),
		QemuImg:    writeStub(t, bin, "qemu-img", "#!/bin/sh\ntouch \"$4\"\nexit 0\n"),
		Context:    context.Background(),
	}
	return env
}

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write %s stub: %v", name, err)
	}
	return path
}

// longRunningEmulatorStub logs its arguments and idles until killed or until
// a "die" file appears next to it.
func longRunningEmulatorStub(t *testing.T, env Env) {
	t.Helper()
	dir := filepath.Dir(env.Emulator)
	writeStub(t, dir, "emulator", `#!/bin/sh
dir="$(dirname "$0")"
echo "$@" >> "$dir/emulator.log"
while [ ! -f "$dir/die" ]; do sleep 0.05; done
exit 0
`)
}

// stubLog reads the invocation log a stub appended to.
func stubLog(t *testing.T, env Env, tool string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(env.Emulator), tool+".log"))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("read %s log: %v", tool, err)
	}
	return string(data)
}

func logContains(t *testing.T, env Env, tool, want string) bool {
	t.Helper()
	return strings.Contains(stubLog(t, env, tool), want)
}

// waitForStubLog polls a stub's invocation log until it contains want at
// least n times or a bounded deadline passes, then returns the log. Launch
// only guarantees the process was started, so reads that race the stub's own
// write must poll.
func waitForStubLog(t *testing.T, env Env, tool, want string, n int) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		log := stubLog(t, env, tool)
		if strings.Count(log, want) >= n || time.Now().After(deadline) {
			return log
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// newTestStore creates a Store over a fresh test env.
func newTestStore(t *testing.T) (*Store, Env) {
	t.Helper()
	env := newTestEnv(t)
	store, err := NewStore(env)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, env
}
