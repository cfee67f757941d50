// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"bytes"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultBootTimeout bounds Manager.Start's boot wait unless overridden.
const DefaultBootTimeout = 120 * time.Second

// BootWatcher polls adb for device visibility and boot completion.
type BootWatcher struct {
	env Env

	// Interval between polls. Both phases share one deadline.
	Interval time.Duration
}

func NewBootWatcher(env Env) *BootWatcher {
	return &BootWatcher{env: env, Interval: 2 * time.Second}
}

// Wait blocks until the serial appears in adb's device list in "device"
// state and sys.boot_completed reads "1", or the timeout elapses. Returns
// false on timeout; callers must stop the half-booted instance themselves.
func (w *BootWatcher) Wait(serial string, timeout time.Duration) bool {
	_, span := startSpan(w.env, "boot.Wait",
		attribute.String("serial", serial),
		attribute.String("timeout", timeout.String()),
	)
	defer span.End()

	deadline := time.Now().Add(timeout)

	for !w.deviceVisible(serial) {
		if time.Now().After(deadline) {
			logEvent(w.env, "boot wait timeout", "serial", serial, "phase", "device", "timeout", timeout.String())
			span.SetAttributes(attribute.Bool("booted", false))
			return false
		}
		time.Sleep(w.Interval)
	}

	for !w.bootCompleted(serial) {
		if time.Now().After(deadline) {
			logEvent(w.env, "boot wait timeout", "serial", serial, "phase", "boot_completed", "timeout", timeout.String())
			span.SetAttributes(attribute.Bool("booted", false))
			return false
		}
		time.Sleep(w.Interval)
	}

	span.SetAttributes(attribute.Bool("booted", true))
	return true
}

// deviceVisible reports whether adb lists the serial in "device" state.
func (w *BootWatcher) deviceVisible(serial string) bool {
	var out bytes.Buffer
	cmd := exec.Command(w.env.ADB, "devices")
	cmd.Stdout = &out
	_ = cmd.Run()
	for _, line := range strings.Split(out.String(), "\n") {
		f := strings.Fields(line)
		if len(f) >= 2 && f[0] == serial && f[1] == "device" {
			return true
		}
	}
	return false
}

func (w *BootWatcher) bootCompleted(serial string) bool {
	var out bytes.Buffer
	cmd := exec.Command(w.env.ADB, "-s", serial, "shell", "getprop", "sys.boot_completed")
	cmd.Stdout = &out
	cmd.Stderr = &bytes.Buffer{}
	_ = cmd.Run()
	return strings.TrimSpace(out.String()) == "1"
}
