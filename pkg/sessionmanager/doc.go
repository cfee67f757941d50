// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

/*
Package sessionmanager provides a Go library for running Android emulator
instances as persistent, named sessions with isolated disk state.

# Overview

A session is a durable emulator identity: its own userdata image, SD-card
image, snapshot history and metadata, kept under a per-session directory.
Starting a session launches an emulator process backed by those images;
stopping it leaves the disk state in place so the next start resumes where
the session left off.

# Quick Start

	import "github.com/droidbay/emusess/pkg/sessionmanager"

	func main() {
		mgr, err := sessionmanager.New()
		if err != nil {
			log.Fatal(err)
		}
		defer mgr.Close()

		// Create a session seeded from the shared base image
		mgr.Create("research-1", sessionmanager.CreateOptions{
			FromTemplate: "base",
		})

		// Boot it (provisions the AVD and system image on demand)
		serial, err := mgr.Start("research-1", sessionmanager.StartOptions{})
		if err != nil {
			log.Fatal(err)
		}

		// Work against the instance via adb -s <serial> ...
		_ = serial

		// Checkpoint and stop; app data persists on disk
		mgr.SaveSnapshot("research-1", "logged-in")
		mgr.Stop("research-1", false)
	}

# Key Concepts

**Session**: a named, persistent emulator identity with its own disk images
and snapshot history, independent of whether an instance is running.

**Instance**: the live emulator process backing a running session,
addressed by its adb serial (emulator-<port>).

**AVD**: the virtual-device template (system image + hardware profile)
instances are launched from; provisioned automatically on first start.

**Snapshot**: a named, instance-managed checkpoint of full device state,
restorable while the session runs and listed from metadata when stopped.

# Lifecycle

Sessions move through created → running → stopped → deleted. Start
auto-creates a missing session; Stop is idempotent; Delete refuses a
running session unless forced. Restart is stop + start, not atomic.

# Concurrency

Operations on different sessions are independent. Operations on the same
session are not synchronized — use one caller per session at a time. The
library assumes a single manager process per data directory; metadata files
are not locked against concurrent external writers.

If this process exits while instances run, those instances keep running
untracked. The emusess CLI's ps command (or ScanInstances in internal/emu)
finds such orphans.

# Environment Configuration

By default paths are auto-detected from ANDROID_SDK_ROOT / ANDROID_HOME and
EMUSESS_DATA_DIR. Use NewWithEnvironment to override tools and directories.

# Requirements

  - Android SDK with emulator, adb, avdmanager, sdkmanager
  - aapt for APK package-name resolution (optional, best effort)
  - KVM for hardware acceleration (Linux)

# License

AGPL-3.0-only

Copyright (C) 2026 Droidbay Labs
*/
package sessionmanager
