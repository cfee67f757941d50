// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// ErrBootTimeout is returned by Manager.Start when the instance did not
// report boot completion within the deadline. The half-booted instance has
// already been stopped by the time the error surfaces.
var ErrBootTimeout = errors.New("emulator did not report boot completion")

func errAlreadyExists(id string) error {
	return fmt.Errorf("session %q already exists: %w", id, errdefs.ErrAlreadyExists)
}

func errNotFound(id string) error {
	return fmt.Errorf("session %q not found: %w", id, errdefs.ErrNotFound)
}

func errSessionRunning(id string) error {
	return fmt.Errorf("session %q is running, stop it first or use force: %w", id, errdefs.ErrConflict)
}

func errSessionNotRunning(id string) error {
	return fmt.Errorf("session %q is not running: %w", id, errdefs.ErrFailedPrecondition)
}

func errPortsExhausted(start, end int) error {
	return fmt.Errorf("no free even port pair in %d..%d: %w", start, end, errdefs.ErrResourceExhausted)
}

// errProvisioning wraps an SDK tool failure with its combined output so the
// caller sees the tool's own diagnostics.
func errProvisioning(tool string, cause error, output []byte) error {
	return fmt.Errorf("%s: %v\n%s: %w", tool, cause, strings.TrimSpace(string(output)), errdefs.ErrUnavailable)
}

func errLaunch(id string, cause error) error {
	return fmt.Errorf("launching emulator for session %q: %v: %w", id, cause, errdefs.ErrInternal)
}
