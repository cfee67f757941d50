// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultGracefulTimeout = 10 * time.Second
	defaultExitTimeout     = 30 * time.Second
)

// instance is one live emulator process backing a running session.
type instance struct {
	cmd  *exec.Cmd
	port int
	done chan struct{} // closed once cmd.Wait returns
}

func (i *instance) exited() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// Supervisor launches, tracks and terminates one emulator process per
// running session. The registry lives only for the supervisor's lifetime; a
// process that outlives it becomes an orphan with no tracked handle (see
// ScanInstances for best-effort discovery).
type Supervisor struct {
	env Env

	// GracefulTimeout bounds the adb console kill request; ExitTimeout
	// bounds the wait for process exit before the process group is killed.
	GracefulTimeout time.Duration
	ExitTimeout     time.Duration

	mu        sync.Mutex
	instances map[string]*instance
}

func NewSupervisor(env Env) *Supervisor {
	return &Supervisor{
		env:             env,
		GracefulTimeout: defaultGracefulTimeout,
		ExitTimeout:     defaultExitTimeout,
		instances:       make(map[string]*instance),
	}
}

// Launch starts the emulator for a session and registers its handle and
// port. Launch is idempotent, not a restart: if the session is already
// registered its existing port is returned.
func (s *Supervisor) Launch(id string, cfg Config, sessionDir string) (int, error) {
	_, span := startSpan(s.env, "supervisor.Launch",
		attribute.String("session_id", id),
		attribute.String("avd_name", cfg.AVDName),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if inst, ok := s.instances[id]; ok {
		span.SetAttributes(attribute.Int("port", inst.port), attribute.Bool("already_running", true))
		return inst.port, nil
	}

	port := cfg.Port
	if port == 0 {
		var err error
		port, err = AllocatePort(s.heldPortsLocked())
		if err != nil {
			recordSpanError(span, err)
			return 0, err
		}
	}

	args := []string{
		"-avd", cfg.AVDName,
		"-port", fmt.Sprint(port),
		"-memory", fmt.Sprint(cfg.MemoryMB),
		"-cores", fmt.Sprint(cfg.Cores),
	}
	if userdata := filepath.Join(sessionDir, userdataFilename); fileExists(userdata) {
		args = append(args, "-data", userdata)
	}
	if sdcard := filepath.Join(sessionDir, sdcardFilename); fileExists(sdcard) {
		args = append(args, "-sdcard", sdcard)
	}
	if cfg.Headless {
		args = append(args, "-no-window", "-no-audio", "-no-boot-anim", "-gpu", cfg.GPU)
	} else {
		args = append(args, "-gpu", "host")
	}
	if cfg.WritableSystem {
		args = append(args, "-writable-system")
	}
	if !cfg.SnapshotOnExit {
		args = append(args, "-no-snapshot-save")
	}

	cmd := exec.Command(s.env.Emulator, args...)
	cmd.Env = append(os.Environ(),
		"ANDROID_AVD_HOME="+s.env.AVDHome(),
		"QEMU_FILE_LOCKING=off",
	)
	logWriter := newInstanceLogWriter(s.env, "session_id", id, "port", port)
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter
	// Own process group so the whole emulator tree can be killed as a unit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	logEvent(s.env, "emulator starting", "session_id", id, "port", port, "avd_name", cfg.AVDName)
	if err := cmd.Start(); err != nil {
		recordSpanError(span, err)
		return 0, errLaunch(id, err)
	}

	inst := &instance{cmd: cmd, port: port, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(inst.done)
	}()
	s.instances[id] = inst

	span.SetAttributes(attribute.Int("port", port), attribute.Int("pid", cmd.Process.Pid))
	logEvent(s.env, "emulator started",
		"session_id", id, "port", port, "serial", Serial(port), "pid", cmd.Process.Pid)
	return port, nil
}

// Stop terminates a session's emulator: a graceful console kill bounded by
// GracefulTimeout, a wait for process exit bounded by ExitTimeout, then a
// SIGKILL of the whole process group and an unconditional wait. The registry
// entry is removed regardless of how shutdown went. Returns false without
// error when the session is not registered.
//
// discardState kills the process group outright instead of the graceful
// console request, so the emulator exits without writing its quickboot
// snapshot.
func (s *Supervisor) Stop(id string, discardState bool) (bool, error) {
	_, span := startSpan(s.env, "supervisor.Stop", attribute.String("session_id", id))
	defer span.End()

	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()
	if !ok {
		span.SetAttributes(attribute.Bool("was_running", false))
		return false, nil
	}
	defer func() {
		s.mu.Lock()
		delete(s.instances, id)
		s.mu.Unlock()
	}()

	serial := Serial(inst.port)
	if !inst.exited() {
		if discardState {
			_ = syscall.Kill(-inst.cmd.Process.Pid, syscall.SIGKILL)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.GracefulTimeout)
			_ = exec.CommandContext(ctx, s.env.ADB, "-s", serial, "emu", "kill").Run()
			cancel()
		}
	}

	select {
	case <-inst.done:
	case <-time.After(s.ExitTimeout):
		logEvent(s.env, "emulator force kill", "session_id", id, "serial", serial, "pid", inst.cmd.Process.Pid)
		_ = syscall.Kill(-inst.cmd.Process.Pid, syscall.SIGKILL)
		<-inst.done
	}

	logEvent(s.env, "emulator stopped", "session_id", id, "serial", serial)
	return true, nil
}

// IsRunning reports whether a session is registered and its process has not
// exited. Non-blocking.
func (s *Supervisor) IsRunning(id string) bool {
	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()
	return ok && !inst.exited()
}

// Port returns the port assigned to a registered session.
func (s *Supervisor) Port(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return 0, false
	}
	return inst.port, true
}

// SerialFor returns the adb serial for a registered session.
func (s *Supervisor) SerialFor(id string) (string, bool) {
	port, ok := s.Port(id)
	if !ok {
		return "", false
	}
	return Serial(port), true
}

// Running snapshots the registry as session id -> port.
func (s *Supervisor) Running() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.instances))
	for id, inst := range s.instances {
		out[id] = inst.port
	}
	return out
}

// StopAll stops every registered session; used on shutdown.
func (s *Supervisor) StopAll() {
	for id := range s.Running() {
		_, _ = s.Stop(id, false)
	}
}

func (s *Supervisor) heldPortsLocked() map[int]bool {
	held := make(map[int]bool, len(s.instances))
	for _, inst := range s.instances {
		held[inst.port] = true
	}
	return held
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
