// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Manager composes the store, provisioner, supervisor, boot watcher and
// snapshot controller into the session lifecycle. Construct one per process
// and pass it around explicitly.
//
// Operations on different session ids are independent; operations on the
// same id are not internally synchronized — one caller per session at a
// time. The design also assumes a single manager process per data
// directory: metadata files are not locked against a second process.
type Manager struct {
	env   Env
	store *Store
	prov  *Provisioner
	sup   *Supervisor
	boot  *BootWatcher
	snaps *Snapshots

	// RestartPause separates stop and start during Restart.
	RestartPause time.Duration
}

// NewManager builds a Manager over env, creating the data directory layout.
func NewManager(env Env) (*Manager, error) {
	store, err := NewStore(env)
	if err != nil {
		return nil, err
	}
	sup := NewSupervisor(env)
	return &Manager{
		env:          env,
		store:        store,
		prov:         NewProvisioner(env),
		sup:          sup,
		boot:         NewBootWatcher(env),
		snaps:        NewSnapshots(env, store, sup),
		RestartPause: 2 * time.Second,
	}, nil
}

// Store exposes the session store for read-side callers.
func (m *Manager) Store() *Store { return m.store }

// Snapshots exposes the snapshot controller.
func (m *Manager) Snapshots() *Snapshots { return m.snaps }

// Supervisor exposes the process supervisor.
func (m *Manager) Supervisor() *Supervisor { return m.sup }

// Provisioner exposes the AVD/image provisioner.
func (m *Manager) Provisioner() *Provisioner { return m.prov }

// Create makes a new stopped session. sdcardMB > 0 additionally provisions
// an SD-card image of that size.
func (m *Manager) Create(id string, cfg Config, fromTemplate string, sdcardMB int) (string, error) {
	dir, err := m.store.Create(id, cfg, fromTemplate)
	if err != nil {
		return "", err
	}
	if sdcardMB > 0 {
		if err := m.store.CreateSDCard(id, sdcardMB); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// Start brings a session to RUNNING, creating it first if it does not
// exist. It provisions the AVD and system image, launches the emulator and,
// when waitBoot is set, blocks until boot completes or timeout elapses. On
// boot timeout the half-booted instance is stopped before the error
// surfaces. Returns the instance serial.
func (m *Manager) Start(id string, cfg Config, waitBoot bool, timeout time.Duration) (string, error) {
	_, span := startSpan(m.env, "manager.Start",
		attribute.String("session_id", id),
		attribute.Bool("wait_boot", waitBoot),
	)
	defer span.End()

	if serial, ok := m.sup.SerialFor(id); ok {
		if m.sup.IsRunning(id) {
			logEvent(m.env, "session already running", "session_id", id, "serial", serial)
			return serial, nil
		}
		// Registered but exited: the process crashed since launch. Reap the
		// stale entry and start fresh.
		_, _ = m.sup.Stop(id, true)
	}

	dir, ok := m.store.Path(id)
	if !ok {
		var err error
		dir, err = m.store.Create(id, cfg, "")
		if err != nil {
			recordSpanError(span, err)
			return "", err
		}
	}

	if err := m.prov.EnsureAVD(cfg); err != nil {
		recordSpanError(span, err)
		return "", err
	}

	port, err := m.sup.Launch(id, cfg, dir)
	if err != nil {
		recordSpanError(span, err)
		return "", err
	}
	serial := Serial(port)

	if waitBoot {
		if timeout <= 0 {
			timeout = DefaultBootTimeout
		}
		if !m.boot.Wait(serial, timeout) {
			_, _ = m.sup.Stop(id, false)
			err := fmt.Errorf("session %q: %w within %s", id, ErrBootTimeout, timeout)
			recordSpanError(span, err)
			return "", err
		}
	}

	if err := m.store.UpdateMetadata(id, func(md *Metadata) {
		md.LastAccessed = time.Now().UTC().Format(time.RFC3339)
	}); err != nil {
		logEvent(m.env, "last_accessed update failed", "session_id", id, "error", err.Error())
	}

	span.SetAttributes(attribute.String("serial", serial))
	logEvent(m.env, "session started", "session_id", id, "serial", serial)
	return serial, nil
}

// Stop transitions a session to STOPPED. Stopping a session that is not
// running is a no-op returning false. discardState force-kills without a
// graceful console request so no quickboot snapshot is written.
func (m *Manager) Stop(id string, discardState bool) (bool, error) {
	return m.sup.Stop(id, discardState)
}

// Restart stops a session, pauses briefly and starts it again. Not atomic:
// an observer can see the session stopped in between.
func (m *Manager) Restart(id string, cfg Config, waitBoot bool, timeout time.Duration) (string, error) {
	if _, err := m.Stop(id, false); err != nil {
		return "", err
	}
	time.Sleep(m.RestartPause)
	return m.Start(id, cfg, waitBoot, timeout)
}

// Delete removes a session and all of its data. A running session is
// refused unless force is set, in which case it is stopped first.
func (m *Manager) Delete(id string, force bool) error {
	if _, registered := m.sup.Port(id); registered {
		if m.sup.IsRunning(id) && !force {
			return errSessionRunning(id)
		}
		if _, err := m.sup.Stop(id, force); err != nil {
			return err
		}
	}
	return m.store.Delete(id)
}

// InstallAPK installs an APK into a running session and records the
// package name in metadata. Package-name resolution via aapt is best
// effort; its failure is not propagated.
func (m *Manager) InstallAPK(id, apkPath string) error {
	_, span := startSpan(m.env, "manager.InstallAPK",
		attribute.String("session_id", id),
		attribute.String("apk", apkPath),
	)
	defer span.End()

	serial, ok := m.sup.SerialFor(id)
	if !ok {
		err := errSessionNotRunning(id)
		recordSpanError(span, err)
		return err
	}

	out, err := toolOutput(m.env, m.env.ADB, nil, "-s", serial, "install", "-r", apkPath)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("install %s into session %q: %v\n%s", apkPath, id, err, out)
	}

	if pkg := m.resolvePackageName(apkPath); pkg != "" {
		if err := m.store.UpdateMetadata(id, func(md *Metadata) {
			if !slices.Contains(md.InstalledPackages, pkg) {
				md.InstalledPackages = append(md.InstalledPackages, pkg)
			}
		}); err != nil {
			logEvent(m.env, "package metadata update failed", "session_id", id, "package", pkg, "error", err.Error())
		}
	}
	logEvent(m.env, "apk installed", "session_id", id, "apk", apkPath)
	return nil
}

// resolvePackageName extracts the package name from an APK via aapt.
func (m *Manager) resolvePackageName(apkPath string) string {
	out, err := toolOutput(m.env, m.env.Aapt, nil, "dump", "badging", apkPath)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "package:") {
			continue
		}
		_, rest, found := strings.Cut(line, "name='")
		if !found {
			continue
		}
		name, _, found := strings.Cut(rest, "'")
		if found {
			return name
		}
	}
	return ""
}

// InstalledPackages lists third-party packages of a running session.
func (m *Manager) InstalledPackages(id string) ([]string, error) {
	serial, ok := m.sup.SerialFor(id)
	if !ok {
		return nil, errSessionNotRunning(id)
	}
	out, err := toolOutput(m.env, m.env.ADB, nil, "-s", serial, "shell", "pm", "list", "packages", "-3")
	if err != nil {
		return nil, fmt.Errorf("list packages for session %q: %v\n%s", id, err, out)
	}
	var pkgs []string
	for _, line := range strings.Split(string(out), "\n") {
		if name, found := strings.CutPrefix(strings.TrimSpace(line), "package:"); found && name != "" {
			pkgs = append(pkgs, name)
		}
	}
	return pkgs, nil
}

// Status describes one session at a point in time.
type Status struct {
	Metadata Metadata `json:"metadata"`
	Path     string   `json:"path"`
	Running  bool     `json:"running"`
	Serial   string   `json:"serial,omitempty"`
	Port     int      `json:"port,omitempty"`
}

// Status reports a session's current state.
func (m *Manager) Status(id string) (Status, error) {
	dir, ok := m.store.Path(id)
	if !ok {
		return Status{}, errNotFound(id)
	}
	md, err := m.store.LoadMetadata(dir)
	if err != nil {
		return Status{}, err
	}
	st := Status{Metadata: md, Path: dir}
	if port, registered := m.sup.Port(id); registered && m.sup.IsRunning(id) {
		st.Running = true
		st.Port = port
		st.Serial = Serial(port)
	}
	return st, nil
}

// List returns metadata for every session, running or not.
func (m *Manager) List() ([]Metadata, error) { return m.store.List() }

// IsRunning reports whether the session's instance is alive.
func (m *Manager) IsRunning(id string) bool { return m.sup.IsRunning(id) }

// Close stops every instance this manager launched.
func (m *Manager) Close() { m.sup.StopAll() }
