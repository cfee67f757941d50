// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package sessionmanager

import (
	"context"
	"time"

	"github.com/droidbay/emusess/internal/emu"
)

// Manager provides high-level persistent emulator session operations.
type Manager struct {
	inner *emu.Manager
}

// New creates a Manager with an auto-detected environment.
func New() (*Manager, error) {
	return newFromEnv(emu.Detect())
}

// NewWithCorrelationID creates a Manager whose logs and spans carry a
// correlation ID.
func NewWithCorrelationID(correlationID string) (*Manager, error) {
	return NewWithContextAndCorrelationID(context.Background(), correlationID)
}

// NewWithContext creates a Manager whose spans are parented on ctx.
func NewWithContext(ctx context.Context) (*Manager, error) {
	return NewWithContextAndCorrelationID(ctx, "")
}

// NewWithContextAndCorrelationID creates a Manager with both a span parent
// and a correlation ID.
func NewWithContextAndCorrelationID(ctx context.Context, correlationID string) (*Manager, error) {
	env := emu.Detect()
	if ctx == nil {
		ctx = context.Background()
	}
	env.Context = ctx
	env.CorrelationID = correlationID
	return newFromEnv(env)
}

// NewWithEnvironment creates a Manager with custom paths and tool binaries.
func NewWithEnvironment(e Environment) (*Manager, error) {
	env := emu.Detect()
	if e.DataDir != "" {
		env.DataDir = e.DataDir
	}
	if e.SDKRoot != "" {
		env.SDKRoot = e.SDKRoot
	}
	override := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	override(&env.Emulator, e.EmulatorBin)
	override(&env.ADB, e.ADBBin)
	override(&env.AvdManager, e.AvdManagerBin)
	override(&env.SdkManager, e.SdkManagerBin)
	override(&env.Aapt, e.AaptBin)
	if e.Context != nil {
		env.Context = e.Context
	}
	env.CorrelationID = e.CorrelationID
	return newFromEnv(env)
}

func newFromEnv(env emu.Env) (*Manager, error) {
	inner, err := emu.NewManager(env)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: inner}, nil
}

// Environment holds configuration for data storage and external tools.
type Environment struct {
	DataDir       string          // session/AVD data root (default ~/.local/share/emusess)
	SDKRoot       string          // ANDROID_SDK_ROOT
	EmulatorBin   string          // path to emulator (default: SDK-derived)
	ADBBin        string          // path to adb
	AvdManagerBin string          // path to avdmanager
	SdkManagerBin string          // path to sdkmanager
	AaptBin       string          // path to aapt
	CorrelationID string          // correlation ID for log enrichment
	Context       context.Context // context for tracing
}

// SessionInfo mirrors a session's persistent metadata.
type SessionInfo struct {
	SessionID         string
	CreatedAt         string
	LastAccessed      string
	AVDName           string
	SystemImage       string
	InstalledPackages []string
	Snapshots         []string
	Notes             string
}

// SessionStatus describes a session's current state.
type SessionStatus struct {
	Info    SessionInfo
	Path    string
	Running bool
	Serial  string // set while running
	Port    int    // set while running
}

// LaunchOptions configures one emulator launch. Zero values fall back to
// the package defaults.
type LaunchOptions struct {
	AVDName        string // AVD template name
	SystemImage    string // system image ID
	DeviceProfile  string // device profile (e.g. "pixel_7")
	Headed         bool   // show the emulator window
	GPU            string // GPU backend for headless mode
	MemoryMB       int    // instance memory
	Cores          int    // CPU cores
	Port           int    // fixed control port (0 = auto)
	WritableSystem bool   // mount /system writable
	NoQuickboot    bool   // suppress the quickboot snapshot on exit
}

func (o LaunchOptions) config() emu.Config {
	cfg := emu.DefaultConfig()
	if o.AVDName != "" {
		cfg.AVDName = o.AVDName
	}
	if o.SystemImage != "" {
		cfg.SystemImage = o.SystemImage
	}
	if o.DeviceProfile != "" {
		cfg.DeviceProfile = o.DeviceProfile
	}
	if o.GPU != "" {
		cfg.GPU = o.GPU
	}
	if o.MemoryMB > 0 {
		cfg.MemoryMB = o.MemoryMB
	}
	if o.Cores > 0 {
		cfg.Cores = o.Cores
	}
	cfg.Headless = !o.Headed
	cfg.Port = o.Port
	cfg.WritableSystem = o.WritableSystem
	cfg.SnapshotOnExit = !o.NoQuickboot
	return cfg
}

// CreateOptions configures session creation.
type CreateOptions struct {
	FromTemplate string        // seed userdata from "base" or another session
	SDCardMB     int           // provision an SD-card image of this size
	Launch       LaunchOptions // recorded AVD/image defaults
}

// StartOptions configures Start.
type StartOptions struct {
	Launch      LaunchOptions
	NoWait      bool          // return without waiting for boot
	BootTimeout time.Duration // default 120s
}

// Create makes a new stopped session and returns its directory.
func (m *Manager) Create(sessionID string, opts CreateOptions) (string, error) {
	return m.inner.Create(sessionID, opts.Launch.config(), opts.FromTemplate, opts.SDCardMB)
}

// Start brings a session to running (creating it if absent) and returns the
// adb serial of the instance.
func (m *Manager) Start(sessionID string, opts StartOptions) (string, error) {
	return m.inner.Start(sessionID, opts.Launch.config(), !opts.NoWait, opts.BootTimeout)
}

// Stop stops a session's instance. Returns false when it was not running.
func (m *Manager) Stop(sessionID string, discardState bool) (bool, error) {
	return m.inner.Stop(sessionID, discardState)
}

// Restart stops then starts a session.
func (m *Manager) Restart(sessionID string, opts StartOptions) (string, error) {
	return m.inner.Restart(sessionID, opts.Launch.config(), !opts.NoWait, opts.BootTimeout)
}

// Delete removes a session and its data; force stops a running session
// first.
func (m *Manager) Delete(sessionID string, force bool) error {
	return m.inner.Delete(sessionID, force)
}

// List returns every session's metadata.
func (m *Manager) List() ([]SessionInfo, error) {
	mds, err := m.inner.List()
	if err != nil {
		return nil, err
	}
	infos := make([]SessionInfo, len(mds))
	for i, md := range mds {
		infos[i] = sessionInfo(md)
	}
	return infos, nil
}

// Status reports a session's current state.
func (m *Manager) Status(sessionID string) (SessionStatus, error) {
	st, err := m.inner.Status(sessionID)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{
		Info:    sessionInfo(st.Metadata),
		Path:    st.Path,
		Running: st.Running,
		Serial:  st.Serial,
		Port:    st.Port,
	}, nil
}

// IsRunning reports whether the session's instance is alive.
func (m *Manager) IsRunning(sessionID string) bool {
	return m.inner.IsRunning(sessionID)
}

// InstallAPK installs an APK into a running session.
func (m *Manager) InstallAPK(sessionID, apkPath string) error {
	return m.inner.InstallAPK(sessionID, apkPath)
}

// InstalledPackages lists third-party packages of a running session.
func (m *Manager) InstalledPackages(sessionID string) ([]string, error) {
	return m.inner.InstalledPackages(sessionID)
}

// SaveSnapshot checkpoints a running session under name.
func (m *Manager) SaveSnapshot(sessionID, name string) error {
	return m.inner.Snapshots().Save(sessionID, name)
}

// LoadSnapshot restores a running session from a named checkpoint.
func (m *Manager) LoadSnapshot(sessionID, name string) error {
	return m.inner.Snapshots().Load(sessionID, name)
}

// ListSnapshots lists a session's snapshots, falling back to the persisted
// metadata view when the session is stopped.
func (m *Manager) ListSnapshots(sessionID string) ([]string, error) {
	return m.inner.Snapshots().List(sessionID)
}

// DeleteSnapshot removes a named checkpoint from a running session.
func (m *Manager) DeleteSnapshot(sessionID, name string) error {
	return m.inner.Snapshots().Delete(sessionID, name)
}

// Close stops every instance this manager launched.
func (m *Manager) Close() { m.inner.Close() }

func sessionInfo(md emu.Metadata) SessionInfo {
	return SessionInfo{
		SessionID:         md.SessionID,
		CreatedAt:         md.CreatedAt,
		LastAccessed:      md.LastAccessed,
		AVDName:           md.AVDName,
		SystemImage:       md.SystemImage,
		InstalledPackages: md.InstalledPackages,
		Snapshots:         md.Snapshots,
		Notes:             md.Notes,
	}
}
