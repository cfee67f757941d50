// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"bytes"
	"os"
	"os/exec"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Provisioner ensures system images are installed and AVD templates exist,
// shelling out to sdkmanager and avdmanager. Both operations are idempotent.
type Provisioner struct {
	env Env
}

func NewProvisioner(env Env) *Provisioner { return &Provisioner{env: env} }

// EnsureSystemImage installs the system image package if sdkmanager does not
// already list it, auto-accepting the license prompt.
func (p *Provisioner) EnsureSystemImage(systemImage string) error {
	_, span := startSpan(p.env, "provision.EnsureSystemImage",
		attribute.String("system_image", systemImage),
	)
	defer span.End()

	out, err := toolOutput(p.env, p.env.SdkManager, nil, "--list_installed")
	if err != nil {
		recordSpanError(span, err)
		return errProvisioning(p.env.SdkManager+" --list_installed", err, out)
	}
	if strings.Contains(string(out), systemImage) {
		return nil
	}

	logEvent(p.env, "installing system image", "system_image", systemImage)
	out, err = toolOutput(p.env, p.env.SdkManager, strings.NewReader("y\n"), systemImage)
	if err != nil {
		recordSpanError(span, err)
		return errProvisioning(p.env.SdkManager, err, out)
	}
	return nil
}

// EnsureAVD creates the AVD template named by cfg if it does not exist. The
// interactive hardware-profile prompt is declined, matching avdmanager's
// non-interactive usage.
func (p *Provisioner) EnsureAVD(cfg Config) error {
	_, span := startSpan(p.env, "provision.EnsureAVD",
		attribute.String("avd_name", cfg.AVDName),
		attribute.String("system_image", cfg.SystemImage),
	)
	defer span.End()

	if err := p.EnsureSystemImage(cfg.SystemImage); err != nil {
		recordSpanError(span, err)
		return err
	}

	out, err := toolOutput(p.env, p.env.AvdManager, nil, "list", "avd", "-c")
	if err != nil {
		recordSpanError(span, err)
		return errProvisioning(p.env.AvdManager+" list avd", err, out)
	}
	for _, name := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(name) == cfg.AVDName {
			return nil
		}
	}

	logEvent(p.env, "creating avd", "avd_name", cfg.AVDName, "device", cfg.DeviceProfile)
	out, err = toolOutput(p.env, p.env.AvdManager, strings.NewReader("no\n"),
		"create", "avd",
		"--name", cfg.AVDName,
		"--package", cfg.SystemImage,
		"--device", cfg.DeviceProfile,
		"--force",
	)
	if err != nil {
		recordSpanError(span, err)
		return errProvisioning(p.env.AvdManager+" create avd", err, out)
	}
	return nil
}

// ListAVDs returns the AVD names known to avdmanager.
func (p *Provisioner) ListAVDs() ([]string, error) {
	out, err := toolOutput(p.env, p.env.AvdManager, nil, "list", "avd", "-c")
	if err != nil {
		return nil, errProvisioning(p.env.AvdManager+" list avd", err, out)
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DeleteAVD removes an AVD template.
func (p *Provisioner) DeleteAVD(name string) error {
	out, err := toolOutput(p.env, p.env.AvdManager, nil, "delete", "avd", "--name", name)
	if err != nil {
		return errProvisioning(p.env.AvdManager+" delete avd", err, out)
	}
	return nil
}

// toolOutput runs an external tool with ANDROID_AVD_HOME pointed at the data
// directory and returns its combined output.
func toolOutput(env Env, bin string, stdin *strings.Reader, args ...string) ([]byte, error) {
	cmd := exec.Command(bin, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Env = append(os.Environ(), "ANDROID_AVD_HOME="+env.AVDHome())
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// runTool is toolOutput for callers that only care about success, folding
// the tool's output into the error.
func runTool(env Env, bin string, args ...string) error {
	out, err := toolOutput(env, bin, nil, args...)
	if err != nil {
		return errProvisioning(bin, err, out)
	}
	return nil
}
