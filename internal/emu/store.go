// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"go.opentelemetry.io/otel/attribute"
)

const (
	metadataFilename = "metadata.json"
	userdataFilename = "userdata.img"
	sdcardFilename   = "sdcard.img"
	snapshotsDirname = "snapshots"

	// baseTemplate names the shared seed image under <data_dir>/shared/.
	baseTemplate         = "base"
	baseUserdataFilename = "base_userdata.img"
)

// Metadata is the persistent record for one session. The metadata.json file
// is the single source of truth for session existence: a directory without
// one is not a session.
type Metadata struct {
	SessionID         string   `json:"session_id"`
	CreatedAt         string   `json:"created_at"`
	LastAccessed      string   `json:"last_accessed"`
	AVDName           string   `json:"avd_name"`
	SystemImage       string   `json:"system_image"`
	InstalledPackages []string `json:"installed_packages"`
	Snapshots         []string `json:"snapshots"`
	Notes             string   `json:"notes"`
}

// Store owns the directory-per-session layout under <data_dir>/sessions/.
type Store struct {
	env Env
}

// NewStore creates the data directory skeleton and returns a Store.
func NewStore(env Env) (*Store, error) {
	for _, d := range []string{env.SessionsDir(), env.SharedDir(), env.AVDHome()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &Store{env: env}, nil
}

// Create makes a new session directory with initial metadata. fromTemplate
// optionally seeds userdata.img: "base" resolves to the shared template,
// anything else to another session's userdata image. A missing source image
// is not an error; the copy is simply skipped.
func (s *Store) Create(id string, cfg Config, fromTemplate string) (string, error) {
	_, span := startSpan(s.env, "store.Create",
		attribute.String("session_id", id),
		attribute.String("from_template", fromTemplate),
	)
	defer span.End()

	dir := filepath.Join(s.env.SessionsDir(), id)
	if _, err := os.Stat(dir); err == nil {
		err = errAlreadyExists(id)
		recordSpanError(span, err)
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, snapshotsDirname), 0o755); err != nil {
		recordSpanError(span, err)
		return "", err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	md := Metadata{
		SessionID:         id,
		CreatedAt:         now,
		LastAccessed:      now,
		AVDName:           cfg.AVDName,
		SystemImage:       cfg.SystemImage,
		InstalledPackages: []string{},
		Snapshots:         []string{},
	}
	if err := s.SaveMetadata(dir, md); err != nil {
		// Without metadata the directory is not a session; don't leave it
		// behind to shadow the id.
		_ = os.RemoveAll(dir)
		recordSpanError(span, err)
		return "", err
	}

	if fromTemplate != "" {
		src := filepath.Join(s.env.SharedDir(), baseUserdataFilename)
		if fromTemplate != baseTemplate {
			src = filepath.Join(s.env.SessionsDir(), fromTemplate, userdataFilename)
		}
		if _, err := os.Stat(src); err == nil {
			if err := copyFile(src, filepath.Join(dir, userdataFilename)); err != nil {
				recordSpanError(span, err)
				return "", fmt.Errorf("seed userdata from %q: %w", fromTemplate, err)
			}
			logEvent(s.env, "seeded userdata", "session_id", id, "template", fromTemplate)
		}
	}

	logEvent(s.env, "session created", "session_id", id, "path", dir)
	return dir, nil
}

// Path returns the session directory and whether the session exists. A
// directory without a metadata file does not count.
func (s *Store) Path(id string) (string, bool) {
	dir := filepath.Join(s.env.SessionsDir(), id)
	if _, err := os.Stat(filepath.Join(dir, metadataFilename)); err != nil {
		return "", false
	}
	return dir, true
}

// List loads metadata for every valid session directory. Directories whose
// metadata is absent or unreadable are silently skipped.
func (s *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(s.env.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		md, err := s.LoadMetadata(filepath.Join(s.env.SessionsDir(), e.Name()))
		if err != nil {
			continue
		}
		out = append(out, md)
	}
	return out, nil
}

// Delete removes a session directory tree. A directory without metadata
// (left by an interrupted create) is still reclaimed. The caller is
// responsible for ensuring the session is not running.
func (s *Store) Delete(id string) error {
	dir, ok := s.Path(id)
	if !ok {
		dir = filepath.Join(s.env.SessionsDir(), id)
		if _, err := os.Stat(dir); err != nil {
			return errNotFound(id)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	logEvent(s.env, "session deleted", "session_id", id)
	return nil
}

// SaveMetadata writes metadata.json via a temp file and rename.
func (s *Store) SaveMetadata(dir string, md Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	dst := filepath.Join(dir, metadataFilename)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// LoadMetadata reads metadata.json from a session directory.
func (s *Store) LoadMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFilename))
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", metadataFilename, err)
	}
	return md, nil
}

// UpdateMetadata applies fn to the session's metadata and persists the
// result. Used for last-accessed bumps and package/snapshot reconciliation.
func (s *Store) UpdateMetadata(id string, fn func(*Metadata)) error {
	dir, ok := s.Path(id)
	if !ok {
		return errNotFound(id)
	}
	md, err := s.LoadMetadata(dir)
	if err != nil {
		return err
	}
	fn(&md)
	return s.SaveMetadata(dir, md)
}

// CreateSDCard provisions sdcard.img for a session with mksdcard, falling
// back to a raw qemu-img file when mksdcard is unavailable.
func (s *Store) CreateSDCard(id string, sizeMB int) error {
	dir, ok := s.Path(id)
	if !ok {
		return errNotFound(id)
	}
	size := units.HumanSize(float64(sizeMB) * units.MB)
	// mksdcard wants compact spellings like "2048M".
	arg := fmt.Sprintf("%dM", sizeMB)
	dst := filepath.Join(dir, sdcardFilename)

	if _, err := os.Stat(s.env.MkSDCard); err == nil {
		if err := runTool(s.env, s.env.MkSDCard, arg, dst); err != nil {
			return fmt.Errorf("mksdcard: %w", err)
		}
		logEvent(s.env, "sdcard created", "session_id", id, "size", size)
		return nil
	}
	if err := runTool(s.env, s.env.QemuImg, "create", "-f", "raw", dst, arg); err != nil {
		return fmt.Errorf("qemu-img: %w", err)
	}
	logEvent(s.env, "sdcard created", "session_id", id, "size", size)
	return nil
}

// copyFile streams src to dst without loading the image into memory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
