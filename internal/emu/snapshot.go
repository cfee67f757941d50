// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Snapshots drives named state checkpoints against a running instance and
// mirrors their names into the session's metadata so the list survives
// stops. The mirror is best effort: metadata is only touched after the
// instance confirms success, and a failed metadata write does not undo the
// instance-level action.
type Snapshots struct {
	env   Env
	store *Store
	sup   *Supervisor
}

func NewSnapshots(env Env, store *Store, sup *Supervisor) *Snapshots {
	return &Snapshots{env: env, store: store, sup: sup}
}

// Save checkpoints the running instance under name and records it.
func (c *Snapshots) Save(id, name string) error {
	return c.mutate(id, name, "save", func(md *Metadata) {
		if !slices.Contains(md.Snapshots, name) {
			md.Snapshots = append(md.Snapshots, name)
		}
	})
}

// Load restores the running instance from a named checkpoint.
func (c *Snapshots) Load(id, name string) error {
	return c.mutate(id, name, "load", nil)
}

// Delete removes a named checkpoint and drops it from metadata.
func (c *Snapshots) Delete(id, name string) error {
	return c.mutate(id, name, "delete", func(md *Metadata) {
		md.Snapshots = slices.DeleteFunc(md.Snapshots, func(s string) bool { return s == name })
	})
}

// List returns the snapshot names for a session. When the instance is
// running the emulator console is authoritative; otherwise the persisted
// metadata list is returned as the best-known state.
func (c *Snapshots) List(id string) ([]string, error) {
	serial, running := c.sup.SerialFor(id)
	if !running {
		dir, ok := c.store.Path(id)
		if !ok {
			return nil, errNotFound(id)
		}
		md, err := c.store.LoadMetadata(dir)
		if err != nil {
			return nil, err
		}
		return md.Snapshots, nil
	}

	out, err := toolOutput(c.env, c.env.ADB, nil, "-s", serial, "emu", "avd", "snapshot", "list")
	if err != nil {
		return nil, fmt.Errorf("snapshot list for session %q: %v\n%s", id, err, out)
	}
	return parseSnapshotList(string(out)), nil
}

func (c *Snapshots) mutate(id, name, verb string, reconcile func(*Metadata)) error {
	_, span := startSpan(c.env, "snapshot."+verb,
		attribute.String("session_id", id),
		attribute.String("snapshot", name),
	)
	defer span.End()

	serial, running := c.sup.SerialFor(id)
	if !running {
		err := errSessionNotRunning(id)
		recordSpanError(span, err)
		return err
	}

	out, err := toolOutput(c.env, c.env.ADB, nil, "-s", serial, "emu", "avd", "snapshot", verb, name)
	if err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("snapshot %s %q for session %q: %v\n%s", verb, name, id, err, out)
	}

	if reconcile != nil {
		if err := c.store.UpdateMetadata(id, reconcile); err != nil {
			// The checkpoint succeeded; report the divergence, don't roll back.
			logEvent(c.env, "snapshot metadata update failed",
				"session_id", id, "snapshot", name, "op", verb, "error", err.Error())
		}
	}
	logEvent(c.env, "snapshot "+verb, "session_id", id, "snapshot", name, "serial", serial)
	return nil
}

// parseSnapshotList extracts snapshot names from the emulator console's
// tabular listing, skipping the header, separators and the trailing OK.
func parseSnapshotList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "OK" ||
			strings.HasPrefix(line, "ID") || strings.HasPrefix(line, "-") ||
			strings.HasPrefix(line, "List of") {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	return names
}
