// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package emu

import (
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/process"
)

// InstanceInfo describes an emulator process found on the host, whether or
// not this manager launched it.
type InstanceInfo struct {
	PID    int32  `json:"pid"`
	Port   int    `json:"port"`
	Serial string `json:"serial"`
	AVD    string `json:"avd"`
}

// ScanInstances walks the host process table for emulator/qemu processes
// carrying a "-port N" argument. A crashed manager leaves its instances
// untracked; this scan is the best-effort way to find such orphans.
func ScanInstances() ([]InstanceInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	var out []InstanceInfo
	for _, p := range procs {
		args, err := p.CmdlineSlice()
		if err != nil || len(args) == 0 {
			continue
		}
		if !looksLikeEmulator(args[0]) {
			continue
		}
		info := InstanceInfo{PID: p.Pid}
		for i := 0; i+1 < len(args); i++ {
			switch args[i] {
			case "-port":
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					info.Port = n
				}
			case "-avd":
				info.AVD = args[i+1]
			}
		}
		if info.Port == 0 {
			continue
		}
		info.Serial = Serial(info.Port)
		out = append(out, info)
	}
	return out, nil
}

func looksLikeEmulator(argv0 string) bool {
	base := argv0
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.Contains(base, "emulator") || strings.Contains(base, "qemu-system")
}
