// Copyright (C) 2026 Droidbay Labs
// License: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/droidbay/emusess/internal/config"
	"github.com/droidbay/emusess/internal/emu"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	env := cfg.Env()
	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}
	env.Context = ctx

	shutdownTracing, err := setupTracing(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(ctx) }()

	mgr, err := emu.NewManager(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "emusess",
		Short:         "Persistent Android emulator sessions (isolated disk state, snapshots)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// create
	var crFrom, crImage, crDevice, crSDCard string
	createCmd := &cobra.Command{
		Use:   "create SESSION",
		Short: "Create a new persistent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			launch := cfg.LaunchConfig()
			if crImage != "" {
				launch.SystemImage = crImage
			}
			if crDevice != "" {
				launch.DeviceProfile = crDevice
			}
			sdcardMB := 0
			if crSDCard != "" {
				bytes, err := units.RAMInBytes(crSDCard)
				if err != nil {
					return fmt.Errorf("--sdcard: %w", err)
				}
				sdcardMB = int(bytes / units.MiB)
			}
			dir, err := mgr.Create(args[0], launch, crFrom, sdcardMB)
			if err != nil {
				return err
			}
			fmt.Printf("Created session %s\n  Path: %s\n", args[0], dir)
			return nil
		},
	}
	createCmd.Flags().StringVar(&crFrom, "from", "", "seed userdata from another session or 'base'")
	createCmd.Flags().StringVar(&crImage, "image", "", "system image ID (default from config)")
	createCmd.Flags().StringVar(&crDevice, "device", "", "device profile (default from config)")
	createCmd.Flags().StringVar(&crSDCard, "sdcard", "", "provision an SD-card image of this size (e.g. 2G)")
	root.AddCommand(createCmd)

	// start
	var stHeaded, stNoWait bool
	var stMemory string
	var stCores int
	var stTimeout time.Duration
	startCmd := &cobra.Command{
		Use:   "start SESSION",
		Short: "Start a session's emulator (creates the session if absent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			launch := cfg.LaunchConfig()
			launch.Headless = !stHeaded
			if stMemory != "" {
				bytes, err := units.RAMInBytes(stMemory)
				if err != nil {
					return fmt.Errorf("--memory: %w", err)
				}
				launch.MemoryMB = int(bytes / units.MiB)
			}
			if stCores > 0 {
				launch.Cores = stCores
			}
			serial, err := mgr.Start(args[0], launch, !stNoWait, stTimeout)
			if err != nil {
				return err
			}
			fmt.Printf("Session %s ready at %s\n", args[0], serial)
			return nil
		},
	}
	startCmd.Flags().BoolVar(&stHeaded, "headed", false, "show the emulator window")
	startCmd.Flags().StringVar(&stMemory, "memory", "", "instance memory (e.g. 4G, 2048M)")
	startCmd.Flags().IntVar(&stCores, "cores", 0, "CPU cores")
	startCmd.Flags().BoolVar(&stNoWait, "no-wait", false, "return without waiting for boot")
	startCmd.Flags().DurationVar(&stTimeout, "timeout", cfg.BootTimeout, "boot timeout")
	root.AddCommand(startCmd)

	// stop
	var spNoSave bool
	stopCmd := &cobra.Command{
		Use:   "stop SESSION",
		Short: "Stop a session's emulator (disk state persists)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped, err := mgr.Stop(args[0], spNoSave)
			if err != nil {
				return err
			}
			if !stopped {
				fmt.Printf("Session %s is not running\n", args[0])
				return nil
			}
			fmt.Printf("Stopped session %s\n", args[0])
			return nil
		},
	}
	stopCmd.Flags().BoolVar(&spNoSave, "no-save", false, "skip the quickboot snapshot on exit")
	root.AddCommand(stopCmd)

	// restart
	var rsHeaded bool
	restartCmd := &cobra.Command{
		Use:   "restart SESSION",
		Short: "Stop and start a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			launch := cfg.LaunchConfig()
			launch.Headless = !rsHeaded
			serial, err := mgr.Restart(args[0], launch, true, cfg.BootTimeout)
			if err != nil {
				return err
			}
			fmt.Printf("Session %s ready at %s\n", args[0], serial)
			return nil
		},
	}
	restartCmd.Flags().BoolVar(&rsHeaded, "headed", false, "show the emulator window")
	root.AddCommand(restartCmd)

	// list
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := mgr.List()
			if err != nil {
				return err
			}
			if listJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Session", "State", "Serial", "Created", "Last Used", "Packages", "Snapshots"})
			table.SetBorder(false)
			for _, md := range sessions {
				state, serial := "stopped", ""
				if mgr.IsRunning(md.SessionID) {
					state = "running"
					serial, _ = mgr.Supervisor().SerialFor(md.SessionID)
				}
				table.Append([]string{
					md.SessionID,
					state,
					serial,
					age(md.CreatedAt),
					age(md.LastAccessed),
					strconv.Itoa(len(md.InstalledPackages)),
					strconv.Itoa(len(md.Snapshots)),
				})
			}
			table.Render()
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
	root.AddCommand(listCmd)

	// delete
	var dlForce bool
	deleteCmd := &cobra.Command{
		Use:   "delete SESSION",
		Short: "Delete a session and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := mgr.Delete(args[0], dlForce); err != nil {
				return err
			}
			fmt.Printf("Deleted session %s\n", args[0])
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&dlForce, "force", false, "stop the session first if it is running")
	root.AddCommand(deleteCmd)

	// status
	statusCmd := &cobra.Command{
		Use:   "status SESSION",
		Short: "Show a session's state and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := mgr.Status(args[0])
			if err != nil {
				return err
			}
			state := "stopped"
			if st.Running {
				state = "running"
			}
			fmt.Printf("Session:   %s\nState:     %s\n", st.Metadata.SessionID, state)
			if st.Running {
				fmt.Printf("Serial:    %s\nPort:      %d\n", st.Serial, st.Port)
			}
			fmt.Printf("Path:      %s\nAVD:       %s\nImage:     %s\nCreated:   %s\nLast used: %s\n",
				st.Path, st.Metadata.AVDName, st.Metadata.SystemImage,
				st.Metadata.CreatedAt, st.Metadata.LastAccessed)
			fmt.Printf("Packages:  %d\nSnapshots: %v\n",
				len(st.Metadata.InstalledPackages), st.Metadata.Snapshots)
			return nil
		},
	}
	root.AddCommand(statusCmd)

	// install
	installCmd := &cobra.Command{
		Use:   "install SESSION APK",
		Short: "Install an APK into a running session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := mgr.InstallAPK(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Installed %s into session %s\n", args[1], args[0])
			return nil
		},
	}
	root.AddCommand(installCmd)

	// packages
	packagesCmd := &cobra.Command{
		Use:   "packages SESSION",
		Short: "List third-party packages installed in a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs, err := mgr.InstalledPackages(args[0])
			if err != nil {
				return err
			}
			for _, p := range pkgs {
				fmt.Println(p)
			}
			return nil
		},
	}
	root.AddCommand(packagesCmd)

	// snapshot save|load|list|delete
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage named state checkpoints of a running session",
	}
	snapshotCmd.AddCommand(
		&cobra.Command{
			Use:   "save SESSION NAME",
			Short: "Save a named snapshot",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := mgr.Snapshots().Save(args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Saved snapshot %s for session %s\n", args[1], args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "load SESSION NAME",
			Short: "Restore a named snapshot",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := mgr.Snapshots().Load(args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Loaded snapshot %s for session %s\n", args[1], args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list SESSION",
			Short: "List snapshots (falls back to metadata when stopped)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				names, err := mgr.Snapshots().List(args[0])
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Println(n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete SESSION NAME",
			Short: "Delete a named snapshot",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := mgr.Snapshots().Delete(args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Deleted snapshot %s for session %s\n", args[1], args[0])
				return nil
			},
		},
	)
	root.AddCommand(snapshotCmd)

	// ps
	var psJSON bool
	psCmd := &cobra.Command{
		Use:   "ps",
		Short: "List emulator processes on this host, including orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := emu.ScanInstances()
			if err != nil {
				return err
			}
			if psJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(procs)
			}
			if len(procs) == 0 {
				fmt.Println("(no emulators)")
				return nil
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Serial", "AVD", "Port", "PID"})
			table.SetBorder(false)
			for _, p := range procs {
				table.Append([]string{p.Serial, p.AVD, strconv.Itoa(p.Port), strconv.Itoa(int(p.PID))})
			}
			table.Render()
			return nil
		},
	}
	psCmd.Flags().BoolVar(&psJSON, "json", false, "output JSON")
	root.AddCommand(psCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

// describeError keeps CLI failures specific: the session and the violated
// precondition, not a generic message.
func describeError(err error) string {
	switch {
	case errdefs.IsNotFound(err),
		errdefs.IsAlreadyExists(err),
		errdefs.IsConflict(err),
		errdefs.IsFailedPrecondition(err),
		errdefs.IsResourceExhausted(err):
		return err.Error()
	case errors.Is(err, emu.ErrBootTimeout):
		return fmt.Sprintf("%v (the instance was stopped; retry with a longer --timeout)", err)
	default:
		return err.Error()
	}
}

// age renders an RFC3339 timestamp as a human age ("2 hours ago").
func age(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return units.HumanDuration(time.Since(t)) + " ago"
}
