package main

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
)

// deviceRow is the table view of a device.
type deviceRow struct {
	ID     string `table:"ID"`
	Name   string `table:"NAME"`
	Room   string `table:"ROOM"`
	Type   string `table:"TYPE"`
	State  string `table:"STATE"`
	Online string `table:"ONLINE"`
}

func deviceRows(devices []device.Device) []deviceRow {
	sorted := slices.Clone(devices)
	slices.SortStableFunc(sorted, func(a, b device.Device) int {
		if c := cmp.Compare(strings.ToLower(a.Room), strings.ToLower(b.Room)); c != 0 {
			return c
		}
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	rows := make([]deviceRow, len(sorted))
	for i, d := range sorted {
		rows[i] = deviceRow{
			ID:     d.ID,
			Name:   d.Name,
			Room:   d.Room,
			Type:   string(d.Type),
			State:  stateText(d),
			Online: yesNo(d.IsOnline),
		}
	}
	return rows
}

func stateText(d device.Device) string {
	switch {
	case d.Type.Toggleable():
		return onOff(d.IsOn)
	case d.Value != nil:
		return strings.TrimSpace(fmt.Sprintf("%v %s", d.Value, d.Unit))
	default:
		return ""
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// parseOnOff accepts on/off and the usual boolean spellings.
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q (want on or off)", s)
}

// pick returns the devices in the view with the given ids, in the order
// given. Ids missing from the view are skipped.
func pick(s *devicesync.Synchronizer, ids []string) []device.Device {
	out := make([]device.Device, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.Device(id); ok {
			out = append(out, d)
		}
	}
	return out
}

func addAllFlag(cmd *cobra.Command, all *bool) {
	cmd.Flags().BoolVar(all, "all", false, "use every backend device, ignoring the configured filter")
}

func newDevicesCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices in the dashboard view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSynchronizer(cmd.Context(), syncDeps{unfiltered: all}, func(s *devicesync.Synchronizer) error {
				devices := s.State().Devices
				a.print(cmd, deviceRows(devices), devices)
				return nil
			})
		},
	}
	addAllFlag(cmd, &all)
	return cmd
}

func newToggleCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "toggle <device-id> <on|off>",
		Short: "Switch one device on or off",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}

			deps := syncDeps{unfiltered: all, record: true}
			return a.withSynchronizer(cmd.Context(), deps, func(s *devicesync.Synchronizer) error {
				if err := s.ToggleDevice(cmd.Context(), id, on); err != nil {
					return fmt.Errorf("toggling %s: %w", id, err)
				}
				devices := pick(s, []string{id})
				a.print(cmd, deviceRows(devices), devices)
				return nil
			})
		},
	}
	addAllFlag(cmd, &all)
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "batch <on|off> <device-id>...",
		Short: "Switch several devices on or off in one request",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			ids := args[1:]

			deps := syncDeps{unfiltered: all, record: true}
			return a.withSynchronizer(cmd.Context(), deps, func(s *devicesync.Synchronizer) error {
				if err := s.BatchToggle(cmd.Context(), ids, on); err != nil {
					return fmt.Errorf("batch toggle: %w", err)
				}
				devices := pick(s, ids)
				a.print(cmd, deviceRows(devices), devices)
				return nil
			})
		},
	}
	addAllFlag(cmd, &all)
	return cmd
}

type sceneRow struct {
	ID   string `table:"ID"`
	Name string `table:"NAME"`
	Type string `table:"TYPE"`
}

type routineRow struct {
	ID          string `table:"ID"`
	Name        string `table:"NAME"`
	Description string `table:"DESCRIPTION"`
	Active      string `table:"ACTIVE"`
}

// executed is the structured result of a scene or routine run.
type executed struct {
	Kind   string `json:"kind" yaml:"kind"`
	ID     string `json:"id" yaml:"id"`
	Status string `json:"status" yaml:"status"`
}

func newSceneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scene [scene-id]",
		Short: "List scenes, or execute one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := syncDeps{record: len(args) == 1}
			return a.withSynchronizer(cmd.Context(), deps, func(s *devicesync.Synchronizer) error {
				if len(args) == 0 {
					scenes := s.Catalog().Scenes
					rows := make([]sceneRow, len(scenes))
					for i, sc := range scenes {
						rows[i] = sceneRow{ID: sc.ID, Name: sc.Name, Type: sc.Type}
					}
					a.print(cmd, rows, scenes)
					return nil
				}

				id := args[0]
				if err := s.ExecuteScene(cmd.Context(), id); err != nil {
					return fmt.Errorf("executing scene %s: %w", id, err)
				}
				a.print(cmd, fmt.Sprintf("Scene %q executed.", id), executed{Kind: "scene", ID: id, Status: "executed"})
				return nil
			})
		},
	}
}

func newRoutineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "routine [routine-id]",
		Short: "List routines, or execute one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := syncDeps{record: len(args) == 1}
			return a.withSynchronizer(cmd.Context(), deps, func(s *devicesync.Synchronizer) error {
				if len(args) == 0 {
					routines := s.Catalog().Routines
					rows := make([]routineRow, len(routines))
					for i, r := range routines {
						rows[i] = routineRow{ID: r.ID, Name: r.Name, Description: r.Description, Active: yesNo(r.IsActive)}
					}
					a.print(cmd, rows, routines)
					return nil
				}

				id := args[0]
				if err := s.ExecuteRoutine(cmd.Context(), id); err != nil {
					return fmt.Errorf("executing routine %s: %w", id, err)
				}
				a.print(cmd, fmt.Sprintf("Routine %q executed.", id), executed{Kind: "routine", ID: id, Status: "executed"})
				return nil
			})
		},
	}
}

type syncRow struct {
	Status  string `table:"STATUS"`
	Total   int    `table:"TOTAL"`
	New     int    `table:"NEW"`
	Updated int    `table:"UPDATED"`
	Removed int    `table:"REMOVED"`
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ask the backend to re-import devices from its hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSynchronizer(cmd.Context(), syncDeps{record: true}, func(s *devicesync.Synchronizer) error {
				report, err := s.SyncBackend(cmd.Context())
				if errors.Is(err, devicesync.ErrSyncUnsupported) {
					return errors.New("the backend does not support device sync")
				}
				if err != nil {
					return fmt.Errorf("backend sync: %w", err)
				}
				row := syncRow{
					Status:  report.Status,
					Total:   report.Summary.Total,
					New:     report.Summary.New,
					Updated: report.Summary.Updated,
					Removed: report.Summary.Removed,
				}
				a.print(cmd, row, report)
				return nil
			})
		},
	}
}
