package main

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-dashsync/internal/tui"
)

func newDashboardCmd(a *app) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Open the interactive terminal dashboard",
		Long: `Open a terminal dashboard showing the filtered device view grouped by
room. The view follows the synchronizer's poller and every toggle is
applied optimistically.

Key bindings:
  ↑/↓ or k/j   Move the selection
  space/enter  Toggle the selected device
  a / o        Switch the selected device's room on / off
  r            Refresh now
  q / Ctrl+C   Quit`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{logModeKey: logDiscard},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var deps syncDeps
			if a.cfg.Journal.Enabled {
				db, repo, err := a.openJournal(ctx)
				if err != nil {
					return err
				}
				defer closeLogged(a.log, "database", db.Close)
				deps.recorder = repo
			}

			syncer, _, err := a.newSynchronizer(deps)
			if err != nil {
				return err
			}
			defer syncer.Close()

			model := tui.New(syncer, title)
			defer model.Close()

			if err := syncer.Start(ctx); err != nil {
				return fmt.Errorf("starting synchronizer: %w", err)
			}

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil {
				if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
					return nil
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "dashsync", "dashboard title")
	return cmd
}
