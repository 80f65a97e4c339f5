package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
	"github.com/nerrad567/gray-logic-dashsync/internal/journal"
)

const defaultHistoryLimit = 20

type mutationRow struct {
	Started string `table:"STARTED"`
	Kind    string `table:"KIND"`
	Targets string `table:"TARGETS"`
	Desired string `table:"DESIRED"`
	Outcome string `table:"OUTCOME"`
	Error   string `table:"ERROR"`
}

type lastSyncRow struct {
	RanAt   string `table:"RAN AT"`
	Status  string `table:"STATUS"`
	Total   int    `table:"TOTAL"`
	New     int    `table:"NEW"`
	Updated int    `table:"UPDATED"`
	Removed int    `table:"REMOVED"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journalled mutations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return a.withJournal(cmd.Context(), func(repo *journal.SQLiteRepository) error {
				records, err := repo.ListMutations(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("listing mutations: %w", err)
				}
				a.print(cmd, mutationRows(records), records)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "number of mutations to show")

	cmd.AddCommand(newLastSyncCmd(a), newPruneCmd(a))
	return cmd
}

func newLastSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "last-sync",
		Short: "Show the most recent backend sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withJournal(cmd.Context(), func(repo *journal.SQLiteRepository) error {
				rec, err := repo.LastSync(cmd.Context())
				if errors.Is(err, journal.ErrNoSync) {
					fmt.Fprintln(cmd.OutOrStdout(), "No backend sync recorded.")
					return nil
				}
				if err != nil {
					return fmt.Errorf("reading last sync: %w", err)
				}
				row := lastSyncRow{
					RanAt:   formatTime(rec.RanAt),
					Status:  rec.Status,
					Total:   rec.Summary.Total,
					New:     rec.Summary.New,
					Updated: rec.Summary.Updated,
					Removed: rec.Summary.Removed,
				}
				a.print(cmd, row, rec)
				return nil
			})
		},
	}
}

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop journal entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withJournal(cmd.Context(), func(repo *journal.SQLiteRepository) error {
				pruner, err := journal.NewPruner(repo, a.cfg.Journal.PruneSchedule, a.cfg.GetJournalRetention(), a.log.Component("journal"))
				if err != nil {
					return err
				}
				removed, err := pruner.PruneNow(cmd.Context())
				if err != nil {
					return fmt.Errorf("pruning journal: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d journal entries older than %s.\n", removed, a.cfg.GetJournalRetention())
				return nil
			})
		},
	}
}

// withJournal opens the journal database for fn.
func (a *app) withJournal(ctx context.Context, fn func(*journal.SQLiteRepository) error) error {
	if !a.cfg.Journal.Enabled {
		return errors.New("the journal is disabled (journal.enabled: false)")
	}
	db, repo, err := a.openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeLogged(a.log, "database", db.Close)
	return fn(repo)
}

func mutationRows(records []devicesync.MutationRecord) []mutationRow {
	rows := make([]mutationRow, len(records))
	for i, rec := range records {
		desired := ""
		if rec.Desired != nil {
			desired = onOff(*rec.Desired)
		}
		rows[i] = mutationRow{
			Started: formatTime(rec.StartedAt),
			Kind:    string(rec.Kind),
			Targets: strings.Join(rec.Targets, ","),
			Desired: desired,
			Outcome: string(rec.Outcome),
			Error:   rec.Error,
		}
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
