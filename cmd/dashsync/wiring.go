package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dashsync/internal/journal"
	"github.com/nerrad567/gray-logic-dashsync/internal/remote"
	"github.com/nerrad567/gray-logic-dashsync/internal/session"
	"github.com/nerrad567/gray-logic-dashsync/migrations"
)

// syncDeps are the optional collaborators of a synchronizer.
type syncDeps struct {
	recorder devicesync.Recorder
	metrics  *devicesync.Metrics

	// unfiltered shows every backend device instead of the dashboard view.
	unfiltered bool

	// record journals mutations when the journal is enabled.
	record bool
}

// newSynchronizer builds the session, the backend client and the
// synchronizer from configuration. Nothing runs until Start or RefreshNow.
func (a *app) newSynchronizer(deps syncDeps) (*devicesync.Synchronizer, *session.Session, error) {
	sess, err := session.New(a.cfg.Backend.Token, session.WithLogger(a.log.Component("session")))
	if err != nil {
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}
	if exp, ok := sess.ExpiresAt(); ok {
		a.log.Info("session loaded", "subject", sess.Subject(), "expires_at", exp)
	}

	client, err := remote.NewClient(remote.Options{
		BaseURL:      a.cfg.Backend.BaseURL,
		Tokens:       sess,
		Timeout:      a.cfg.GetBackendTimeout(),
		ScenesPath:   a.cfg.Backend.ScenesPath,
		RoutinesPath: a.cfg.Backend.RoutinesPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating backend client: %w", err)
	}

	var filter device.Filter
	if !deps.unfiltered {
		filter, err = filterFromConfig(a.cfg.Sync.Filter)
		if err != nil {
			return nil, nil, err
		}
	}

	syncer, err := devicesync.New(devicesync.Options{
		Source:       client,
		Filter:       filter,
		PendingTTL:   a.cfg.Sync.PendingTTL,
		PollInterval: a.cfg.Sync.PollInterval,
		Logger:       a.log.Component("devicesync"),
		Metrics:      deps.metrics,
		Recorder:     deps.recorder,
		OnAuthError:  sess.HandleAuthError,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating synchronizer: %w", err)
	}
	return syncer, sess, nil
}

func filterFromConfig(cfg config.FilterConfig) (device.Filter, error) {
	types, err := device.ParseTypes(cfg.Types)
	if err != nil {
		return device.Filter{}, fmt.Errorf("sync.filter.types: %w", err)
	}
	return device.Filter{
		Types:        types,
		OnlineOnly:   cfg.OnlineOnly,
		RequireRoom:  cfg.RequireRoom,
		ExcludeRooms: cfg.ExcludeRooms,
	}, nil
}

// openJournal opens the database, applies migrations and returns the
// journal repository on top of it.
func (a *app) openJournal(ctx context.Context) (*database.DB, *journal.SQLiteRepository, error) {
	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		closeLogged(a.log, "database", db.Close)
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, journal.NewSQLiteRepository(db.DB), nil
}

// withSynchronizer runs fn against a synchronizer that has loaded its
// first snapshot.
func (a *app) withSynchronizer(ctx context.Context, deps syncDeps, fn func(*devicesync.Synchronizer) error) error {
	if deps.record && a.cfg.Journal.Enabled && deps.recorder == nil {
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

	if err := syncer.RefreshNow(ctx); err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	return fn(syncer)
}

// closeLogged runs a Close method and logs its error.
func closeLogged(log *logging.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error("error closing "+what, "error", err)
	}
}
