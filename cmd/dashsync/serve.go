package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-dashsync/internal/api"
	"github.com/nerrad567/gray-logic-dashsync/internal/devicesync"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dashsync/internal/journal"
	"github.com/nerrad567/gray-logic-dashsync/internal/relay"
)

const healthCheckTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the synchronizer daemon",
		Long: `Run the synchronizer with the local HTTP API and WebSocket feed, the
mutation journal, the MQTT relay and the InfluxDB sink as configured.
Stops on SIGINT or SIGTERM.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{logModeKey: logDaemon},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve runs until ctx is cancelled or the session logs out. Deferred
// closes run in reverse start order.
func (a *app) serve(ctx context.Context) error {
	log := a.log
	log.Info("starting dashsync", "version", version, "commit", commit, "build_date", date)
	if a.configPath != "" {
		log.Info("configuration loaded", "path", a.configPath)
	} else {
		log.Info("configuration loaded from environment")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := devicesync.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	// Journal
	var (
		db      *database.DB
		history api.History
		deps    = syncDeps{metrics: metrics}
	)
	if a.cfg.Journal.Enabled {
		var repo *journal.SQLiteRepository
		db, repo, err = a.openJournal(ctx)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			closeLogged(log, "database", db.Close)
		}()
		log.Info("database connected", "path", a.cfg.Database.Path)

		pruner, pruneErr := journal.NewPruner(repo, a.cfg.Journal.PruneSchedule, a.cfg.GetJournalRetention(), log.Component("journal"))
		if pruneErr != nil {
			return fmt.Errorf("creating journal pruner: %w", pruneErr)
		}
		if _, pruneErr := pruner.PruneNow(ctx); pruneErr != nil {
			log.Warn("initial journal prune failed", "error", pruneErr)
		}
		pruner.Start()
		defer func() {
			log.Info("stopping journal pruner")
			pruner.Stop()
		}()

		deps.recorder = repo
		history = repo
	} else {
		log.Info("journal disabled")
	}

	// Synchronizer
	syncer, sess, err := a.newSynchronizer(deps)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping synchronizer")
		syncer.Close()
	}()

	sess.OnLogout(func(cause error) {
		log.Error("backend session ended, shutting down", "error", cause)
		cancel()
	})

	if err := syncer.Start(ctx); err != nil {
		return fmt.Errorf("starting synchronizer: %w", err)
	}
	log.Info("synchronizer started",
		"backend", a.cfg.Backend.BaseURL,
		"poll_interval", a.cfg.Sync.PollInterval.String(),
		"pending_ttl", a.cfg.Sync.PendingTTL.String(),
	)

	// MQTT
	var (
		sinks      []relay.Sink
		mqttClient *mqtt.Client
	)
	if a.cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			closeLogged(log, "MQTT", mqttClient.Close)
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
			"client_id", a.cfg.MQTT.Broker.ClientID,
		)

		commands := relay.NewCommands(syncer, mqttClient, log.Component("commands"))
		if err := commands.Start(ctx); err != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT commands")
			commands.Stop()
		}()

		sinks = append(sinks, relay.NewMQTTSink(mqttClient))
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB
	influxClient, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			closeLogged(log, "InfluxDB", influxClient.Close)
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", a.cfg.InfluxDB.URL,
			"org", a.cfg.InfluxDB.Org,
			"bucket", a.cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, relay.NewInfluxSink(influxClient))
	}

	if len(sinks) > 0 {
		rel := relay.New(log.Component("relay"), sinks...)
		if err := rel.Start(ctx, syncer); err != nil {
			return fmt.Errorf("starting relay: %w", err)
		}
		defer func() {
			log.Info("stopping relay")
			rel.Stop()
		}()
	}

	// HTTP API
	var server *api.Server
	if a.cfg.API.Enabled {
		server, err = api.New(api.Deps{
			Config:   a.cfg.API,
			WS:       a.cfg.WebSocket,
			Metrics:  a.cfg.Metrics,
			Logger:   log.Component("api"),
			Sync:     syncer,
			History:  history,
			Gatherer: reg,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			closeLogged(log, "API server", server.Close)
		}()
		log.Info("API server listening", "addr", server.Addr())
	} else {
		log.Info("API server disabled")
	}

	// A logout during startup cancels ctx; that is a shutdown, not a
	// failed check.
	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil && ctx.Err() == nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// healthCheck verifies every enabled component. Nil components are
// skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if server != nil {
		if err := server.HealthCheck(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}
	return nil
}
