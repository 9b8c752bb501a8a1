package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keeldb/keel/pkg/actions"
	"github.com/keeldb/keel/pkg/api"
	"github.com/keeldb/keel/pkg/clients"
	"github.com/keeldb/keel/pkg/config"
	"github.com/keeldb/keel/pkg/coordinator"
	"github.com/keeldb/keel/pkg/events"
	"github.com/keeldb/keel/pkg/log"
	"github.com/keeldb/keel/pkg/metrics"
	"github.com/keeldb/keel/pkg/orchestrator"
	"github.com/keeldb/keel/pkg/storage"
	"github.com/keeldb/keel/pkg/taskqueue"
	"github.com/keeldb/keel/pkg/types"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a keel control-plane node",
	Long: `Run a keel control-plane node.

Every node consumes orchestration tasks from the shared queue. The nodes
elect one primary among themselves; only the primary enqueues the periodic
per-cluster tasks, so each enabled cluster is orchestrated once per
interval regardless of how many nodes run.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML configuration file")
}

// lockFactory bridges coordinator locks into the engine's lock interface.
type lockFactory struct {
	coord *coordinator.Coordinator
}

func (f lockFactory) ClusterLock(nsID, clusterID string) orchestrator.Lock {
	return f.coord.ClusterLock(nsID, clusterID)
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: !cfg.Log.Pretty,
	})
	logger := log.WithComponent("server")

	// Storage
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	// Redis: locks and the task queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	node := coordinator.NewNodeID()
	coord := coordinator.New(redisClient, coordinator.Config{
		Node:    node,
		LockTTL: cfg.Orchestrate.LockTTL.Std(),
	})

	// Primary election
	election, err := coordinator.NewElection(coordinator.ElectionConfig{
		NodeID:   node.String(),
		BindAddr: cfg.Election.BindAddr,
		DataDir:  filepath.Join(cfg.DataDir, "raft"),
	})
	if err != nil {
		return fmt.Errorf("failed to start election: %w", err)
	}
	if cfg.Election.Bootstrap {
		if err := election.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap election: %w", err)
		}
	} else {
		logger.Info().Str("join_addr", cfg.Election.JoinAddr).
			Msg("Waiting to be added as voter by the current primary")
	}

	// Events
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	eventSub := broker.Subscribe()
	go func() {
		for event := range eventSub {
			logger.Debug().
				Str("event", string(event.Type)).
				Str("ns_id", event.NsID).
				Str("cluster_id", event.ClusterID).
				Msg(event.Message)
		}
	}()

	// Action handlers
	registry := actions.NewRegistry()
	if err := actions.RegisterDebug(registry); err != nil {
		return err
	}
	platform := clients.NewHTTPPlatform(cfg.Platform.BaseURL, cfg.Platform.Timeout.Std())
	if err := actions.RegisterCluster(registry, platform, clients.NewHTTPAgent()); err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:    store,
		Registry: registry,
		Events:   broker,
		Locks:    lockFactory{coord: coord},
		Logger:   log.WithComponent("orchestrator"),
	})

	// Task queue: workers execute cycles, the primary enqueues them
	queue := taskqueue.NewQueue(redisClient)
	worker := taskqueue.NewWorker(queue, taskqueue.QueueOrchestrate, cfg.Orchestrate.Workers,
		orchestrateHandler(orch), log.WithComponent("worker"))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	worker.Start(ctx)
	logger.Info().Int("workers", cfg.Orchestrate.Workers).Msg("Cycle workers started")

	schedulerDone := make(chan struct{})
	go runScheduler(ctx, cfg.Orchestrate.Interval.Std(), election, store, queue,
		log.WithComponent("scheduler"), schedulerDone)

	// Admin API
	apiServer := api.NewServer(api.Config{
		Store:    store,
		Events:   broker,
		Registry: registry,
		Queue:    queue,
		Logger:   log.WithComponent("api"),
	})
	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Metrics endpoint
	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	logger.Info().
		Str("api_addr", cfg.API.Addr).
		Str("metrics_addr", cfg.Metrics.Addr).
		Str("node", node.String()).
		Msg("Keel control plane running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("Server failed")
	}

	stop()
	<-schedulerDone
	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Metrics shutdown failed")
	}
	if err := election.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Election shutdown failed")
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

// orchestrateHandler runs one queued orchestration cycle.
func orchestrateHandler(orch *orchestrator.Orchestrator) taskqueue.Handler {
	return func(ctx context.Context, task *taskqueue.Task) error {
		var payload taskqueue.OrchestratePayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return fmt.Errorf("invalid orchestrate payload: %w", err)
		}
		return orch.Orchestrate(ctx, payload.NsID, payload.ClusterID, payload.Mode)
	}
}

// runScheduler enqueues one orchestration task per enabled cluster each
// interval, on the primary only. Secondaries keep ticking so they take over
// scheduling as soon as they win an election.
func runScheduler(ctx context.Context, interval time.Duration, election *coordinator.Election,
	store storage.Store, queue *taskqueue.Queue, logger zerolog.Logger, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !election.IsPrimary() {
			metrics.ElectionPrimary.Set(0)
			continue
		}
		metrics.ElectionPrimary.Set(1)

		clusters, err := store.ListClusters(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list clusters for scheduling")
			continue
		}

		for _, cluster := range clusters {
			if !cluster.Enabled {
				continue
			}
			err := queue.Submit(ctx, taskqueue.QueueOrchestrate, taskqueue.OrchestratePayload{
				NsID:      cluster.NsID,
				ClusterID: cluster.ClusterID,
				Mode:      types.OrchestrateModePeriodic,
			})
			if err != nil {
				logger.Error().Err(err).
					Str("ns_id", cluster.NsID).
					Str("cluster_id", cluster.ClusterID).
					Msg("Failed to enqueue orchestration task")
			}
		}
	}
}
