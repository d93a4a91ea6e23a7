package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/bee/pkg/api"
	"github.com/cuemby/bee/pkg/archive"
	"github.com/cuemby/bee/pkg/config"
	"github.com/cuemby/bee/pkg/events"
	"github.com/cuemby/bee/pkg/graphstore"
	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/scheduler"
	"github.com/cuemby/bee/pkg/taskmanager"
	"github.com/cuemby/bee/pkg/types"
	"github.com/cuemby/bee/pkg/workflow"
	"github.com/spf13/cobra"
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Manage the Workflow Manager (WFM)",
}

func init() {
	managerStartCmd.Flags().String("workdir", "", "Working directory (default: config/defaults)")
	managerStartCmd.Flags().String("listen-addr", "", "HTTP listen address")
	managerStartCmd.Flags().String("tm-base-url", "", "Base URL of the Task Manager this WFM submits to")
	managerStartCmd.Flags().String("scheduler-algorithm", "", "fcfs, sjf, backfill, or mars")
	managerStartCmd.Flags().String("resources", "", "Path to a JSON file describing the resource inventory ([]types.Resource)")
	managerCmd.AddCommand(managerStartCmd)
}

var managerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Workflow Manager's HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg := config.DefaultManager()
		if err := config.Load(cfgPath, &cfg); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyManagerFlagOverrides(cmd, &cfg)

		store, err := graphstore.NewBoltStore(cfg.WorkDir)
		if err != nil {
			return fmt.Errorf("open graph store: %w", err)
		}
		defer store.Close()

		archiver, err := archive.New(cfg.WorkDir + "/archives")
		if err != nil {
			return fmt.Errorf("open archive store: %w", err)
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		resourcesPath, _ := cmd.Flags().GetString("resources")
		resources, err := loadResources(resourcesPath)
		if err != nil {
			return err
		}

		wfm := workflow.New(workflow.Config{
			Store:     store,
			TM:        taskmanager.NewClient(cfg.TMBaseURL),
			Events:    broker,
			Archiver:  archiver,
			Resources: resources,
			ChooseOpts: scheduler.ChooseOptions{
				DefaultAlgorithm: cfg.SchedulerAlgo,
				MARSThreshold:    cfg.MARSThreshold,
			},
			MaxRestarts: cfg.MaxRestarts,
		})

		router := api.NewRouter("manager")
		api.NewWorkflowServer(router, wfm, store, archiver, cfg.WorkDir)

		log.WithComponent("manager").Info().Str("addr", cfg.ListenAddr).Str("workdir", cfg.WorkDir).Msg("starting workflow manager")

		return serveUntilSignal(cmd.Context(), &http.Server{Addr: cfg.ListenAddr, Handler: router})
	},
}

// serveUntilSignal runs srv until SIGINT/SIGTERM, then drains in-flight
// requests within shutdownTimeout.
func serveUntilSignal(ctx context.Context, srv *http.Server) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// loadResources reads the resource inventory from a JSON file; an
// empty path yields a single permissive default resource so `bee
// manager start` works out of the box against the simple backend.
func loadResources(path string) ([]*types.Resource, error) {
	if path == "" {
		return []*types.Resource{{ID: "local", Nodes: 1, CoresPerNode: 1, MemPerNode: 1 << 34}}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open resources file: %w", err)
	}
	defer f.Close()

	var resources []*types.Resource
	if err := json.NewDecoder(f).Decode(&resources); err != nil {
		return nil, fmt.Errorf("parse resources file: %w", err)
	}
	return resources, nil
}

func applyManagerFlagOverrides(cmd *cobra.Command, cfg *config.Manager) {
	if v, _ := cmd.Flags().GetString("workdir"); v != "" {
		cfg.WorkDir = v
	}
	if v, _ := cmd.Flags().GetString("listen-addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("tm-base-url"); v != "" {
		cfg.TMBaseURL = v
	}
	if v, _ := cmd.Flags().GetString("scheduler-algorithm"); v != "" {
		cfg.SchedulerAlgo = v
	}
}
