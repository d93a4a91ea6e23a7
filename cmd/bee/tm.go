package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/bee/pkg/api"
	"github.com/cuemby/bee/pkg/backend"
	"github.com/cuemby/bee/pkg/config"
	"github.com/cuemby/bee/pkg/health"
	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/taskmanager"
	"github.com/spf13/cobra"
)

var tmCmd = &cobra.Command{
	Use:   "tm",
	Short: "Manage the Task Manager (TM)",
}

func init() {
	tmStartCmd.Flags().String("backend", "", "Workload backend: slurm, lsf, or simple")
	tmStartCmd.Flags().String("workdir", "", "Working directory for job scripts")
	tmStartCmd.Flags().String("listen-addr", "", "HTTP listen address")
	tmStartCmd.Flags().String("wfm-callback-url", "", "Base URL of the Workflow Manager to report task updates to")
	tmCmd.AddCommand(tmStartCmd)
}

var tmStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Task Manager's submit/poll loop and HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg := config.DefaultTaskManager()
		if err := config.Load(cfgPath, &cfg); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyTMFlagOverrides(cmd, &cfg)

		be, err := buildBackend(cfg.Backend, cfg.WorkDir)
		if err != nil {
			return err
		}

		tick, err := time.ParseDuration(cfg.TickInterval)
		if err != nil {
			return fmt.Errorf("parse tick_interval %q: %w", cfg.TickInterval, err)
		}

		tm := taskmanager.New(taskmanager.Config{
			Backend:         be,
			Reporter:        taskmanager.NewHTTPReporter(cfg.WFMCallbackURL),
			TickInterval:    tick,
			ZombieThreshold: cfg.ZombieThreshold,
		})

		ctx := cmd.Context()
		tm.Start(ctx)
		defer tm.Stop()

		router := api.NewRouter("tm")
		api.NewTaskManagerServer(router, tm)
		api.NewReadinessServer(router, health.NewExecChecker(versionCheckCommand(cfg.Backend)))

		log.WithComponent("tm").Info().Str("addr", cfg.ListenAddr).Str("backend", cfg.Backend).Msg("starting task manager")

		return serveUntilSignal(ctx, &http.Server{Addr: cfg.ListenAddr, Handler: router})
	},
}

// buildBackend constructs the workload backend adapter named by
// kind (spec.md §6.3): slurm, lsf, or the local simple backend.
func buildBackend(kind, workdir string) (backend.Backend, error) {
	switch kind {
	case "slurm":
		return backend.NewSlurm(workdir), nil
	case "lsf":
		return backend.NewLSF(workdir), nil
	case "simple", "":
		return backend.NewSimple(workdir), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// versionCheckCommand picks the cheapest command that proves the
// backend's CLI is installed and runnable, used by the /ready endpoint.
func versionCheckCommand(kind string) []string {
	switch kind {
	case "slurm":
		return []string{"squeue", "--version"}
	case "lsf":
		return []string{"bjobs", "-V"}
	default:
		return []string{"true"}
	}
}

func applyTMFlagOverrides(cmd *cobra.Command, cfg *config.TaskManager) {
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend = v
	}
	if v, _ := cmd.Flags().GetString("workdir"); v != "" {
		cfg.WorkDir = v
	}
	if v, _ := cmd.Flags().GetString("listen-addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("wfm-callback-url"); v != "" {
		cfg.WFMCallbackURL = v
	}
}
