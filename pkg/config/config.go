// Package config implements BEE's layered configuration: defaults, then
// an optional YAML file, then environment variables, each overriding
// the last (spec.md §1 lists "config file formats" as out of scope for
// the orchestration core itself, but a long-lived daemon like the Task
// Manager still needs a config layer — carried as ambient stack per the
// "no Non-goal excuses a bare-stdlib rendition" rule). Grounded on
// rashadism-openchoreo's internal/config/loader.go koanf-based loader,
// the pack's only layered-config library with a YAML+env+defaults
// story.
package config

import (
	"fmt"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Manager holds the configuration for a `bee manager` process.
type Manager struct {
	WorkDir         string `koanf:"workdir"`
	ListenAddr      string `koanf:"listen_addr"`
	TMBaseURL       string `koanf:"tm_base_url"`
	SchedulerAlgo   string `koanf:"scheduler_algorithm"`
	MARSThreshold   int    `koanf:"mars_threshold"`
	MaxRestarts     int    `koanf:"max_restarts"`
	LogLevel        string `koanf:"log_level"`
	LogJSON         bool   `koanf:"log_json"`
}

// DefaultManager returns Manager's defaults, matching spec.md's
// defaults (§7: max_restarts=3; §4.2: backfill is the canonical
// default algorithm; §4.3: 5s tick lives on the TM side).
func DefaultManager() Manager {
	return Manager{
		WorkDir:       "/var/lib/bee",
		ListenAddr:    ":8080",
		TMBaseURL:     "http://localhost:8081",
		SchedulerAlgo: "backfill",
		MARSThreshold: 2,
		MaxRestarts:   3,
		LogLevel:      "info",
		LogJSON:       false,
	}
}

// TaskManager holds the configuration for a `bee tm` process.
type TaskManager struct {
	Backend         string `koanf:"backend"` // "slurm", "lsf", "simple"
	WorkDir         string `koanf:"workdir"`
	ListenAddr      string `koanf:"listen_addr"`
	WFMCallbackURL  string `koanf:"wfm_callback_url"`
	TickInterval    string `koanf:"tick_interval"` // parsed with time.ParseDuration
	ZombieThreshold int    `koanf:"zombie_threshold"`
	LogLevel        string `koanf:"log_level"`
	LogJSON         bool   `koanf:"log_json"`
}

// DefaultTaskManager returns TaskManager's defaults (spec.md §4.3: 5s
// tick, N=3 consecutive failures before ZOMBIE).
func DefaultTaskManager() TaskManager {
	return TaskManager{
		Backend:         "simple",
		WorkDir:         "/var/lib/bee",
		ListenAddr:      ":8081",
		WFMCallbackURL:  "http://localhost:8080",
		TickInterval:    "5s",
		ZombieThreshold: 3,
		LogLevel:        "info",
		LogJSON:         false,
	}
}

// envPrefix is the shared environment-variable namespace; nested keys
// use a double underscore, e.g. BEE__SCHEDULER_ALGORITHM.
const envPrefix = "BEE__"

// Load layers defaults (lowest), an optional YAML file at path (skipped
// if path is ""), then environment variables (highest), into out. out
// must be a pointer to Manager or TaskManager populated with its
// package default first.
func Load(path string, out any) error {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(out, "koanf"), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	return k.Unmarshal("", out)
}
