package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNoFileOrEnvKeepsDefaults(t *testing.T) {
	cfg := DefaultManager()
	require.NoError(t, Load("", &cfg))
	assert.Equal(t, DefaultManager(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bee.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9090\"\nmax_restarts: 7\n"), 0644))

	cfg := DefaultManager()
	require.NoError(t, Load(path, &cfg))

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 7, cfg.MaxRestarts)
	assert.Equal(t, "backfill", cfg.SchedulerAlgo, "fields absent from the file keep their default")
}

func TestLoadMissingFileErrors(t *testing.T) {
	cfg := DefaultManager()
	err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), &cfg)
	assert.Error(t, err)
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bee.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler_algorithm: sjf\n"), 0644))
	t.Setenv("BEE__SCHEDULER_ALGORITHM", "fcfs")

	cfg := DefaultManager()
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "fcfs", cfg.SchedulerAlgo, "env wins over both the file and the default")
}

func TestLoadTaskManagerDefaults(t *testing.T) {
	cfg := DefaultTaskManager()
	require.NoError(t, Load("", &cfg))
	assert.Equal(t, "simple", cfg.Backend)
	assert.Equal(t, "5s", cfg.TickInterval)
	assert.Equal(t, 3, cfg.ZombieThreshold)
}
