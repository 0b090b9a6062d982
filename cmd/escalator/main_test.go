package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/escalator/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Environment:     "development",
		HTTPPort:        "0",
		GRPCPort:        "0",
		Workers:         3,
		WorkerIndex:     -1,
		Interval:        time.Second,
		SleepReschedule: time.Minute,
		AlertMaxRetries: 3,
		CacheTTL:        time.Second,
		CELCacheSize:    8,
		UseMemoryStores: true,
		DryRunCommands:  true,
	}
}

func TestNewApp_MemoryStores(t *testing.T) {
	a, err := newApp(memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	assert.Len(t, a.workers, 3)
	assert.Nil(t, a.db)

	for _, path := range []string{"/health", "/ready", "/api/v1/maintenances"} {
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestNewApp_SingleWorker(t *testing.T) {
	cfg := memoryConfig()
	cfg.WorkerIndex = 1

	a, err := newApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	assert.Len(t, a.workers, 1)
}

func TestCheckConfigCmd(t *testing.T) {
	t.Setenv("ESCALATOR_USE_MEMORY_STORES", "true")
	t.Setenv("ESCALATOR_WORKERS", "2")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"check-config"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "configuration ok: 2 partitions, running [0 1] every 3s")
}

func TestCheckConfigCmd_Invalid(t *testing.T) {
	t.Setenv("ESCALATOR_WORKERS", "0")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check-config"})

	assert.ErrorIs(t, root.Execute(), config.ErrInvalidConfig)
}

func TestNewApp_PostgresPartitionLocks(t *testing.T) {
	cfg := memoryConfig()
	cfg.UseMemoryStores = false
	cfg.DatabaseURL = "postgres://escalator@127.0.0.1:1/zabbix?connect_timeout=1"
	cfg.PartitionLocks = true
	cfg.LeaseRenewal = time.Second

	a, err := newApp(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	require.NotNil(t, a.db)
	assert.Len(t, a.leases, 3)
	assert.Len(t, a.workers, 3)
}
