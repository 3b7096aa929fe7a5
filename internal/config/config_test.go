package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StorageSQLite, cfg.StorageDriver)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, 3, cfg.ConsumerAttempts)
	require.Equal(t, []string{"productivity_tasks", "productivity_rounds", "productivity_pomodoro"}, cfg.ConsumerTopics)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage_driver: postgres
outbox_batch_size: 50
auth_disabled: true
kafka_brokers:
  - broker-1:9092
  - broker-2:9092
timezone: Europe/Berlin
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OUTBOX_BATCH_SIZE", "75")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoragePostgres, cfg.StorageDriver)
	require.Equal(t, 75, cfg.OutboxBatchSize, "environment overrides the file")
	require.True(t, cfg.AuthDisabled)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
}
