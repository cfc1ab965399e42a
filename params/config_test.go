package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRANSPORTS", "libp2p, Kafka,kv")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOCK_TTL", "750ms")
	t.Setenv("SYNC_INTERVAL", "0s")
	t.Setenv("ENABLE_FEEDER", "true")
	t.Setenv("STORAGE", "mem")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []string{"libp2p", "kafka", "kv"}, cfg.Transport.Kinds)
	assert.True(t, cfg.Transport.Uses("kafka"))
	assert.False(t, cfg.Transport.Uses("kv"))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Transport.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Replication.LockTTL)
	assert.Zero(t, cfg.Replication.SyncInterval)
	assert.True(t, cfg.Feeder.Enabled)
	assert.Equal(t, "mem", cfg.Node.Storage)
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_ADDR=:9999\nDEDUP_CAPACITY=16\n"), 0o644))
	// godotenv never overrides variables that are already set; register
	// cleanup so the loaded values do not leak into other tests.
	t.Setenv("API_ADDR", "")
	os.Unsetenv("API_ADDR")
	t.Setenv("DEDUP_CAPACITY", "")
	os.Unsetenv("DEDUP_CAPACITY")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Node.APIAddr)
	assert.Equal(t, 16, cfg.Replication.DedupCapacity)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"TRANSPORTS", "carrier-pigeon"},
		{"TRANSPORTS", "libp2p,mem"},
		{"STORAGE", "tape"},
		{"LOCK_TTL", "soon"},
		{"DEDUP_CAPACITY", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
