package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, HeightClock, cfg.Ledger.HeightSource)
	assert.Equal(t, 6*time.Second, cfg.Ledger.BlockInterval)
	assert.Equal(t, defaultJWTSigningKey, cfg.Auth.JWTSigningKey)
	assert.False(t, cfg.PublishesToKafka())
	assert.False(t, cfg.UsesOutbox())
	assert.Equal(t, 7*24*time.Hour, cfg.Outbox.Retention)
	assert.Equal(t, int64(100000), cfg.Redis.StreamMaxLen)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("POE_ADDR", ":9090")
	t.Setenv("POE_STORE_BACKEND", " Postgres ")
	t.Setenv("POE_DATABASE_URL", "postgres://poe@localhost/poe")
	t.Setenv("POE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("POE_BLOCK_INTERVAL", "2s")
	t.Setenv("POE_GENESIS", "2025-06-01T00:00:00Z")
	t.Setenv("POE_JWT_SIGNING_KEY", "s3cret")
	t.Setenv("POE_OUTBOX_RETENTION", "1h")
	t.Setenv("POE_REDIS_STREAM_MAXLEN", "500")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Ledger.BlockInterval)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), cfg.Ledger.Genesis.UTC())
	assert.Equal(t, "s3cret", cfg.Auth.JWTSigningKey)
	assert.True(t, cfg.PublishesToKafka())
	assert.True(t, cfg.UsesOutbox())
	assert.Equal(t, time.Hour, cfg.Outbox.Retention)
	assert.Equal(t, int64(500), cfg.Redis.StreamMaxLen)
}

func TestValidate(t *testing.T) {
	base := func() Server {
		return Server{
			StoreBackend: BackendMemory,
			Ledger:       LedgerConfig{HeightSource: HeightClock, BlockInterval: time.Second},
			Outbox:       OutboxConfig{BatchSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Server)
		wantErr string
	}{
		{name: "valid memory", mutate: func(*Server) {}},
		{name: "postgres without url", mutate: func(c *Server) { c.StoreBackend = BackendPostgres }, wantErr: "POE_DATABASE_URL"},
		{name: "redis without url", mutate: func(c *Server) { c.StoreBackend = BackendRedis }, wantErr: "POE_REDIS_URL"},
		{name: "unknown backend", mutate: func(c *Server) { c.StoreBackend = "etcd" }, wantErr: "unknown store backend"},
		{name: "redis height without url", mutate: func(c *Server) { c.Ledger.HeightSource = HeightRedis }, wantErr: "redis height source"},
		{name: "zero block interval", mutate: func(c *Server) { c.Ledger.BlockInterval = 0 }, wantErr: "POE_BLOCK_INTERVAL"},
		{name: "zero batch size", mutate: func(c *Server) { c.Outbox.BatchSize = 0 }, wantErr: "POE_OUTBOX_BATCH_SIZE"},
		{name: "negative retention", mutate: func(c *Server) { c.Outbox.Retention = -time.Hour }, wantErr: "POE_OUTBOX_RETENTION"},
		{name: "negative stream length", mutate: func(c *Server) { c.Redis.StreamMaxLen = -1 }, wantErr: "POE_REDIS_STREAM_MAXLEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromEnvRejectsMalformedDuration(t *testing.T) {
	t.Setenv("POE_BLOCK_INTERVAL", "soon")
	_, err := FromEnv()
	require.Error(t, err)
}
