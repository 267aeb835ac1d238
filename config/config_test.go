package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALLOCATION_TIMEOUT_SECONDS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load("does-not-exist.env")

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Business.AllocationTimeout())
	assert.Equal(t, 3, cfg.Business.AllocationMaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_POLL_INTERVAL_MS", "250")
	t.Setenv("PURCHASE_RATE_LIMIT", "not-a-number")

	cfg := Load("does-not-exist.env")

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Business.OutboxPollInterval())
	assert.Equal(t, 10, cfg.Business.PurchaseRateLimit)
}
