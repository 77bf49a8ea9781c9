package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "stream.orders", cfg.OrderStream)
	assert.Equal(t, "g1", cfg.OrderGroup)
	assert.Equal(t, "c1", cfg.OrderConsumer)
	assert.Empty(t, cfg.KafkaBrokers, "kafka export disabled by default")
	assert.Equal(t, 200, cfg.BuyRateLimit)
	assert.Equal(t, time.Second, cfg.BuyRateWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BUY_RATE_LIMIT", "50")
	t.Setenv("KAFKA_BROKERS", "kafka1:9092, kafka2:9092")
	t.Setenv("SHOP_CACHE_WINDOW_MIN", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.BuyRateLimit)
	assert.Equal(t, []string{"kafka1:9092", "kafka2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.ShopCacheWindow)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("BUY_RATE_LIMIT", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("BUY_RATE_LIMIT", "abc")
	_, err = Load()
	assert.Error(t, err)
}
