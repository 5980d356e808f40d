package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 3, cfg.CheckoutMaxAttempts)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "postgres", cfg.Store)
	assert.False(t, cfg.SweepInAPI)
	assert.False(t, cfg.GatewaySandbox)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE", "Memory")
	t.Setenv("CURRENCY", "inr")
	t.Setenv("RESERVATION_TTL", "15m")
	t.Setenv("SWEEP_IN_API", "true")
	t.Setenv("NOTIFY_WORKERS", "9")
	t.Setenv("GATEWAY_SANDBOX", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTL)
	assert.True(t, cfg.SweepInAPI)
	assert.Equal(t, 9, cfg.NotifyWorkers)
	assert.True(t, cfg.GatewaySandbox)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for k, v := range map[string]string{
		"RESERVATION_TTL":       "soon",
		"CHECKOUT_MAX_ATTEMPTS": "0",
		"SWEEP_IN_API":          "maybe",
		"STORE":                 "sqlite",
	} {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
