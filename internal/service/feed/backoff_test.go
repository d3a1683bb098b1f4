package feed

import (
	"math/rand"
	"testing"
	"time"

	"github.com/krobus00/market-feed-service/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestReconnectDelayGrowsAndCaps(t *testing.T) {
	cfg := config.ReconnectConfig{
		MinDelay: 1 * time.Second,
		MaxDelay: 15 * time.Second,
		Factor:   2.0,
	}
	rng := rand.New(rand.NewSource(1))

	for attempt := 0; attempt < 20; attempt++ {
		delay := reconnectDelay(attempt, cfg, rng)
		assert.GreaterOrEqual(t, delay, cfg.MinDelay, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, cfg.MaxDelay, "attempt %d", attempt)
	}

	// the deterministic base (before jitter) must grow 1s, 2s, 4s, ...
	noJitter := config.ReconnectConfig{
		MinDelay: 1 * time.Second,
		MaxDelay: 1 * time.Second,
		Factor:   2.0,
	}
	assert.Equal(t, 1*time.Second, reconnectDelay(0, noJitter, rng))
	assert.Equal(t, 1*time.Second, reconnectDelay(5, noJitter, rng))
}

func TestReconnectDelayExponentialBase(t *testing.T) {
	cfg := config.ReconnectConfig{
		MinDelay: 1 * time.Second,
		MaxDelay: 60 * time.Second,
		Factor:   2.0,
	}
	rng := rand.New(rand.NewSource(1))

	// jitter is additive, so each attempt's delay is at least the
	// exponential base
	assert.GreaterOrEqual(t, reconnectDelay(1, cfg, rng), 2*time.Second)
	assert.GreaterOrEqual(t, reconnectDelay(2, cfg, rng), 4*time.Second)
	assert.GreaterOrEqual(t, reconnectDelay(3, cfg, rng), 8*time.Second)
}
