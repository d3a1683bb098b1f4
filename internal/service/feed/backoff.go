package feed

import (
	"math"
	"math/rand"
	"time"

	"github.com/krobus00/market-feed-service/internal/config"
)

// reconnectDelay grows exponentially with the attempt count, adds jitter and
// caps at the configured maximum.
func reconnectDelay(attempt int, cfg config.ReconnectConfig, rng *rand.Rand) time.Duration {
	backoff := float64(cfg.MinDelay) * math.Pow(cfg.Factor, float64(attempt))
	if backoff > float64(cfg.MaxDelay) {
		backoff = float64(cfg.MaxDelay)
	}

	base := time.Duration(backoff)
	if cfg.MaxDelay <= cfg.MinDelay {
		return base
	}

	jitterWindow := cfg.MaxDelay - cfg.MinDelay
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > cfg.MaxDelay {
		return cfg.MaxDelay
	}

	return result
}
