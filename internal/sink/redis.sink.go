package sink

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/krobus00/market-feed-service/internal/config"
	"github.com/krobus00/market-feed-service/internal/entity"
	"github.com/krobus00/market-feed-service/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisSink mirrors the latest candle into a single Redis key so other
// services can poll it without talking to the connector directly.
type RedisSink struct {
	client *redis.Client
	cfg    config.RedisOutputConfig
	store  *store.CandleStore

	lastVersion uint64
}

func NewRedisSink(cacheDSN string, cfg config.RedisOutputConfig, candleStore *store.CandleStore) (*RedisSink, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return &RedisSink{
		client: redis.NewClient(options),
		cfg:    cfg,
		store:  candleStore,
	}, nil
}

func (s *RedisSink) Run(ctx context.Context) {
	logrus.WithField("key", s.cfg.Key).Info("redis sink started")

	updates := s.store.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			snapshot := s.store.Snapshot()
			if snapshot.Candle == nil || snapshot.Version == s.lastVersion {
				continue
			}

			if err := s.Save(ctx, *snapshot.Candle); err != nil {
				logrus.WithError(err).Error("redis sink write failed")
				continue
			}

			s.lastVersion = snapshot.Version
		}
	}
}

func (s *RedisSink) Save(ctx context.Context, candle entity.Candle) error {
	payload, err := json.Marshal(candle)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, s.cfg.Key, payload, s.cfg.TTL).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
