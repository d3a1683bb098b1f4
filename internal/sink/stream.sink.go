package sink

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/market-feed-service/internal/constant"
	"github.com/krobus00/market-feed-service/internal/entity"
	"github.com/krobus00/market-feed-service/internal/store"
	"github.com/krobus00/market-feed-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// StreamSink republishes every candle to a JetStream subject so strategy
// services can consume the feed without opening their own exchange
// connection.
type StreamSink struct {
	js    nats.JetStreamContext
	store *store.CandleStore

	lastVersion uint64
}

func NewStreamSink(js nats.JetStreamContext, candleStore *store.CandleStore) *StreamSink {
	return &StreamSink{
		js:    js,
		store: candleStore,
	}
}

func (s *StreamSink) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.CandleStreamName,
		Subjects:  []string{constant.CandleStreamSubjectAll},
		Storage:   nats.FileStorage, // use MemoryStorage for ultra-low latency
		Retention: nats.LimitsPolicy,
		MaxAge:    5 * time.Minute,
		Replicas:  1,
	}

	stream, err := s.js.StreamInfo(constant.CandleStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.CandleStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.CandleStreamName)
	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.CandleStreamName)

	return nil
}

func (s *StreamSink) Run(ctx context.Context) {
	logrus.Info("stream sink started")

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

			if err := s.publish(*snapshot.Candle); err != nil {
				logrus.WithError(err).Error("stream sink publish failed")
				continue
			}

			s.lastVersion = snapshot.Version
		}
	}
}

func (s *StreamSink) publish(candle entity.Candle) error {
	subject := constant.GetCandleStreamSubject(candle.Symbol, candle.Interval)

	return util.PublishEvent(s.js, subject, entity.CandleEvent{
		RetryCount: 0,
		Data:       candle,
	})
}
