package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krobus00/market-feed-service/internal/config"
	"github.com/krobus00/market-feed-service/internal/entity"
	"github.com/krobus00/market-feed-service/internal/store"
	"github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// BinanceFeed keeps one kline subscription alive against a Binance-compatible
// combined stream endpoint and publishes every decoded candle into the store.
// It is the store's only writer.
type BinanceFeed struct {
	cfg   config.FeedConfig
	store *store.CandleStore

	dialer *websocket.Dialer
	rng    *rand.Rand
	subID  int64

	messages     atomic.Uint64
	decodeErrors atomic.Uint64
	reconnects   atomic.Uint64
}

type Stats struct {
	Messages     uint64 `json:"messages"`
	DecodeErrors uint64 `json:"decode_errors"`
	Reconnects   uint64 `json:"reconnects"`
}

func NewBinanceFeed(cfg config.FeedConfig, candleStore *store.CandleStore) *BinanceFeed {
	return &BinanceFeed{
		cfg:    cfg,
		store:  candleStore,
		dialer: websocket.DefaultDialer,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *BinanceFeed) Stats() Stats {
	return Stats{
		Messages:     f.messages.Load(),
		DecodeErrors: f.decodeErrors.Load(),
		Reconnects:   f.reconnects.Load(),
	}
}

// Run drives the connect/subscribe/stream loop until ctx is cancelled.
// Every connection-level failure is retried with backoff; only cancellation
// returns, always with nil.
func (f *BinanceFeed) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"symbol":   f.cfg.Symbol,
		"interval": f.cfg.Interval,
	}).Info("starting feed client")

	attempt := 0

	for {
		if ctx.Err() != nil {
			f.store.SetConnectionState(entity.StateDisconnected)
			return nil
		}

		streamedFor, err := f.runEpoch(ctx)
		f.store.SetConnectionState(entity.StateDisconnected)

		if ctx.Err() != nil {
			return nil
		}

		// a flapping connection must not reset to fast retry
		if streamedFor >= f.cfg.Reconnect.ResetAfter {
			attempt = 0
		}

		wait := reconnectDelay(attempt, f.cfg.Reconnect, f.rng)
		attempt++
		f.reconnects.Add(1)

		logrus.WithFields(logrus.Fields{
			"retry_in": wait.String(),
			"attempt":  attempt,
		}).Warnf("feed disconnected: %v", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			f.store.SetConnectionState(entity.StateDisconnected)
			return nil
		}
	}
}

// runEpoch runs one connection from dial to disconnect and reports how long
// the connection spent in the streaming state.
func (f *BinanceFeed) runEpoch(ctx context.Context) (time.Duration, error) {
	f.store.SetConnectionState(entity.StateConnecting)

	logrus.Infof("connecting to %s", f.cfg.WSURL)
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", f.cfg.WSURL, err)
	}

	epochDone := make(chan struct{})
	defer close(epochDone)
	defer conn.Close()

	// unblock the read loop when the service is told to stop
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
		case <-epochDone:
		}
	}()

	extendDeadline := func() {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.IdleTimeout))
	}

	conn.SetPongHandler(func(string) error {
		extendDeadline()
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		extendDeadline()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	f.store.SetConnectionState(entity.StateSubscribing)

	f.subID++
	subscription := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: []string{f.cfg.StreamName()},
		ID:     f.subID,
	}

	logrus.Infof("subscribing to stream: %s", f.cfg.StreamName())
	if err := conn.WriteJSON(subscription); err != nil {
		return 0, fmt.Errorf("send subscribe request: %w", err)
	}

	// the endpoint must confirm (or start streaming) within the subscribe
	// window; afterwards the idle timeout takes over
	_ = conn.SetReadDeadline(time.Now().Add(f.cfg.SubscribeTimeout))

	go f.pingLoop(ctx, conn, epochDone)

	streaming := false
	var streamingSince time.Time

	streamedFor := func() time.Duration {
		if !streaming {
			return 0
		}
		return time.Since(streamingSince)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return streamedFor(), fmt.Errorf("read message: %w", err)
		}

		f.messages.Add(1)
		extendDeadline()

		candle, ok, err := parseCandle(message)
		if err != nil {
			// malformed frame: count, skip, keep the connection
			f.decodeErrors.Add(1)
			logrus.WithError(err).Warn("skipping undecodable feed frame")
			continue
		}
		if !ok {
			// subscribe ack or control frame
			continue
		}

		if err := candle.Validate(); err != nil {
			f.decodeErrors.Add(1)
			logrus.WithError(err).Warn("skipping invalid candle")
			continue
		}

		if !streaming {
			streaming = true
			streamingSince = time.Now()
			f.store.SetConnectionState(entity.StateStreaming)
		}

		f.store.Publish(*candle)

		if candle.IsClosed {
			logrus.WithFields(logrus.Fields{
				"symbol":    candle.Symbol,
				"interval":  candle.Interval,
				"open_time": candle.OpenTime,
				"close":     candle.ClosePrice.String(),
				"volume":    candle.Volume.String(),
			}).Info("bucket closed")
		}
	}
}

func (f *BinanceFeed) pingLoop(ctx context.Context, conn *websocket.Conn, epochDone <-chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logrus.WithError(err).Warn("feed ping failed")
				return
			}
		case <-ctx.Done():
			return
		case <-epochDone:
			return
		}
	}
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}
