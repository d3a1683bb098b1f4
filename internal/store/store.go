package store

import (
	"sync"
	"time"

	"github.com/krobus00/market-feed-service/internal/entity"
)

// CandleStore is the single shared state between the feed client and the
// sinks: one writer (the feed read loop), any number of readers. Only the
// most recent candle is retained.
type CandleStore struct {
	mu           sync.RWMutex
	candle       *entity.Candle
	state        entity.ConnectionState
	version      uint64
	lastUpdateAt time.Time
	subscribers  []chan struct{}
}

func NewCandleStore() *CandleStore {
	return &CandleStore{
		state: entity.StateDisconnected,
	}
}

// Publish replaces the current candle, bumps the version and signals every
// subscriber. The candle is copied, so the caller may reuse its value.
func (s *CandleStore) Publish(candle entity.Candle) {
	s.mu.Lock()
	copied := candle
	s.candle = &copied
	s.version++
	s.lastUpdateAt = time.Now()
	subscribers := s.subscribers
	s.mu.Unlock()

	// coalescing signal: a slow sink only ever misses intermediate
	// versions, never the latest one
	for _, ch := range subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *CandleStore) SetConnectionState(state entity.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Snapshot returns a consistent view of candle, connection state and version.
func (s *CandleStore) Snapshot() entity.FeedSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := entity.FeedSnapshot{
		State:        s.state,
		Version:      s.version,
		LastUpdateAt: s.lastUpdateAt,
	}

	if s.candle != nil {
		copied := *s.candle
		snapshot.Candle = &copied
	}

	return snapshot
}

// Subscribe registers a new update listener. The returned channel is
// 1-buffered and signalled without blocking the writer; consumers read a
// fresh Snapshot after each signal.
func (s *CandleStore) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()

	return ch
}
