package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/krobus00/market-feed-service/internal/entity"
	"github.com/krobus00/market-feed-service/internal/service/feed"
	"github.com/krobus00/market-feed-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStats struct {
	stats feed.Stats
}

func (s stubStats) Stats() feed.Stats {
	return s.stats
}

func newTestHandler(candleStore *store.CandleStore, staleThreshold time.Duration) http.Handler {
	mux := http.NewServeMux()
	NewFeedHTTPHandler(candleStore, stubStats{stats: feed.Stats{Reconnects: 2}}, staleThreshold).Register(mux)

	return mux
}

func publishedCandle() entity.Candle {
	openTime := time.UnixMilli(1700000000000).UTC()

	return entity.Candle{
		Symbol:     "btcusdt",
		Interval:   "1m",
		OpenTime:   openTime,
		CloseTime:  openTime.Add(time.Minute),
		OpenPrice:  decimal.RequireFromString("42000.10"),
		HighPrice:  decimal.RequireFromString("42100"),
		LowPrice:   decimal.RequireFromString("41900"),
		ClosePrice: decimal.RequireFromString("42050.25"),
		Volume:     decimal.RequireFromString("12.345"),
		IsClosed:   true,
		ReceivedAt: time.UnixMilli(1700000002000).UTC(),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	return rec
}

func TestGetOHLCVNoData(t *testing.T) {
	handler := newTestHandler(store.NewCandleStore(), time.Minute)

	rec := doRequest(t, handler, http.MethodGet, "/ohlcv")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/ohlcv/csv")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOHLCV(t *testing.T) {
	candleStore := store.NewCandleStore()
	candleStore.Publish(publishedCandle())
	handler := newTestHandler(candleStore, time.Minute)

	rec := doRequest(t, handler, http.MethodGet, "/ohlcv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

	var resp OHLCVResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1700000000000), resp.Timestamp)
	assert.Equal(t, "btcusdt", resp.Symbol)
	assert.Equal(t, "1m", resp.Interval)
	assert.Equal(t, "42000.10", resp.Open)
	assert.Equal(t, "42100", resp.High)
	assert.Equal(t, "41900", resp.Low)
	assert.Equal(t, "42050.25", resp.Close)
	assert.Equal(t, "12.345", resp.Volume)
	assert.Equal(t, int64(1700000060000), resp.CloseTime)
	assert.True(t, resp.IsClosed)
	assert.NotZero(t, resp.ServerTime)
}

func TestGetOHLCVCSV(t *testing.T) {
	candleStore := store.NewCandleStore()
	candleStore.Publish(publishedCandle())
	handler := newTestHandler(candleStore, time.Minute)

	rec := doRequest(t, handler, http.MethodGet, "/ohlcv/csv")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OHLCVCSVResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1700000000000,42000.10,42100,41900,42050.25,12.345", resp.CSV)
}

func TestGetHealth(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		handler := newTestHandler(store.NewCandleStore(), time.Minute)

		rec := doRequest(t, handler, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, string(entity.StateDisconnected), resp.ConnectionState)
		assert.False(t, resp.LastUpdateAt.Valid)
		assert.False(t, resp.LastUpdateAgeMs.Valid)
		assert.Equal(t, uint64(2), resp.Reconnects)
	})

	t.Run("streaming and fresh", func(t *testing.T) {
		candleStore := store.NewCandleStore()
		candleStore.Publish(publishedCandle())
		candleStore.SetConnectionState(entity.StateStreaming)
		handler := newTestHandler(candleStore, time.Minute)

		rec := doRequest(t, handler, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, string(entity.StateStreaming), resp.ConnectionState)
		assert.True(t, resp.LastUpdateAt.Valid)
		assert.True(t, resp.LastUpdateAgeMs.Valid)
	})

	t.Run("streaming but stale", func(t *testing.T) {
		candleStore := store.NewCandleStore()
		candleStore.Publish(publishedCandle())
		candleStore.SetConnectionState(entity.StateStreaming)
		handler := newTestHandler(candleStore, time.Nanosecond)

		time.Sleep(5 * time.Millisecond)

		rec := doRequest(t, handler, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, string(entity.StateStreaming), resp.ConnectionState)
	})

	t.Run("fresh but not streaming", func(t *testing.T) {
		candleStore := store.NewCandleStore()
		candleStore.Publish(publishedCandle())
		candleStore.SetConnectionState(entity.StateConnecting)
		handler := newTestHandler(candleStore, time.Minute)

		rec := doRequest(t, handler, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
	})
}

func TestGetStatus(t *testing.T) {
	candleStore := store.NewCandleStore()
	candleStore.Publish(publishedCandle())
	candleStore.SetConnectionState(entity.StateStreaming)
	handler := newTestHandler(candleStore, time.Minute)

	rec := doRequest(t, handler, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(entity.StateStreaming), resp.Connector.ConnectionState)
	assert.Equal(t, uint64(2), resp.Connector.Stats.Reconnects)
	assert.True(t, resp.LatestCandle.Available)
	assert.Equal(t, uint64(1), resp.LatestCandle.Version)
	require.NotNil(t, resp.LatestCandle.Data)
	assert.Equal(t, "btcusdt", resp.LatestCandle.Data.Symbol)
}

func TestPing(t *testing.T) {
	handler := newTestHandler(store.NewCandleStore(), time.Minute)

	rec := doRequest(t, handler, http.MethodGet, "/ping")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotZero(t, resp.Pong)
}

func TestRoot(t *testing.T) {
	handler := newTestHandler(store.NewCandleStore(), time.Minute)

	rec := doRequest(t, handler, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	candleStore := store.NewCandleStore()
	candleStore.Publish(publishedCandle())
	handler := newTestHandler(candleStore, time.Minute)

	for _, target := range []string{"/ohlcv", "/ohlcv/csv", "/health", "/status"} {
		rec := doRequest(t, handler, http.MethodPost, target)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, target)
	}
}
