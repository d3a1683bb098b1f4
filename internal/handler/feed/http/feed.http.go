package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/market-feed-service/internal/config"
	"github.com/krobus00/market-feed-service/internal/entity"
	"github.com/krobus00/market-feed-service/internal/service/feed"
	"github.com/krobus00/market-feed-service/internal/store"
)

type OHLCVResponse struct {
	Timestamp  int64  `json:"timestamp"`
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	Open       string `json:"open"`
	High       string `json:"high"`
	Low        string `json:"low"`
	Close      string `json:"close"`
	Volume     string `json:"volume"`
	OpenTime   int64  `json:"open_time"`
	CloseTime  int64  `json:"close_time"`
	IsClosed   bool   `json:"is_closed"`
	ReceivedAt int64  `json:"received_at"`
	ServerTime int64  `json:"server_time"`
}

type OHLCVCSVResponse struct {
	CSV string `json:"csv"`
}

type HealthResponse struct {
	Status          string    `json:"status"`
	ConnectionState string    `json:"connection_state"`
	LastUpdateAt    null.Time `json:"last_update_at"`
	LastUpdateAgeMs null.Int  `json:"last_update_age_ms"`
	Reconnects      uint64    `json:"reconnects"`
	ServerTime      int64     `json:"server_time"`
}

type StatusResponse struct {
	Connector    StatusConnector    `json:"connector"`
	LatestCandle StatusLatestCandle `json:"latest_candle"`
	Output       StatusOutput       `json:"output"`
	ServerTime   int64              `json:"server_time"`
}

type StatusConnector struct {
	ConnectionState string     `json:"connection_state"`
	Symbol          string     `json:"symbol"`
	Interval        string     `json:"interval"`
	Stats           feed.Stats `json:"stats"`
}

type StatusLatestCandle struct {
	Available bool           `json:"available"`
	Version   uint64         `json:"version"`
	Data      *entity.Candle `json:"data"`
}

type StatusOutput struct {
	FileEnabled   bool   `json:"file_enabled"`
	FilePath      string `json:"file_path"`
	FileFormat    string `json:"file_format"`
	RedisEnabled  bool   `json:"redis_enabled"`
	StreamEnabled bool   `json:"stream_enabled"`
}

type PingResponse struct {
	Pong int64 `json:"pong"`
}

// StatsProvider is implemented by the feed client; the handler only reads
// counters, it never reaches into the connection.
type StatsProvider interface {
	Stats() feed.Stats
}

type Handler struct {
	store          *store.CandleStore
	stats          StatsProvider
	staleThreshold time.Duration
}

func NewFeedHTTPHandler(candleStore *store.CandleStore, stats StatsProvider, staleThreshold time.Duration) *Handler {
	return &Handler{
		store:          candleStore,
		stats:          stats,
		staleThreshold: staleThreshold,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.Root)
	mux.HandleFunc("/ohlcv", h.GetOHLCV)
	mux.HandleFunc("/ohlcv/csv", h.GetOHLCVCSV)
	mux.HandleFunc("/health", h.GetHealth)
	mux.HandleFunc("/status", h.GetStatus)
	mux.HandleFunc("/ping", h.Ping)
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": config.ServiceName,
		"version": config.ServiceVersion,
		"endpoints": map[string]string{
			"ohlcv":     "/ohlcv",
			"ohlcv_csv": "/ohlcv/csv",
			"health":    "/health",
			"status":    "/status",
			"ping":      "/ping",
		},
	})
}

func (h *Handler) GetOHLCV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	snapshot := h.store.Snapshot()
	if snapshot.Candle == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no data available yet"})
		return
	}

	setNoCacheHeaders(w)

	candle := snapshot.Candle
	writeJSON(w, http.StatusOK, OHLCVResponse{
		Timestamp:  candle.OpenTime.UnixMilli(),
		Symbol:     candle.Symbol,
		Interval:   candle.Interval,
		Open:       candle.OpenPrice.String(),
		High:       candle.HighPrice.String(),
		Low:        candle.LowPrice.String(),
		Close:      candle.ClosePrice.String(),
		Volume:     candle.Volume.String(),
		OpenTime:   candle.OpenTime.UnixMilli(),
		CloseTime:  candle.CloseTime.UnixMilli(),
		IsClosed:   candle.IsClosed,
		ReceivedAt: candle.ReceivedAt.UnixMilli(),
		ServerTime: time.Now().UnixMilli(),
	})
}

func (h *Handler) GetOHLCVCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	snapshot := h.store.Snapshot()
	if snapshot.Candle == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no data available yet"})
		return
	}

	setNoCacheHeaders(w)

	candle := snapshot.Candle
	writeJSON(w, http.StatusOK, OHLCVCSVResponse{
		CSV: fmt.Sprintf("%d,%s,%s,%s,%s,%s",
			candle.OpenTime.UnixMilli(),
			candle.OpenPrice.String(),
			candle.HighPrice.String(),
			candle.LowPrice.String(),
			candle.ClosePrice.String(),
			candle.Volume.String(),
		),
	})
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	snapshot := h.store.Snapshot()
	now := time.Now()

	resp := HealthResponse{
		Status:          "unhealthy",
		ConnectionState: string(snapshot.State),
		Reconnects:      h.stats.Stats().Reconnects,
		ServerTime:      now.UnixMilli(),
	}

	var fresh bool
	if snapshot.Candle != nil {
		age := now.Sub(snapshot.LastUpdateAt)
		fresh = age <= h.staleThreshold
		resp.LastUpdateAt = null.TimeFrom(snapshot.LastUpdateAt)
		resp.LastUpdateAgeMs = null.IntFrom(age.Milliseconds())
	}

	// streaming with stale data means the detector is stalled, report
	// unhealthy even though the socket looks alive
	if snapshot.State == entity.StateStreaming && fresh {
		resp.Status = "healthy"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	snapshot := h.store.Snapshot()

	resp := StatusResponse{
		Connector: StatusConnector{
			ConnectionState: string(snapshot.State),
			Stats:           h.stats.Stats(),
		},
		LatestCandle: StatusLatestCandle{
			Available: snapshot.Candle != nil,
			Version:   snapshot.Version,
			Data:      snapshot.Candle,
		},
		ServerTime: time.Now().UnixMilli(),
	}

	if config.Env != nil {
		resp.Connector.Symbol = config.Env.Feed.Symbol
		resp.Connector.Interval = config.Env.Feed.Interval
		resp.Output = StatusOutput{
			FileEnabled:   config.Env.Output.File.Enabled,
			FilePath:      config.Env.Output.File.Path,
			FileFormat:    config.Env.Output.File.Format,
			RedisEnabled:  config.Env.Output.Redis.Enabled,
			StreamEnabled: config.Env.Output.Stream.Enabled,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PingResponse{Pong: time.Now().UnixMilli()})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func setNoCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
