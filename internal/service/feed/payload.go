package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/krobus00/market-feed-service/internal/entity"
	"github.com/shopspring/decimal"
)

type klineStreamPayload struct {
	Stream string `json:"stream"`
	Data   struct {
		Event     string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Kline     struct {
			OpenTime  int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			IsClosed  bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// parseCandle decodes one inbound frame. ok is false for frames that are not
// kline data (subscribe acks, heartbeats); those are not errors.
func parseCandle(message []byte) (*entity.Candle, bool, error) {
	var payload klineStreamPayload
	if err := json.Unmarshal(message, &payload); err != nil {
		return nil, false, fmt.Errorf("unmarshal feed frame: %w", err)
	}

	if payload.Data.Event != "kline" || payload.Data.Kline.Close == "" {
		return nil, false, nil
	}

	openPrice, err := decimal.NewFromString(payload.Data.Kline.Open)
	if err != nil {
		return nil, false, fmt.Errorf("invalid open price: %w", err)
	}

	closePrice, err := decimal.NewFromString(payload.Data.Kline.Close)
	if err != nil {
		return nil, false, fmt.Errorf("invalid close price: %w", err)
	}

	highPrice, err := decimal.NewFromString(payload.Data.Kline.High)
	if err != nil {
		return nil, false, fmt.Errorf("invalid high price: %w", err)
	}

	lowPrice, err := decimal.NewFromString(payload.Data.Kline.Low)
	if err != nil {
		return nil, false, fmt.Errorf("invalid low price: %w", err)
	}

	volume, err := decimal.NewFromString(payload.Data.Kline.Volume)
	if err != nil {
		return nil, false, fmt.Errorf("invalid volume: %w", err)
	}

	symbol := strings.TrimSpace(payload.Data.Kline.Symbol)
	if symbol == "" {
		symbol = strings.TrimSpace(payload.Data.Symbol)
	}

	candle := &entity.Candle{
		Symbol:     strings.ToLower(symbol),
		Interval:   payload.Data.Kline.Interval,
		OpenTime:   time.UnixMilli(payload.Data.Kline.OpenTime).UTC(),
		CloseTime:  time.UnixMilli(payload.Data.Kline.CloseTime).UTC(),
		OpenPrice:  openPrice,
		HighPrice:  highPrice,
		LowPrice:   lowPrice,
		ClosePrice: closePrice,
		Volume:     volume,
		IsClosed:   payload.Data.Kline.IsClosed,
		ReceivedAt: time.Now(),
	}

	return candle, true, nil
}
