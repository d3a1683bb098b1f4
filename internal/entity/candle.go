package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one normalized kline snapshot for the subscribed symbol/interval.
// The feed resends the same bucket (same OpenTime) until IsClosed is true;
// each update is an authoritative full snapshot, never a delta.
type Candle struct {
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	OpenTime   time.Time       `json:"open_time"`
	CloseTime  time.Time       `json:"close_time"`
	OpenPrice  decimal.Decimal `json:"open"`
	HighPrice  decimal.Decimal `json:"high"`
	LowPrice   decimal.Decimal `json:"low"`
	ClosePrice decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	IsClosed   bool            `json:"is_closed"`
	ReceivedAt time.Time       `json:"received_at"`
}

func (c Candle) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("candle symbol is empty")
	}

	if c.Interval == "" {
		return fmt.Errorf("candle interval is empty")
	}

	if !c.OpenTime.Before(c.CloseTime) {
		return fmt.Errorf("candle open time %s is not before close time %s", c.OpenTime, c.CloseTime)
	}

	if c.LowPrice.GreaterThan(c.HighPrice) {
		return fmt.Errorf("candle low %s is greater than high %s", c.LowPrice, c.HighPrice)
	}

	if c.OpenPrice.LessThan(c.LowPrice) || c.OpenPrice.GreaterThan(c.HighPrice) {
		return fmt.Errorf("candle open %s is outside low/high range", c.OpenPrice)
	}

	if c.ClosePrice.LessThan(c.LowPrice) || c.ClosePrice.GreaterThan(c.HighPrice) {
		return fmt.Errorf("candle close %s is outside low/high range", c.ClosePrice)
	}

	if c.Volume.IsNegative() {
		return fmt.Errorf("candle volume %s is negative", c.Volume)
	}

	return nil
}

type CandleEvent struct {
	RetryCount int    `json:"retry"`
	Data       Candle `json:"data"`
}
