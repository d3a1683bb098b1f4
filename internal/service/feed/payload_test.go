package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKlineFrame = `{
	"stream": "btcusdt@kline_1m",
	"data": {
		"e": "kline",
		"E": 1700000002000,
		"s": "BTCUSDT",
		"k": {
			"t": 1700000000000,
			"T": 1700000059999,
			"s": "BTCUSDT",
			"i": "1m",
			"o": "42000.10",
			"c": "42050.25",
			"h": "42100.00",
			"l": "41900.00",
			"v": "12.345",
			"x": false
		}
	}
}`

func TestParseCandle(t *testing.T) {
	candle, ok, err := parseCandle([]byte(sampleKlineFrame))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, candle)

	assert.Equal(t, "btcusdt", candle.Symbol)
	assert.Equal(t, "1m", candle.Interval)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candle.OpenTime)
	assert.Equal(t, time.UnixMilli(1700000059999).UTC(), candle.CloseTime)
	assert.True(t, candle.OpenPrice.Equal(decimal.RequireFromString("42000.10")))
	assert.True(t, candle.ClosePrice.Equal(decimal.RequireFromString("42050.25")))
	assert.True(t, candle.HighPrice.Equal(decimal.RequireFromString("42100")))
	assert.True(t, candle.LowPrice.Equal(decimal.RequireFromString("41900")))
	assert.True(t, candle.Volume.Equal(decimal.RequireFromString("12.345")))
	assert.False(t, candle.IsClosed)
	assert.False(t, candle.ReceivedAt.IsZero())
	assert.NoError(t, candle.Validate())
}

func TestParseCandleSubscribeAckIsNotAnError(t *testing.T) {
	candle, ok, err := parseCandle([]byte(`{"result":null,"id":1}`))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, candle)
}

func TestParseCandleIgnoresOtherEvents(t *testing.T) {
	frame := `{"stream":"btcusdt@depth","data":{"e":"depthUpdate","E":1700000002000,"s":"BTCUSDT"}}`

	candle, ok, err := parseCandle([]byte(frame))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, candle)
}

func TestParseCandleMalformedJSON(t *testing.T) {
	candle, ok, err := parseCandle([]byte(`{not json`))
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, candle)
}

func TestParseCandleInvalidPrice(t *testing.T) {
	frame := `{
		"stream": "btcusdt@kline_1m",
		"data": {
			"e": "kline",
			"s": "BTCUSDT",
			"k": {
				"t": 1700000000000,
				"T": 1700000059999,
				"s": "BTCUSDT",
				"i": "1m",
				"o": "oops",
				"c": "42050.25",
				"h": "42100.00",
				"l": "41900.00",
				"v": "12.345",
				"x": false
			}
		}
	}`

	candle, ok, err := parseCandle([]byte(frame))
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, candle)
}

func TestParseCandleFallsBackToEventSymbol(t *testing.T) {
	frame := `{
		"stream": "btcusdt@kline_1m",
		"data": {
			"e": "kline",
			"s": "BTCUSDT",
			"k": {
				"t": 1700000000000,
				"T": 1700000059999,
				"s": "",
				"i": "1m",
				"o": "1",
				"c": "1",
				"h": "1",
				"l": "1",
				"v": "0",
				"x": true
			}
		}
	}`

	candle, ok, err := parseCandle([]byte(frame))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "btcusdt", candle.Symbol)
}
