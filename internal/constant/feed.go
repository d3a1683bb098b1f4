package constant

const (
	CandleStreamName       = "candle"
	CandleStreamSubjectAll = "candle.*.*"

	DevelopmentEnvironment = "development"
	ProductionEnvironment  = "production"

	OutputFormatJSON = "json"
	OutputFormatCSV  = "csv"

	MarketTypeSpot    = "spot"
	MarketTypeFutures = "futures"
)

// SupportedIntervals is the kline bucket whitelist accepted by the feed.
var SupportedIntervals = []string{
	"1s", "1m", "3m", "5m", "15m", "30m", "1h",
	"2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M",
}

func GetCandleStreamSubject(symbol, interval string) string {
	return "candle." + symbol + "." + interval
}
