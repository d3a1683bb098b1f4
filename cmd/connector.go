/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/market-feed-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// connectorCmd represents the connector command
var connectorCmd = &cobra.Command{
	Use:   "connector",
	Short: "Run the market data feed connector",
	Long: `Connector subscribes to one symbol/interval kline stream, keeps the
connection alive across network failures, and serves the latest candle to
all configured outputs.

This service acts as a bridge between the exchange and local consumers:
- Subscribes to the exchange websocket stream
- Normalizes and validates every kline update
- Mirrors the latest candle to a file for polling consumers
- Serves OHLCV and health data over HTTP`,
	Run: bootstrap.StartConnector,
}

func init() {
	rootCmd.AddCommand(connectorCmd)
}
