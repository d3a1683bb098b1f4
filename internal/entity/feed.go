package entity

import "time"

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateSubscribing  ConnectionState = "subscribing"
	StateStreaming    ConnectionState = "streaming"
)

// FeedSnapshot is a consistent read of the store: the latest candle (nil
// until the first publish), the connection state and the publish version at
// the moment of the read.
type FeedSnapshot struct {
	Candle       *Candle
	State        ConnectionState
	Version      uint64
	LastUpdateAt time.Time
}
