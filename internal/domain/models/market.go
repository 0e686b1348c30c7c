package models

import "time"

// Tick is a single trade print from a market data feed.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp int64 // unix seconds, feed time
	Received  time.Time
}

// Bar represents an OHLCV record at a fixed interval.
type Bar struct {
	Start  time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
