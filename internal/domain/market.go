package domain

import "time"

// PriceSample is a single price observation in SOL per token.
type PriceSample struct {
	Price     float64
	Timestamp time.Time
}

// Candle is an OHLCV bar.
type Candle struct {
	Timestamp time.Time // bar open time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// HolderShare is one token account's share of supply.
type HolderShare struct {
	Address string
	Amount  float64 // UI amount
	Percent float64 // of total supply
}
