package binance

import (
	"github.com/shopspring/decimal"
)

// Ticker is one symbol's 24h market summary as served by /api/v3/ticker/24hr.
type Ticker struct {
	Symbol             string
	Name               string
	Price              decimal.Decimal
	PriceChange        float64
	PriceChangePercent float64
	High24h            float64
	Low24h             float64
	Volume             float64
	QuoteVolume        float64
}

type rawTicker struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

type rawPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}
