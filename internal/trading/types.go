// Package trading is the portfolio-ledger engine: it turns externally produced
// trade decisions into atomic balance/position mutations, detects liquidation,
// and runs the whole population on a bounded worker pool.
package trading

import (
	"context"

	"github.com/shopspring/decimal"

	"papertrade/internal/client/binance"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Decision is one trade instruction from a decision source. Percentage is of
// available cash for a BUY and of the held position for a SELL.
type Decision struct {
	Action     string  `json:"action"`
	Symbol     string  `json:"symbol"`
	Percentage float64 `json:"percentage"`
	Leverage   int     `json:"leverage,omitempty"`
	Reason     string  `json:"reason"`
	Monologue  string  `json:"monologue,omitempty"`
}

// Persona is the personalization context forwarded to the decision source.
type Persona struct {
	Shades       []string
	Memories     []string
	Bio          string
	StylePersona string
}

// Token is a bearer token pair from the auth collaborator.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// PriceOracle serves live market prices. GetPrices may omit symbols it cannot
// serve rather than failing.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
	GetTopTickers(ctx context.Context, symbols []string) ([]binance.Ticker, error)
}

// DecisionClient is everything the orchestrator needs from the external AI
// provider: token refresh, personalization context, and trade decisions.
type DecisionClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (Token, error)
	GetUserShades(ctx context.Context, accessToken string) ([]string, error)
	GetUserSoftMemory(ctx context.Context, accessToken string) ([]string, error)
	GetDecisions(ctx context.Context, accessToken, marketSummary string, persona Persona) ([]Decision, error)
}

// Account statuses reported per batch entry.
const (
	StatusSuccess    = "success"
	StatusNoTrade    = "no_trade"
	StatusError      = "error"
	StatusLiquidated = "liquidated"
)

type AccountResult struct {
	UserID         string     `json:"user_id"`
	UserName       string     `json:"user_name"`
	Status         string     `json:"status"`
	Decisions      []Decision `json:"decisions,omitempty"`
	ExecutedTrades int        `json:"executed_trades"`
	Error          string     `json:"error,omitempty"`
}

type BatchReport struct {
	Total   int             `json:"total"`
	Results []AccountResult `json:"results"`
}
