package binance

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/stream"

// Stream maintains a live last-price map from Binance's combined miniTicker
// websocket feed. Prices older than maxAge are treated as absent so a stalled
// stream degrades to REST lookups instead of serving stale data.
type Stream struct {
	url    string
	maxAge time.Duration
	logger *zap.Logger

	mu     sync.RWMutex
	prices map[string]streamPrice
}

type streamPrice struct {
	price decimal.Decimal
	at    time.Time
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type miniTickerEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

func NewStream(url string, maxAge time.Duration, logger *zap.Logger) *Stream {
	if strings.TrimSpace(url) == "" {
		url = DefaultStreamURL
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &Stream{
		url:    url,
		maxAge: maxAge,
		logger: logger,
		prices: map[string]streamPrice{},
	}
}

// Price returns the streamed price for symbol if one arrived within maxAge.
func (s *Stream) Price(symbol string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Decimal{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[strings.ToUpper(symbol)]
	if !ok || time.Since(p.at) > s.maxAge {
		return decimal.Decimal{}, false
	}
	return p.price, true
}

// Run connects, subscribes to miniTicker streams for the given symbols, and
// reads until ctx is cancelled, reconnecting with backoff on any error.
func (s *Stream) Run(ctx context.Context, symbols []string) {
	if s == nil || len(symbols) == 0 {
		return
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.runOnce(ctx, symbols)
		if ctx.Err() != nil {
			return
		}
		if s.logger != nil {
			s.logger.Warn("price stream disconnected",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, symbols []string) error {
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	params := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		params = append(params, strings.ToLower(sym)+"@miniTicker")
	}
	payload, err := json.Marshal(subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: 1})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("price stream connected", zap.Int("symbols", len(symbols)))
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var frame combinedFrame
		if err := json.Unmarshal(data, &frame); err != nil || len(frame.Data) == 0 {
			continue
		}
		var ev miniTickerEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			continue
		}
		if ev.EventType != "24hrMiniTicker" || ev.Symbol == "" {
			continue
		}
		price, err := decimal.NewFromString(ev.Close)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.prices[ev.Symbol] = streamPrice{price: price, at: time.Now()}
		s.mu.Unlock()
	}
}
