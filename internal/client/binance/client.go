// Package binance is the price oracle: spot ticker REST endpoints plus an
// optional miniTicker websocket stream kept in front of them.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"papertrade/internal/cache"
)

const DefaultBaseURL = "https://api.binance.com"

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error (%d): %s", e.Status, e.Body)
}

type Client struct {
	host       string
	httpClient *http.Client

	// Both optional. Stream answers first when it has a fresh price, the redis
	// cache second, REST last.
	stream *Stream
	prices *cache.PriceCache
}

func NewClient(httpClient *http.Client, host string) *Client {
	if host == "" {
		host = DefaultBaseURL
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *Client) WithStream(s *Stream) *Client {
	c.stream = s
	return c
}

func (c *Client) WithPriceCache(p *cache.PriceCache) *Client {
	c.prices = p
	return c
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// GetTopTickers returns 24h summaries for the given symbols, most-traded first.
func (c *Client) GetTopTickers(ctx context.Context, symbols []string) ([]Ticker, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("symbols", symbolsParam(symbols))
	body, err := c.doRequest(ctx, "/api/v3/ticker/24hr", query)
	if err != nil {
		return nil, err
	}
	var raw []rawTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode tickers: %w", err)
	}
	out := make([]Ticker, 0, len(raw))
	for _, t := range raw {
		price, err := decimal.NewFromString(t.LastPrice)
		if err != nil {
			continue
		}
		out = append(out, Ticker{
			Symbol:             t.Symbol,
			Name:               strings.TrimSuffix(t.Symbol, "USDT"),
			Price:              price,
			PriceChange:        parseFloat(t.PriceChange),
			PriceChangePercent: parseFloat(t.PriceChangePercent),
			High24h:            parseFloat(t.HighPrice),
			Low24h:             parseFloat(t.LowPrice),
			Volume:             parseFloat(t.Volume),
			QuoteVolume:        parseFloat(t.QuoteVolume),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuoteVolume > out[j].QuoteVolume
	})
	return out, nil
}

// GetPrice returns the current price for one symbol. A fresh streamed price or
// a cached one short-circuits the REST call.
func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if c.stream != nil {
		if price, ok := c.stream.Price(symbol); ok {
			return price, nil
		}
	}
	if c.prices != nil {
		if price, ok := c.prices.Get(ctx, symbol); ok {
			return price, nil
		}
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	body, err := c.doRequest(ctx, "/api/v3/ticker/price", query)
	if err != nil {
		return decimal.Decimal{}, err
	}
	var raw rawPrice
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to decode price: %w", err)
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad price %q for %s: %w", raw.Price, symbol, err)
	}
	if c.prices != nil {
		c.prices.Set(ctx, symbol, price)
	}
	return price, nil
}

// GetPrices returns current prices keyed by symbol. Symbols Binance cannot
// serve are omitted from the map rather than failing the whole lookup.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	if len(symbols) == 0 {
		return out, nil
	}

	query := url.Values{}
	query.Set("symbols", symbolsParam(symbols))
	body, err := c.doRequest(ctx, "/api/v3/ticker/price", query)
	if err == nil {
		var raw []rawPrice
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode prices: %w", err)
		}
		for _, item := range raw {
			price, perr := decimal.NewFromString(item.Price)
			if perr != nil {
				continue
			}
			out[item.Symbol] = price
			if c.prices != nil {
				c.prices.Set(ctx, item.Symbol, price)
			}
		}
		return out, nil
	}

	// The batch endpoint rejects the entire request when any one symbol is
	// unknown; fall back to per-symbol lookups and skip the bad ones.
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, err
	}
	for _, symbol := range symbols {
		price, perr := c.GetPrice(ctx, symbol)
		if perr != nil {
			continue
		}
		out[symbol] = price
	}
	return out, nil
}

func symbolsParam(symbols []string) string {
	quoted := make([]string, 0, len(symbols))
	for _, s := range symbols {
		quoted = append(quoted, strconv.Quote(s))
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
