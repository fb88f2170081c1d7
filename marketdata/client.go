// Package marketdata implements the engine's market-data collaborator: it
// fetches candle history over a Binance-compatible REST endpoint and derives
// the indicator snapshot the engine consumes.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"spotbot/market"
)

// Client fetches candles from a /api/v3/klines style endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	retries int
}

func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		retries: retries,
	}
}

// Candles fetches up to limit most-recent candles for symbol/tf. Transient
// failures are retried a fixed number of times; the caller treats a final
// error as a cycle-local skip for that symbol.
func (c *Client) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	u := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, url.Values{
		"symbol":   {symbol},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	}.Encode())

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Warn().Str("symbol", symbol).Int("attempt", attempt).Err(lastErr).
				Msg("retrying candle fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		candles, err := c.fetch(ctx, u)
		if err == nil {
			return candles, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch candles %s/%s: %w", symbol, tf, lastErr)
}

// LastPrice fetches the current ticker price for symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("ticker returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", out.Price, err)
	}
	return price, nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]market.Candle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("klines returned %d: %s", resp.StatusCode, body)
	}

	// klines rows are [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("short klines row (%d fields)", len(row))
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("parse kline open time: %w", err)
		}
		var cdl market.Candle
		cdl.Time = time.UnixMilli(openMs).UTC()
		for i, dst := range []*float64{&cdl.Open, &cdl.High, &cdl.Low, &cdl.Close, &cdl.Volume} {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				return nil, fmt.Errorf("parse kline field %d: %w", i+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parse kline field %d: %w", i+1, err)
			}
			*dst = v
		}
		candles = append(candles, cdl)
	}
	return candles, nil
}
