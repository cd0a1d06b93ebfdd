// Package mexc reads MEXC spot best bid/ask over REST and the public websocket.
package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

type Client struct {
	cfg  config.MEXCCfg
	log  *zap.Logger
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg config.MEXCCfg, log *zap.Logger) *Client {
	return &Client{cfg: cfg, log: log, http: &http.Client{Timeout: 6 * time.Second}, now: time.Now}
}

// Venue is the name tickers from this client are tagged with.
func (c *Client) Venue() string { return c.cfg.Venue }

type bookTickerResp struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// BookTicker fetches the best bid/ask of symbol ("CSR/USDT"). venueSymbol
// overrides the exchange-side name when it is not simply the pair joined.
func (c *Client) BookTicker(ctx context.Context, symbol, venueSymbol string) (types.Ticker, error) {
	if venueSymbol == "" {
		venueSymbol = VenueSymbol(symbol)
	}
	endpoint := strings.TrimRight(c.cfg.RestURL, "/") + "/api/v3/ticker/bookTicker?symbol=" + url.QueryEscape(venueSymbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.Ticker{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return types.Ticker{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.Ticker{}, fmt.Errorf("bookTicker %d: %s", resp.StatusCode, string(b))
	}
	var br bookTickerResp
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return types.Ticker{}, fmt.Errorf("%w: bookTicker: %v", types.ErrInvalidPayload, err)
	}
	bid, err := parsePrice(br.BidPrice)
	if err != nil {
		return types.Ticker{}, err
	}
	ask, err := parsePrice(br.AskPrice)
	if err != nil {
		return types.Ticker{}, err
	}
	return types.Ticker{
		Venue:      c.cfg.Venue,
		Symbol:     symbol,
		Bid:        bid,
		Ask:        ask,
		ReceivedAt: c.now(),
	}, nil
}

// VenueSymbol maps "CSR/USDT" to MEXC's "CSRUSDT".
func VenueSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func parsePrice(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q", types.ErrInvalidPayload, s)
	}
	return v, nil
}
