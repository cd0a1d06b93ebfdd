// Package httpladder pulls precomputed quote ladders from an HTTP quote
// service, such as the Uniswap UI scraper.
package httpladder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/ingest"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

const maxBody = 1 << 20

type Provider struct {
	name      string
	url       string
	healthURL string
	http      *http.Client
	now       func() time.Time
}

func New(pc config.ProviderCfg) (*Provider, error) {
	if pc.URL == "" {
		return nil, fmt.Errorf("provider %s: url is required", pc.Name)
	}
	timeout := time.Duration(pc.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &Provider{
		name:      pc.Name,
		url:       pc.URL,
		healthURL: pc.HealthURL,
		http:      &http.Client{Timeout: timeout},
		now:       time.Now,
	}, nil
}

func (p *Provider) Name() string { return p.name }

// FetchLadder accepts either a ladder envelope or a bare entry array. A bare
// array is attributed to this provider; an envelope keeps its own source.
func (p *Provider) FetchLadder(ctx context.Context, symbol string) (types.QuoteLadder, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return types.QuoteLadder{}, fmt.Errorf("bad url: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()

	body, err := p.get(ctx, u.String())
	if err != nil {
		return types.QuoteLadder{}, err
	}
	now := p.now()

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return ingest.ParseLadderEntries(trimmed, symbol, p.name, true, now)
	}
	l, err := ingest.ParseLadder(trimmed, now)
	if err != nil {
		return types.QuoteLadder{}, err
	}
	if l.Source == "" {
		l.Source = p.name
	}
	if l.Symbol != ingest.NormalizeSymbol(symbol) {
		return types.QuoteLadder{}, fmt.Errorf("%w: asked for %s, got %s", types.ErrInvalidPayload, symbol, l.Symbol)
	}
	return l, nil
}

// Healthy hits the health URL when one is configured.
func (p *Provider) Healthy(ctx context.Context) error {
	if p.healthURL == "" {
		return nil
	}
	_, err := p.get(ctx, p.healthURL)
	return err
}

func (p *Provider) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %d: %s", p.name, resp.StatusCode, string(body))
	}
	return body, nil
}
