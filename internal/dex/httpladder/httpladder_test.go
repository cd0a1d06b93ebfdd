package httpladder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

func TestFetchLadder_Envelope(t *testing.T) {
	var gotSymbol string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(`{"symbol":"csr-usdt","source":"uniswap_v3_quoter","validated":true,
			"entries":[{"sizeUsdt":100,"tokensOut":200,"ts":1700000000,"valid":true}]}`))
	}))
	defer srv.Close()

	p, err := New(config.ProviderCfg{Name: "uniswap_ui_scraper", URL: srv.URL + "/quotes?chain=1"})
	require.NoError(t, err)
	now := time.Unix(1_700_000_005, 0)
	p.now = func() time.Time { return now }

	l, err := p.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)
	assert.Equal(t, "CSR/USDT", gotSymbol)
	assert.Equal(t, "CSR/USDT", l.Symbol)
	assert.Equal(t, "uniswap_v3_quoter", l.Source)
	assert.True(t, l.Validated)
	assert.Equal(t, now, l.ReceivedAt)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, 0.5, l.Entries[0].ExecPrice)
}

func TestFetchLadder_BareArrayUsesProviderName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(` [{"sizeUsdt":50,"price_usdt_per_token":0.25,"ts":1700000000000,"valid":true}]`))
	}))
	defer srv.Close()

	p, err := New(config.ProviderCfg{Name: "uniswap_ui_scraper", URL: srv.URL})
	require.NoError(t, err)

	l, err := p.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)
	assert.Equal(t, "uniswap_ui_scraper", l.Source)
	assert.True(t, l.Validated)
	require.Len(t, l.Entries, 1)
	assert.Equal(t, 200.0, l.Entries[0].TokensOut)
}

func TestFetchLadder_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BAD/USDT":
			http.Error(w, "upstream timeout", http.StatusBadGateway)
		case "WRONG/USDT":
			_, _ = w.Write([]byte(`{"symbol":"OTHER/USDT","entries":[]}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	p, err := New(config.ProviderCfg{Name: "scraper", URL: srv.URL, HealthURL: srv.URL + "/health?symbol=BAD/USDT"})
	require.NoError(t, err)

	_, err = p.FetchLadder(context.Background(), "BAD/USDT")
	assert.ErrorContains(t, err, "502")

	_, err = p.FetchLadder(context.Background(), "WRONG/USDT")
	assert.ErrorIs(t, err, types.ErrInvalidPayload)

	_, err = p.FetchLadder(context.Background(), "CSR/USDT")
	assert.ErrorIs(t, err, types.ErrInvalidPayload)

	assert.Error(t, p.Healthy(context.Background()))

	_, err = New(config.ProviderCfg{Name: "nourl"})
	assert.Error(t, err)
}

func TestHealthy_NoURL(t *testing.T) {
	p, err := New(config.ProviderCfg{Name: "scraper", URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.NoError(t, p.Healthy(context.Background()))
}
