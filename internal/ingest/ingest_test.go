package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	sec := NormalizeTimestamp(decimal.NewFromInt(1_700_000_000))
	ms := NormalizeTimestamp(decimal.NewFromInt(1_700_000_000_000))
	assert.True(t, sec.Equal(ms), "seconds and millis of the same instant must agree")
	assert.Equal(t, int64(1_700_000_000), sec.Unix())

	frac := NormalizeTimestamp(decimal.RequireFromString("1700000000.25"))
	assert.Equal(t, int64(1_700_000_000_250), frac.UnixMilli())

	assert.True(t, NormalizeTimestamp(decimal.Zero).IsZero())
}

func TestParseTicker(t *testing.T) {
	now := time.Unix(1_700_000_100, 0)
	tk, err := ParseTicker([]byte(`{"symbol":"csr-usdt","venue":"LBank","bid":"0.998","ask":1.0,"last":0.999,"ts":1700000000000}`), now)
	require.NoError(t, err)

	assert.Equal(t, "CSR/USDT", tk.Symbol)
	assert.Equal(t, "lbank", tk.Venue)
	assert.InDelta(t, 0.999, tk.Mid(), 1e-12)
	assert.Equal(t, now, tk.ReceivedAt, "staleness uses local receipt time")
	require.NotNil(t, tk.SourceTs)
	assert.Equal(t, int64(1_700_000_000), tk.SourceTs.Unix())
}

func TestParseTicker_Rejects(t *testing.T) {
	now := time.Now()
	cases := map[string]string{
		"crossed":   `{"symbol":"A/USDT","venue":"x","bid":1.1,"ask":1.0}`,
		"no venue":  `{"symbol":"A/USDT","bid":1,"ask":1}`,
		"no price":  `{"symbol":"A/USDT","venue":"x"}`,
		"malformed": `{"symbol":`,
		"bad num":   `{"symbol":"A/USDT","venue":"x","bid":"abc"}`,
	}
	for name, raw := range cases {
		_, err := ParseTicker([]byte(raw), now)
		assert.True(t, errors.Is(err, types.ErrInvalidPayload), name)
	}
}

func TestParseLadder(t *testing.T) {
	now := time.Unix(1_700_000_100, 0)
	raw := `{
	  "symbol": "CSR/USDT",
	  "source": "uniswap_ui_scraper",
	  "validated": true,
	  "entries": [
	    {"sizeUsdt": 100, "tokensOut": "98", "gasEstimateUsdt": 0.4, "ts": 1700000090, "valid": true},
	    {"sizeUsdt": "500", "price_usdt_per_token": 1.03, "ts": 1700000090000, "valid": true},
	    {"sizeUsdt": 1000, "tokensOut": 0, "ts": 1700000090, "valid": true},
	    {"sizeUsdt": 2000, "tokensOut": 1900, "ts": 1700000090, "valid": false, "reason": "route_failed"},
	    {"sizeUsdt": 50, "tokensOut": 49, "valid": true}
	  ]
	}`
	l, err := ParseLadder([]byte(raw), now)
	require.NoError(t, err)
	require.Len(t, l.Entries, 5)

	assert.Equal(t, "uniswap_ui_scraper", l.Source)
	assert.True(t, l.Validated)

	e0 := l.Entries[0]
	assert.True(t, e0.Valid)
	assert.InDelta(t, 100.0/98.0, e0.ExecPrice, 1e-12)
	require.NotNil(t, e0.GasEstimateUSDT)
	assert.Equal(t, 0.4, *e0.GasEstimateUSDT)
	assert.Equal(t, int64(1_700_000_090), e0.ObservedAt.Unix())

	e1 := l.Entries[1]
	assert.True(t, e1.Valid)
	assert.Equal(t, 1.03, e1.ExecPrice)
	assert.InDelta(t, 500/1.03, e1.TokensOut, 1e-9)
	assert.True(t, e1.ObservedAt.Equal(e0.ObservedAt))

	assert.False(t, l.Entries[2].Valid)
	assert.Equal(t, "non_positive_price", l.Entries[2].InvalidReason)
	assert.Equal(t, "route_failed", l.Entries[3].InvalidReason)
	assert.Equal(t, "missing_timestamp", l.Entries[4].InvalidReason)
}

func TestParseLadder_NeedsSymbol(t *testing.T) {
	_, err := ParseLadder([]byte(`{"entries":[]}`), time.Now())
	assert.ErrorIs(t, err, types.ErrInvalidPayload)
}

func TestParseLadderEntries(t *testing.T) {
	l, err := ParseLadderEntries([]byte(`[{"sizeUsdt":10,"tokensOut":10,"ts":1700000000,"valid":true}]`),
		"csr25/usdt", "uniswap_v3_quoter", true, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "CSR25/USDT", l.Symbol)
	assert.Equal(t, 1.0, l.Entries[0].ExecPrice)
}
