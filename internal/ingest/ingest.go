// Package ingest turns raw feed payloads into the engine's static types.
// Nothing loosely typed gets past this package: a payload either parses into
// a types.Ticker / types.QuoteLadder or is rejected with ErrInvalidPayload.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
	"github.com/shopspring/decimal"
)

// secondsCutoff separates unix seconds from unix milliseconds. Upstream DEX
// sources send either without a unit tag; anything below ~2033-05-18 in
// seconds is read as seconds, everything else as milliseconds.
const secondsCutoff = 2_000_000_000

// NormalizeTimestamp converts an untagged unix timestamp to time.Time.
func NormalizeTimestamp(v decimal.Decimal) time.Time {
	if v.Sign() <= 0 {
		return time.Time{}
	}
	if v.LessThan(decimal.NewFromInt(secondsCutoff)) {
		ms := v.Mul(decimal.NewFromInt(1000)).IntPart()
		return time.UnixMilli(ms)
	}
	return time.UnixMilli(v.IntPart())
}

type rawTicker struct {
	Symbol   string              `json:"symbol"`
	Venue    string              `json:"venue"`
	Bid      decimal.NullDecimal `json:"bid"`
	Ask      decimal.NullDecimal `json:"ask"`
	Last     decimal.NullDecimal `json:"last"`
	Ts       decimal.NullDecimal `json:"ts"`
	SourceTs decimal.NullDecimal `json:"sourceTs"`
}

// ParseTicker decodes one ticker. receivedAt is the local receipt time and is
// what staleness is measured against; the venue's own timestamp is kept only
// as SourceTs.
func ParseTicker(b []byte, receivedAt time.Time) (types.Ticker, error) {
	var r rawTicker
	if err := json.Unmarshal(b, &r); err != nil {
		return types.Ticker{}, fmt.Errorf("%w: ticker: %v", types.ErrInvalidPayload, err)
	}
	t := types.Ticker{
		Venue:      strings.ToLower(strings.TrimSpace(r.Venue)),
		Symbol:     NormalizeSymbol(r.Symbol),
		Bid:        floatOf(r.Bid),
		Ask:        floatOf(r.Ask),
		Last:       floatOf(r.Last),
		ReceivedAt: receivedAt,
	}
	switch {
	case r.SourceTs.Valid:
		ts := NormalizeTimestamp(r.SourceTs.Decimal)
		t.SourceTs = &ts
	case r.Ts.Valid:
		ts := NormalizeTimestamp(r.Ts.Decimal)
		t.SourceTs = &ts
	}
	if err := CheckTicker(t); err != nil {
		return types.Ticker{}, err
	}
	return t, nil
}

// CheckTicker enforces the ticker invariants shared by every feed.
func CheckTicker(t types.Ticker) error {
	if t.Symbol == "" || t.Venue == "" {
		return fmt.Errorf("%w: ticker needs symbol and venue", types.ErrInvalidPayload)
	}
	if t.Bid < 0 || t.Ask < 0 || t.Last < 0 {
		return fmt.Errorf("%w: negative price for %s@%s", types.ErrInvalidPayload, t.Symbol, t.Venue)
	}
	if t.Crossed() {
		return fmt.Errorf("%w: crossed book bid %.8f > ask %.8f for %s@%s",
			types.ErrInvalidPayload, t.Bid, t.Ask, t.Symbol, t.Venue)
	}
	if t.Mid() <= 0 {
		return fmt.Errorf("%w: no usable price for %s@%s", types.ErrInvalidPayload, t.Symbol, t.Venue)
	}
	return nil
}

type rawEntry struct {
	SizeUSDT    decimal.NullDecimal `json:"sizeUsdt"`
	TokensOut   decimal.NullDecimal `json:"tokensOut"`
	Price       decimal.NullDecimal `json:"price_usdt_per_token"`
	GasEstimate decimal.NullDecimal `json:"gasEstimateUsdt"`
	Ts          decimal.NullDecimal `json:"ts"`
	Valid       *bool               `json:"valid"`
	Reason      *string             `json:"reason"`
}

type rawLadder struct {
	Symbol    string     `json:"symbol"`
	Source    string     `json:"source"`
	Validated bool       `json:"validated"`
	Error     string     `json:"error"`
	Entries   []rawEntry `json:"entries"`
}

// ParseLadder decodes a ladder envelope
// {symbol, source, validated, error, entries:[...]}.
func ParseLadder(b []byte, receivedAt time.Time) (types.QuoteLadder, error) {
	var r rawLadder
	if err := json.Unmarshal(b, &r); err != nil {
		return types.QuoteLadder{}, fmt.Errorf("%w: ladder: %v", types.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(r.Symbol) == "" {
		return types.QuoteLadder{}, fmt.Errorf("%w: ladder without symbol", types.ErrInvalidPayload)
	}
	l := types.QuoteLadder{
		Symbol:     NormalizeSymbol(r.Symbol),
		Source:     strings.TrimSpace(r.Source),
		Validated:  r.Validated,
		Error:      r.Error,
		ReceivedAt: receivedAt,
		Entries:    make([]types.LadderEntry, 0, len(r.Entries)),
	}
	for _, re := range r.Entries {
		l.Entries = append(l.Entries, entryOf(re))
	}
	return l, nil
}

// ParseLadderEntries decodes a bare entry array for a known symbol and source.
func ParseLadderEntries(b []byte, symbol, source string, validated bool, receivedAt time.Time) (types.QuoteLadder, error) {
	var raw []rawEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return types.QuoteLadder{}, fmt.Errorf("%w: ladder entries: %v", types.ErrInvalidPayload, err)
	}
	l := types.QuoteLadder{
		Symbol:     NormalizeSymbol(symbol),
		Source:     source,
		Validated:  validated,
		ReceivedAt: receivedAt,
		Entries:    make([]types.LadderEntry, 0, len(raw)),
	}
	for _, re := range raw {
		l.Entries = append(l.Entries, entryOf(re))
	}
	return l, nil
}

func entryOf(r rawEntry) types.LadderEntry {
	e := types.LadderEntry{
		SizeUSDT:   floatOf(r.SizeUSDT),
		TokensOut:  floatOf(r.TokensOut),
		ObservedAt: NormalizeTimestamp(r.Ts.Decimal),
		Valid:      r.Valid != nil && *r.Valid,
	}
	if r.Reason != nil {
		e.InvalidReason = *r.Reason
	}
	if r.GasEstimate.Valid {
		g := r.GasEstimate.Decimal.InexactFloat64()
		e.GasEstimateUSDT = &g
	}

	// execution price is defined as size / tokens out; the quoted price is
	// only used to recover a missing output amount
	price := floatOf(r.Price)
	switch {
	case e.SizeUSDT > 0 && e.TokensOut > 0:
		e.ExecPrice = r.SizeUSDT.Decimal.Div(r.TokensOut.Decimal).InexactFloat64()
	case e.SizeUSDT > 0 && price > 0:
		e.ExecPrice = price
		e.TokensOut = r.SizeUSDT.Decimal.Div(r.Price.Decimal).InexactFloat64()
	}

	if !e.Valid {
		if e.InvalidReason == "" {
			e.InvalidReason = "unvalidated"
		}
		return e
	}
	switch {
	case e.SizeUSDT <= 0:
		e.Valid, e.InvalidReason = false, "non_positive_size"
	case e.ExecPrice <= 0:
		e.Valid, e.InvalidReason = false, "non_positive_price"
	case e.ObservedAt.IsZero():
		e.Valid, e.InvalidReason = false, "missing_timestamp"
	}
	return e
}

// NormalizeSymbol upper-cases and canonicalizes separators: "csr-usdt" → "CSR/USDT".
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "/", "_", "/").Replace(s)
	return s
}

func floatOf(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}
