package types

import (
	"sort"
	"time"
)

// Ticker is the best bid/ask of one CEX venue for one symbol.
// ReceivedAt is the local wall clock at receipt and drives staleness;
// SourceTs is whatever the venue claimed and is kept for diagnostics only.
type Ticker struct {
	Venue      string     `json:"venue"`
	Symbol     string     `json:"symbol"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	Last       float64    `json:"last"`
	ReceivedAt time.Time  `json:"received_at"`
	SourceTs   *time.Time `json:"source_ts"`
}

// Mid returns the bid/ask midpoint, or Last when the book side is missing.
func (t Ticker) Mid() float64 {
	if t.Bid > 0 && t.Ask > 0 {
		return 0.5 * (t.Bid + t.Ask)
	}
	return t.Last
}

// Crossed reports a bid above the ask with both sides present.
func (t Ticker) Crossed() bool {
	return t.Bid > 0 && t.Ask > 0 && t.Bid > t.Ask
}

// LadderEntry is one precomputed DEX swap quote of SizeUSDT for TokensOut.
type LadderEntry struct {
	SizeUSDT        float64   `json:"size_usdt"`
	TokensOut       float64   `json:"tokens_out"`
	ExecPrice       float64   `json:"exec_price"` // USDT per token
	GasEstimateUSDT *float64  `json:"gas_estimate_usdt"`
	ObservedAt      time.Time `json:"observed_at"`
	Valid           bool      `json:"valid"`
	InvalidReason   string    `json:"invalid_reason,omitempty"`
}

// GasBps is the gas estimate as basis points of the rung size, 0 when unknown.
func (e LadderEntry) GasBps() float64 {
	if e.GasEstimateUSDT == nil || e.SizeUSDT <= 0 {
		return 0
	}
	return *e.GasEstimateUSDT / e.SizeUSDT * 10000
}

// QuoteLadder is one wholesale DEX ladder snapshot for a symbol.
type QuoteLadder struct {
	Symbol     string        `json:"symbol"`
	Source     string        `json:"source"`
	Validated  bool          `json:"validated"`
	Error      string        `json:"error,omitempty"`
	Entries    []LadderEntry `json:"entries"`
	ReceivedAt time.Time     `json:"received_at"`
}

// Clone returns a deep copy; ladders are shared between goroutines only as copies.
func (l QuoteLadder) Clone() QuoteLadder {
	out := l
	out.Entries = make([]LadderEntry, len(l.Entries))
	for i, e := range l.Entries {
		if e.GasEstimateUSDT != nil {
			g := *e.GasEstimateUSDT
			e.GasEstimateUSDT = &g
		}
		out.Entries[i] = e
	}
	return out
}

// NewestObservation is the latest ObservedAt across entries, falling back to
// ReceivedAt when no entry carries a timestamp.
func (l QuoteLadder) NewestObservation() time.Time {
	var newest time.Time
	for _, e := range l.Entries {
		if e.ObservedAt.After(newest) {
			newest = e.ObservedAt
		}
	}
	if newest.IsZero() {
		return l.ReceivedAt
	}
	return newest
}

// ValidEntries returns the usable rungs sorted by size. Ties are broken by
// price and output so the order never depends on the input order.
func (l QuoteLadder) ValidEntries() []LadderEntry {
	out := make([]LadderEntry, 0, len(l.Entries))
	for _, e := range l.Entries {
		if !e.Valid || e.SizeUSDT <= 0 || e.ExecPrice <= 0 {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SizeUSDT != out[j].SizeUSDT {
			return out[i].SizeUSDT < out[j].SizeUSDT
		}
		if out[i].ExecPrice != out[j].ExecPrice {
			return out[i].ExecPrice < out[j].ExecPrice
		}
		return out[i].TokensOut < out[j].TokensOut
	})
	return out
}

// DexQuote is the DEX effective price for one notional, resolved from a ladder.
type DexQuote struct {
	Symbol          string    `json:"symbol"`
	Source          string    `json:"source"`
	SizeUSDT        float64   `json:"size_usdt"`
	EffectivePrice  float64   `json:"effective_price"`
	GasEstimateUSDT *float64  `json:"gas_estimate_usdt"`
	Validated       bool      `json:"validated"`
	Error           string    `json:"error,omitempty"`
	ObservedAt      time.Time `json:"observed_at"`
}

// QuoteAt resolves the effective price for size: the exact rung, else linear
// interpolation between the bracketing rungs, else the nearest rung.
// ok is false when the ladder has no valid entry.
func (l QuoteLadder) QuoteAt(size float64) (DexQuote, bool) {
	valid := l.ValidEntries()
	if len(valid) == 0 {
		return DexQuote{}, false
	}
	q := DexQuote{
		Symbol:    l.Symbol,
		Source:    l.Source,
		SizeUSDT:  size,
		Validated: l.Validated,
		Error:     l.Error,
	}

	pick := func(e LadderEntry) DexQuote {
		q.EffectivePrice = e.ExecPrice
		q.GasEstimateUSDT = e.GasEstimateUSDT
		q.ObservedAt = e.ObservedAt
		return q
	}

	for i, e := range valid {
		if e.SizeUSDT == size {
			return pick(e), true
		}
		if e.SizeUSDT > size {
			if i == 0 {
				return pick(e), true
			}
			lo := valid[i-1]
			f := (size - lo.SizeUSDT) / (e.SizeUSDT - lo.SizeUSDT)
			q.EffectivePrice = lo.ExecPrice + f*(e.ExecPrice-lo.ExecPrice)
			if lo.GasEstimateUSDT != nil && e.GasEstimateUSDT != nil {
				g := *lo.GasEstimateUSDT + f*(*e.GasEstimateUSDT-*lo.GasEstimateUSDT)
				q.GasEstimateUSDT = &g
			} else {
				q.GasEstimateUSDT = e.GasEstimateUSDT
			}
			q.ObservedAt = lo.ObservedAt
			if e.ObservedAt.Before(q.ObservedAt) {
				q.ObservedAt = e.ObservedAt
			}
			return q, true
		}
	}
	return pick(valid[len(valid)-1]), true
}

// Float returns a pointer to v, for nullable numeric fields.
func Float(v float64) *float64 { return &v }
