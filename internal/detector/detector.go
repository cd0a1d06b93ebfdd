// Package detector is the cost-adjusted edge calculator. Evaluate is a pure
// function of one CEX ticker and one DEX effective price; the guards in
// CheckInputs decide whether the inputs may be evaluated at all.
package detector

import (
	"fmt"
	"math"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/marketdata"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

const bps = 10_000

// CheckInputs runs the pre-evaluation guards in order and returns a
// *types.SkipError for the first one that fails.
func CheckInputs(cfg *config.Config, ms marketdata.MarketState) error {
	if len(ms.Tickers) == 0 {
		return types.NewSkip(types.SkipIncompleteData, fmt.Errorf("%w: no cex ticker for %s", types.ErrIncompleteData, ms.Symbol))
	}
	if ms.Ladder == nil {
		return types.NewSkip(types.SkipIncompleteData, fmt.Errorf("%w: no dex ladder for %s", types.ErrIncompleteData, ms.Symbol))
	}
	if ms.Stale || ms.Reference == nil {
		return types.NewSkip(types.SkipStaleData, fmt.Errorf("%w: %s", types.ErrStaleData, ms.Symbol))
	}

	l := ms.Ladder
	if l.Error != "" {
		return types.NewSkip(types.SkipQuoteError, fmt.Errorf("%w: %s", types.ErrInvalidQuote, l.Error))
	}
	if !l.Validated {
		return types.NewSkip(types.SkipInvalidQuote, fmt.Errorf("%w: ladder from %q not validated", types.ErrInvalidQuote, l.Source))
	}
	if !cfg.IsTrustedSource(l.Source) {
		return types.NewSkip(types.SkipUntrustedSource, fmt.Errorf("%w: source %q not trusted", types.ErrInvalidQuote, l.Source))
	}
	return nil
}

// ResolveQuote picks the DEX effective price for the configured quote size.
func ResolveQuote(cfg *config.Config, ms marketdata.MarketState) (types.DexQuote, error) {
	if ms.Ladder == nil {
		return types.DexQuote{}, types.NewSkip(types.SkipIncompleteData, types.ErrIncompleteData)
	}
	q, ok := ms.Ladder.QuoteAt(cfg.Engine.QuoteSizeUSDT)
	if !ok {
		return types.DexQuote{}, types.NewSkip(types.SkipNoQuoteAtSize,
			fmt.Errorf("%w: no valid entry near %.2f USDT", types.ErrNoLiquidityRoute, cfg.Engine.QuoteSizeUSDT))
	}
	return q, nil
}

// Costs expresses every modeled cost term in bps of the quote size. A live
// gas estimate on the quote replaces the configured default.
func Costs(e config.EngineCfg, q types.DexQuote) types.CostBreakdown {
	gas := e.GasCostUSDT
	if q.GasEstimateUSDT != nil && *q.GasEstimateUSDT >= 0 {
		gas = *q.GasEstimateUSDT
	}
	size := e.QuoteSizeUSDT
	c := types.CostBreakdown{
		CEXFeeBps:   e.CEXTradingFeeBps,
		DEXLpFeeBps: e.DEXLPFeeBps,
		SlippageBps: e.SlippageBufferBps,
	}
	if size > 0 {
		c.GasCostBps = gas / size * bps
		c.NetworkFeeBps = e.NetworkFeeUSDT / size * bps
	}
	return c
}

// Evaluate computes the directional spread, subtracts the modeled cost and
// returns a fully populated Decision. It never panics.
func Evaluate(e config.EngineCfg, t types.Ticker, q types.DexQuote) (d types.Decision) {
	d = types.Decision{
		Symbol:    t.Symbol,
		CEXBid:    t.Bid,
		CEXAsk:    t.Ask,
		DEXPrice:  q.EffectivePrice,
		Direction: types.DirectionNone,
	}
	defer func() {
		if r := recover(); r != nil {
			d = types.Decision{
				Symbol:    t.Symbol,
				CEXBid:    t.Bid,
				CEXAsk:    t.Ask,
				DEXPrice:  q.EffectivePrice,
				Direction: types.DirectionNone,
				Reason:    fmt.Sprintf("%s: %v", types.SkipComputationError, r),
			}
		}
	}()

	d.CostBreakdown = Costs(e, q)
	d.EstimatedCostBps = d.CostBreakdown.Total()

	if t.Ask <= 0 || t.Bid <= 0 || q.EffectivePrice <= 0 {
		d.Reason = fmt.Sprintf("non_positive_price: bid=%.8f ask=%.8f dex=%.8f", t.Bid, t.Ask, q.EffectivePrice)
		d.EdgeAfterCostsBps = -d.EstimatedCostBps
		return d
	}

	buyCEX := (q.EffectivePrice - t.Ask) / t.Ask * bps
	buyDEX := (t.Bid - q.EffectivePrice) / q.EffectivePrice * bps

	switch {
	case buyCEX > 0 && buyCEX >= buyDEX:
		d.Direction, d.RawSpreadBps = types.BuyCEXSellDEX, buyCEX
	case buyDEX > 0:
		d.Direction, d.RawSpreadBps = types.BuyDEXSellCEX, buyDEX
	default:
		d.RawSpreadBps = math.Max(buyCEX, buyDEX)
	}

	d.EdgeAfterCostsBps = d.RawSpreadBps - d.EstimatedCostBps
	d.WouldTrade = d.Direction != types.DirectionNone && d.EdgeAfterCostsBps >= e.MinEdgeBps
	if d.WouldTrade {
		d.SuggestedSizeUSDT = math.Min(e.QuoteSizeUSDT, e.MaxTradeSizeUSDT)
	}

	switch {
	case d.Direction == types.DirectionNone:
		d.Reason = fmt.Sprintf("no positive spread: buy_cex_sell_dex=%.2fbps buy_dex_sell_cex=%.2fbps", buyCEX, buyDEX)
	case d.WouldTrade:
		d.Reason = fmt.Sprintf("%s: raw %.2fbps - cost %.2fbps = edge %.2fbps >= min %.2fbps",
			d.Direction, d.RawSpreadBps, d.EstimatedCostBps, d.EdgeAfterCostsBps, e.MinEdgeBps)
	default:
		d.Reason = fmt.Sprintf("%s: raw %.2fbps - cost %.2fbps = edge %.2fbps < min %.2fbps",
			d.Direction, d.RawSpreadBps, d.EstimatedCostBps, d.EdgeAfterCostsBps, e.MinEdgeBps)
	}
	return d
}
