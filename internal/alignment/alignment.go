// Package alignment sizes the DEX trade that brings the DEX price back inside
// a band around the CEX reference, by bracketing the required price impact on
// a quote ladder and interpolating between the two bracketing rungs.
//
// Compute is pure: it reads only its arguments and never panics.
package alignment

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
	"github.com/shopspring/decimal"
)

const (
	ReasonNoCEXReference  = "no_cex_reference"
	ReasonNoValidQuotes   = "no_valid_dex_quotes"
	ReasonNoFreshQuotes   = "no_fresh_quotes"
	ReasonNoSafeSize      = "no_safe_size"
	ReasonComputationFail = "computation_error"

	skipStale     = "stale"
	skipImpactCap = "impact_cap"
	skipGasCap    = "gas_cap"
)

// Input is one market snapshot as seen by the sizer.
type Input struct {
	Market    string
	CEXMid    float64
	CEXSource string
	CEXAge    time.Duration
	Ladder    types.QuoteLadder
	Now       time.Time
}

type rung struct {
	entry  types.LadderEntry
	impact float64
	row    int // index into the debug trace
}

// Compute returns the alignment result and the debug payload explaining it.
func Compute(in Input, p types.AlignmentParams) (res types.AlignmentResult, dbg types.AlignmentDebug) {
	res = types.AlignmentResult{
		Market:          in.Market,
		BandBps:         p.BandBps,
		Status:          types.StatusNoAction,
		Direction:       types.AlignNone,
		Confidence:      types.ConfidenceNone,
		QuotesAvailable: len(in.Ladder.Entries),
	}
	dbg = types.AlignmentDebug{
		Config: p,
		CEX: types.CEXDebug{
			Mid:    in.CEXMid,
			Source: in.CEXSource,
			AgeSec: in.CEXAge.Seconds(),
		},
		Computed:       types.ComputedDebug{Direction: types.AlignNone},
		LadderAnalysis: []types.LadderAnalysis{},
	}

	defer func() {
		if r := recover(); r != nil {
			res = types.AlignmentResult{
				Market:          in.Market,
				BandBps:         p.BandBps,
				Status:          types.StatusNoAction,
				Direction:       types.AlignNone,
				Confidence:      types.ConfidenceNone,
				Reason:          fmt.Sprintf("%s: %v", ReasonComputationFail, r),
				QuotesAvailable: len(in.Ladder.Entries),
			}
			dbg.Selection = types.SelectionDebug{Reason: res.Reason}
		}
	}()

	valid := in.Ladder.ValidEntries()
	res.QuotesValid = len(valid)

	if in.CEXMid <= 0 || math.IsNaN(in.CEXMid) || math.IsInf(in.CEXMid, 0) {
		res.Reason = fmt.Sprintf("%s: cex mid %v is not a usable price", ReasonNoCEXReference, in.CEXMid)
		dbg.Selection.Reason = res.Reason
		return res, dbg
	}
	res.CEXMid = types.Float(in.CEXMid)

	if len(valid) == 0 {
		if len(in.Ladder.Entries) == 0 {
			res.Status = types.StatusNotSupportedYet
			res.Reason = fmt.Sprintf("%s: ladder from %q has no entries", ReasonNoValidQuotes, in.Ladder.Source)
		} else {
			res.Reason = fmt.Sprintf("%s: 0 of %d entries valid", ReasonNoValidQuotes, len(in.Ladder.Entries))
		}
		dbg.Selection.Reason = res.Reason
		return res, dbg
	}

	// the smallest rung is the least impacted, so it stands in for the DEX mid
	base := valid[0]
	spot := base.ExecPrice
	res.DEXExecPrice = types.Float(spot)
	res.DEXQuoteSizeUSDT = types.Float(base.SizeUSDT)
	dbg.DEX = types.DEXDebug{SpotPrice: types.Float(spot), SourceSize: types.Float(base.SizeUSDT)}

	gapPct := (spot - in.CEXMid) / in.CEXMid * 100
	bandPct := p.BandBps / 100
	res.DeviationPct = types.Float(gapPct)
	dbg.Computed.GapPct = types.Float(gapPct)

	needed := math.Abs(gapPct) - bandPct
	if needed > 0 {
		dbg.Computed.NeedMovePct = types.Float(needed)
	}

	working, fresh := analyse(in, p, valid, spot, needed, &dbg)

	if math.Abs(gapPct) <= bandPct {
		res.Status = types.StatusAligned
		res.Confidence = types.ConfidenceHigh
		res.Reason = fmt.Sprintf("aligned: gap %.4f%% within band ±%.4f%% (dex %.8f vs cex %.8f)",
			gapPct, bandPct, spot, in.CEXMid)
		dbg.Selection.Reason = res.Reason
		return res, dbg
	}

	res.Direction = types.AlignBuy
	if gapPct > bandPct {
		res.Direction = types.AlignSell
	}
	dbg.Computed.Direction = res.Direction
	note := ""
	if res.Direction == types.AlignSell {
		note = "; sell impact approximated from the buy ladder"
	}

	if len(working) == 0 {
		res.Reason = fmt.Sprintf("%s: none of %d valid entries usable (%s)%s",
			ReasonNoFreshQuotes, len(valid), skipSummary(dbg.LadderAnalysis), note)
		dbg.Selection.Reason = res.Reason
		return res, dbg
	}

	upper := -1
	for i, r := range working {
		if r.impact >= needed {
			upper = i
			break
		}
	}

	if upper < 0 {
		last := working[len(working)-1]
		res.Reason = fmt.Sprintf("%s: largest usable entry %.2f USDT moves %.4f%% < needed %.4f%% (gap %.4f%%, band %.4f%%)%s",
			ReasonNoSafeSize, last.entry.SizeUSDT, last.impact, needed, gapPct, bandPct, note)
		dbg.Selection.Reason = res.Reason
		return res, dbg
	}

	up := working[upper]
	var (
		usdt, tokens, price, impact float64
		gas                         *float64
	)
	if upper > 0 {
		lo := working[upper-1]
		f := (needed - lo.impact) / (up.impact - lo.impact)
		usdt = roundCents(lo.entry.SizeUSDT + f*(up.entry.SizeUSDT-lo.entry.SizeUSDT))
		price = lo.entry.ExecPrice + f*(up.entry.ExecPrice-lo.entry.ExecPrice)
		tokens = usdt / price
		impact = needed
		gas = lerpGas(lo.entry.GasEstimateUSDT, up.entry.GasEstimateUSDT, f)

		dbg.LadderAnalysis[lo.row].Chosen = true
		dbg.LadderAnalysis[up.row].Chosen = true
		res.Reason = fmt.Sprintf("interpolated: need %.4f%% move (gap %.4f%%, band %.4f%%); bracket %.2f USDT @ %.4f%% .. %.2f USDT @ %.4f%%, f=%.4f → %.2f USDT for %.6f tokens at %.8f%s",
			needed, gapPct, bandPct, lo.entry.SizeUSDT, lo.impact, up.entry.SizeUSDT, up.impact, f, usdt, tokens, price, note)
	} else {
		usdt = up.entry.SizeUSDT
		price = up.entry.ExecPrice
		tokens = up.entry.TokensOut
		if tokens <= 0 {
			tokens = usdt / price
		}
		impact = up.impact
		if up.entry.GasEstimateUSDT != nil {
			gas = types.Float(*up.entry.GasEstimateUSDT)
		}

		dbg.LadderAnalysis[up.row].Chosen = true
		dbg.Selection.FallbackUsed = true
		res.Reason = fmt.Sprintf("first_sufficient: need %.4f%% move (gap %.4f%%, band %.4f%%); no smaller usable entry, using %.2f USDT @ %.4f%% for %.6f tokens at %.8f%s",
			needed, gapPct, bandPct, usdt, impact, tokens, price, note)
	}

	res.Status = types.StatusBuyOnDEX
	if res.Direction == types.AlignSell {
		res.Status = types.StatusSellOnDEX
	}
	res.RequiredUSDT = types.Float(usdt)
	res.RequiredTokens = types.Float(tokens)
	res.ExpectedExecPrice = types.Float(price)
	res.PriceImpactPct = types.Float(impact)
	res.NetworkCostUSD = gas
	res.Confidence = confidenceFor(fresh)

	dbg.Selection.ChosenSize = types.Float(usdt)
	dbg.Selection.Reason = res.Reason
	return res, dbg
}

// analyse fills the per-entry trace and returns the usable rungs in ascending
// size order plus the number of fresh valid entries.
func analyse(in Input, p types.AlignmentParams, valid []types.LadderEntry, spot, needed float64, dbg *types.AlignmentDebug) ([]rung, int) {
	working := make([]rung, 0, len(valid))
	fresh := 0
	for _, e := range valid {
		age := in.Now.Sub(e.ObservedAt).Seconds()
		impact := math.Abs(e.ExecPrice-spot) / spot * 100
		row := types.LadderAnalysis{
			USDT:      e.SizeUSDT,
			ExecPrice: e.ExecPrice,
			ImpactPct: impact,
			GasBps:    e.GasBps(),
			AgeSec:    age,
		}
		if e.GasEstimateUSDT != nil {
			row.GasUSDT = types.Float(*e.GasEstimateUSDT)
		}

		switch {
		case p.DEXStaleSeconds > 0 && age > p.DEXStaleSeconds:
			row.Skipped, row.SkipReason = true, skipStale
		case p.MaxImpactCapPct > 0 && impact > p.MaxImpactCapPct:
			row.Skipped, row.SkipReason = true, skipImpactCap
		case p.MaxGasBps > 0 && row.GasBps > p.MaxGasBps:
			row.Skipped, row.SkipReason = true, skipGasCap
		}
		if row.SkipReason != skipStale {
			fresh++
		}
		if !row.Skipped {
			row.Sufficient = needed > 0 && impact >= needed
			working = append(working, rung{entry: e, impact: impact, row: len(dbg.LadderAnalysis)})
		}
		dbg.LadderAnalysis = append(dbg.LadderAnalysis, row)
	}
	return working, fresh
}

func confidenceFor(fresh int) types.Confidence {
	switch {
	case fresh >= 5:
		return types.ConfidenceHigh
	case fresh >= 3:
		return types.ConfidenceMedium
	case fresh >= 1:
		return types.ConfidenceLow
	default:
		return types.ConfidenceNone
	}
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func lerpGas(lo, up *float64, f float64) *float64 {
	switch {
	case lo != nil && up != nil:
		return types.Float(*lo + f*(*up-*lo))
	case up != nil:
		return types.Float(*up)
	case lo != nil:
		return types.Float(*lo)
	}
	return nil
}

func skipSummary(rows []types.LadderAnalysis) string {
	var stale, impact, gas int
	for _, r := range rows {
		switch r.SkipReason {
		case skipStale:
			stale++
		case skipImpactCap:
			impact++
		case skipGasCap:
			gas++
		}
	}
	return fmt.Sprintf("stale=%d impact_cap=%d gas_cap=%d", stale, impact, gas)
}

// Cause maps a result that carries no size to the error taxonomy, so callers
// can match it with errors.Is. It is nil when the market is aligned or sized.
// no_safe_size and no_fresh_quotes also carry every rung skip cause seen in
// the trace.
func Cause(res types.AlignmentResult, dbg types.AlignmentDebug) error {
	switch {
	case res.RequiredUSDT != nil || res.Status == types.StatusAligned:
		return nil
	case strings.HasPrefix(res.Reason, ReasonComputationFail):
		return fmt.Errorf("%w: %s", types.ErrComputation, res.Reason)
	case strings.HasPrefix(res.Reason, ReasonNoCEXReference):
		return fmt.Errorf("%w: %s", types.ErrIncompleteData, res.Reason)
	case strings.HasPrefix(res.Reason, ReasonNoValidQuotes):
		return fmt.Errorf("%w: %s", types.ErrNoLiquidityRoute, res.Reason)
	case strings.HasPrefix(res.Reason, ReasonNoSafeSize):
		errs := append([]error{types.ErrNoSafeSize}, skipCauses(dbg.LadderAnalysis)...)
		return fmt.Errorf("%s: %w", res.Reason, errors.Join(errs...))
	case strings.HasPrefix(res.Reason, ReasonNoFreshQuotes):
		errs := skipCauses(dbg.LadderAnalysis)
		if len(errs) == 0 {
			errs = []error{types.ErrNoLiquidityRoute}
		}
		return fmt.Errorf("%s: %w", res.Reason, errors.Join(errs...))
	}
	return nil
}

func skipCauses(rows []types.LadderAnalysis) []error {
	var (
		out  []error
		seen = make(map[string]bool, 3)
	)
	for _, r := range rows {
		if !r.Skipped || seen[r.SkipReason] {
			continue
		}
		seen[r.SkipReason] = true
		switch r.SkipReason {
		case skipStale:
			out = append(out, types.ErrStaleData)
		case skipImpactCap:
			out = append(out, types.ErrImpactCapExceeded)
		case skipGasCap:
			out = append(out, types.ErrGasCapExceeded)
		}
	}
	return out
}
