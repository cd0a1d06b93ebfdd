package types

type AlignmentStatus string

const (
	StatusAligned         AlignmentStatus = "ALIGNED"
	StatusBuyOnDEX        AlignmentStatus = "BUY_ON_DEX"
	StatusSellOnDEX       AlignmentStatus = "SELL_ON_DEX"
	StatusNoAction        AlignmentStatus = "NO_ACTION"
	StatusNotSupportedYet AlignmentStatus = "NOT_SUPPORTED_YET"
)

type AlignDirection string

const (
	AlignBuy  AlignDirection = "BUY"
	AlignSell AlignDirection = "SELL"
	AlignNone AlignDirection = "NONE"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
	ConfidenceNone   Confidence = "NONE"
)

// AlignmentResult is the sizer's answer for one market. Unknown numbers are
// nil and encode as JSON null.
type AlignmentResult struct {
	Market            string          `json:"market"`
	CEXMid            *float64        `json:"cex_mid"`
	DEXExecPrice      *float64        `json:"dex_exec_price"`
	DEXQuoteSizeUSDT  *float64        `json:"dex_quote_size_usdt"`
	DeviationPct      *float64        `json:"deviation_pct"`
	BandBps           float64         `json:"band_bps"`
	Status            AlignmentStatus `json:"status"`
	Direction         AlignDirection  `json:"direction"`
	RequiredUSDT      *float64        `json:"required_usdt"`
	RequiredTokens    *float64        `json:"required_tokens"`
	ExpectedExecPrice *float64        `json:"expected_exec_price"`
	PriceImpactPct    *float64        `json:"price_impact_pct"`
	NetworkCostUSD    *float64        `json:"network_cost_usd"`
	Confidence        Confidence      `json:"confidence"`
	Reason            string          `json:"reason"`
	QuotesAvailable   int             `json:"quotes_available"`
	QuotesValid       int             `json:"quotes_valid"`
}

// Clone deep-copies the nullable fields.
func (r AlignmentResult) Clone() AlignmentResult {
	out := r
	for _, p := range []**float64{
		&out.CEXMid, &out.DEXExecPrice, &out.DEXQuoteSizeUSDT, &out.DeviationPct,
		&out.RequiredUSDT, &out.RequiredTokens, &out.ExpectedExecPrice,
		&out.PriceImpactPct, &out.NetworkCostUSD,
	} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return out
}

// LadderAnalysis is the per-rung audit row of one sizing pass.
type LadderAnalysis struct {
	USDT       float64  `json:"usdt"`
	ExecPrice  float64  `json:"exec_price"`
	ImpactPct  float64  `json:"impact_pct"`
	GasUSDT    *float64 `json:"gas_usdt"`
	GasBps     float64  `json:"gas_bps"`
	AgeSec     float64  `json:"age_sec"`
	Skipped    bool     `json:"skipped"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Sufficient bool     `json:"sufficient"`
	Chosen     bool     `json:"chosen,omitempty"`
}

type AlignmentParams struct {
	BandBps         float64 `json:"band_bps"`
	MaxImpactCapPct float64 `json:"max_impact_cap_pct"`
	MaxGasBps       float64 `json:"max_gas_bps"`
	DEXStaleSeconds float64 `json:"dex_stale_seconds"`
}

type CEXDebug struct {
	Mid    float64 `json:"mid"`
	Source string  `json:"source"`
	AgeSec float64 `json:"age_sec"`
}

type DEXDebug struct {
	SpotPrice  *float64 `json:"spot_price"`
	SourceSize *float64 `json:"source_size"`
}

type ComputedDebug struct {
	GapPct      *float64       `json:"gap_pct"`
	NeedMovePct *float64       `json:"need_move_pct"`
	Direction   AlignDirection `json:"direction"`
}

type SelectionDebug struct {
	ChosenSize   *float64 `json:"chosen_size"`
	Reason       string   `json:"reason"`
	FallbackUsed bool     `json:"fallback_used"`
}

// AlignmentDebug explains how an AlignmentResult was reached.
type AlignmentDebug struct {
	Config         AlignmentParams  `json:"config"`
	CEX            CEXDebug         `json:"cex"`
	DEX            DEXDebug         `json:"dex"`
	Computed       ComputedDebug    `json:"computed"`
	LadderAnalysis []LadderAnalysis `json:"ladder_analysis"`
	Selection      SelectionDebug   `json:"selection"`
}

// Clone deep-copies the debug payload.
func (d AlignmentDebug) Clone() AlignmentDebug {
	out := d
	out.DEX.SpotPrice = cloneFloat(d.DEX.SpotPrice)
	out.DEX.SourceSize = cloneFloat(d.DEX.SourceSize)
	out.Computed.GapPct = cloneFloat(d.Computed.GapPct)
	out.Computed.NeedMovePct = cloneFloat(d.Computed.NeedMovePct)
	out.Selection.ChosenSize = cloneFloat(d.Selection.ChosenSize)
	out.LadderAnalysis = make([]LadderAnalysis, len(d.LadderAnalysis))
	for i, row := range d.LadderAnalysis {
		row.GasUSDT = cloneFloat(row.GasUSDT)
		out.LadderAnalysis[i] = row
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
