package types

type Direction string

const (
	BuyCEXSellDEX Direction = "buy_cex_sell_dex"
	BuyDEXSellCEX Direction = "buy_dex_sell_cex"
	DirectionNone Direction = "none"
)

// CostBreakdown keeps every modeled cost term separately, all in bps of the quote size.
type CostBreakdown struct {
	CEXFeeBps     float64 `json:"cex_fee_bps"`
	DEXLpFeeBps   float64 `json:"dex_lp_fee_bps"`
	GasCostBps    float64 `json:"gas_cost_bps"`
	NetworkFeeBps float64 `json:"network_fee_bps"`
	SlippageBps   float64 `json:"slippage_bps"`
}

func (c CostBreakdown) Total() float64 {
	return c.CEXFeeBps + c.DEXLpFeeBps + c.GasCostBps + c.NetworkFeeBps + c.SlippageBps
}

// Decision is the edge calculator's verdict for one symbol.
type Decision struct {
	Symbol            string        `json:"symbol"`
	CEXBid            float64       `json:"cex_bid"`
	CEXAsk            float64       `json:"cex_ask"`
	DEXPrice          float64       `json:"dex_price"`
	RawSpreadBps      float64       `json:"raw_spread_bps"`
	EstimatedCostBps  float64       `json:"estimated_cost_bps"`
	CostBreakdown     CostBreakdown `json:"cost_breakdown"`
	EdgeAfterCostsBps float64       `json:"edge_after_costs_bps"`
	WouldTrade        bool          `json:"would_trade"`
	Direction         Direction     `json:"direction"`
	SuggestedSizeUSDT float64       `json:"suggested_size_usdt"`
	Reason            string        `json:"reason"`
}
