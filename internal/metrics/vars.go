package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CEXMid = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_cex_mid_usd",
		Help: "CEX reference mid price (USD) per symbol",
	}, []string{"symbol"})

	DEXSpot = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_dex_spot_usd",
		Help: "DEX spot price (smallest valid ladder entry) per symbol",
	}, []string{"symbol"})

	EdgeBps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_edge_after_costs_bps",
		Help: "Spread after modeled costs, in bps",
	}, []string{"symbol"})

	AlignmentGap = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_alignment_gap_pct",
		Help: "DEX spot deviation from CEX mid, in percent",
	}, []string{"symbol"})

	RequiredUSDT = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_alignment_required_usdt",
		Help: "USDT needed on the DEX to re-enter the band (0 when none)",
	}, []string{"symbol"})

	Evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_evaluations_total",
		Help: "Evaluations per symbol by outcome (decided|skipped)",
	}, []string{"symbol", "outcome"})

	Skips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_skips_total",
		Help: "Skipped evaluations per symbol by reason",
	}, []string{"symbol", "reason"})

	RejectedUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_rejected_updates_total",
		Help: "Ticker/ladder updates rejected at ingestion",
	}, []string{"kind"})

	ProviderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_provider_errors_total",
		Help: "Ladder provider failures",
	}, []string{"provider"})

	LadderFetch = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_ladder_fetch_seconds",
		Help:    "Time to obtain a quote ladder",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(
		CEXMid,
		DEXSpot,
		EdgeBps,
		AlignmentGap,
		RequiredUSDT,
		Evaluations,
		Skips,
		RejectedUpdates,
		ProviderErrors,
		LadderFetch,
	)
}
