// Package core defines the quote-ladder provider capability and the ranked,
// health-checked fallback chain the engine fetches ladders through.
package core

import (
	"context"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

// Known provider names. A ladder's Source is the name of the provider that
// produced it and is what the trusted-source allow-list matches.
const (
	ProviderUniswapV3Quoter  = "uniswap_v3_quoter"
	ProviderUniswapUIScraper = "uniswap_ui_scraper"
)

// LadderProvider produces normalized quote ladders for a symbol.
type LadderProvider interface {
	Name() string
	FetchLadder(ctx context.Context, symbol string) (types.QuoteLadder, error)
	Healthy(ctx context.Context) error
}
