package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EngineCfg holds the edge calculator's cost model. All bps terms are
// independent so a Decision can show where its cost came from.
type EngineCfg struct {
	MinEdgeBps        float64 `yaml:"min_edge_bps"`
	CEXTradingFeeBps  float64 `yaml:"cex_trading_fee_bps"`
	DEXLPFeeBps       float64 `yaml:"dex_lp_fee_bps"`
	GasCostUSDT       float64 `yaml:"gas_cost_usdt"`
	NetworkFeeUSDT    float64 `yaml:"network_fee_usdt"`
	SlippageBufferBps float64 `yaml:"slippage_buffer_bps"`
	MaxTradeSizeUSDT  float64 `yaml:"max_trade_size_usdt"`
	QuoteSizeUSDT     float64 `yaml:"quote_size_usdt"`
}

// SymbolCfg is the per-market alignment and staleness tuning.
type SymbolCfg struct {
	AlignmentBandBps float64 `yaml:"alignment_band_bps"`
	MaxImpactCapPct  float64 `yaml:"max_impact_cap_pct"`
	MaxGasBps        float64 `yaml:"max_gas_bps"`
	CEXStaleSeconds  float64 `yaml:"cex_stale_seconds"`
	DEXStaleSeconds  float64 `yaml:"dex_stale_seconds"`

	CEXSymbol string `yaml:"cex_symbol"` // venue-side name, e.g. CSRUSDT
	Token     string `yaml:"token"`      // DEX token address
	Decimals  int    `yaml:"decimals"`
}

// VenueCfg is one CEX in reference-price preference order.
type VenueCfg struct {
	Name         string  `yaml:"name"`
	StaleSeconds float64 `yaml:"stale_seconds"` // 0 → symbol's cex_stale_seconds
}

type ProviderCfg struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"` // univ3 | http
	URL       string `yaml:"url"`
	HealthURL string `yaml:"health_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type RedisCfg struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	DB             int    `yaml:"db"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TickStream     string `yaml:"tick_stream"`
	LadderStream   string `yaml:"ladder_stream"`
	Group          string `yaml:"group"`
	Consumer       string `yaml:"consumer"`
	DecisionStream string `yaml:"decision_stream"`
	DecisionNS     string `yaml:"decision_ns"`
}

type LogCfg struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json | console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MEXCCfg struct {
	Venue   string `yaml:"venue"`
	RestURL string `yaml:"rest_url"`
	WsURL   string `yaml:"ws_url"`
	UseWS   bool   `yaml:"use_ws"`
}

type ChainCfg struct {
	RPCHTTP        string  `yaml:"rpc_http"`
	GasLimitSwap   uint64  `yaml:"gas_limit_swap"`
	EthSymbol      string  `yaml:"eth_symbol"`
	EthUSDFallback float64 `yaml:"eth_usd_fallback"`
}

type DEXCfg struct {
	USDT            string    `yaml:"usdt"`
	USDTDecimals    int       `yaml:"usdt_decimals"`
	QuoterV2        string    `yaml:"quoter_v2"`
	Multicall       string    `yaml:"multicall"`
	FeeTier         uint32    `yaml:"fee_tier"`
	LadderSizesUSDT []float64 `yaml:"ladder_sizes_usdt"`
}

type TimingsCfg struct {
	TickerPollMs       int `yaml:"ticker_poll_ms"`
	LadderPollMs       int `yaml:"ladder_poll_ms"`
	ReevaluateMs       int `yaml:"reevaluate_ms"`
	ProviderCooldownMs int `yaml:"provider_cooldown_ms"`
	HealthCheckMs      int `yaml:"health_check_ms"`
	InboxSize          int `yaml:"inbox_size"`
}

type Config struct {
	Engine         EngineCfg            `yaml:"engine"`
	Defaults       SymbolCfg            `yaml:"defaults"`
	Symbols        map[string]SymbolCfg `yaml:"symbols"`
	Venues         []VenueCfg           `yaml:"venues"`
	TrustedSources []string             `yaml:"trusted_sources"`
	Providers      []ProviderCfg        `yaml:"providers"`

	MEXC  MEXCCfg  `yaml:"mexc"`
	Chain ChainCfg `yaml:"chain"`
	DEX   DEXCfg   `yaml:"dex"`
	Redis RedisCfg `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Dash struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"dash"`

	Log     LogCfg     `yaml:"log"`
	Timings TimingsCfg `yaml:"timings"`
}

// Load reads the YAML file, applies .env / environment overrides and fills
// defaults. The result is validated.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file read.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	if err := applyEnvOverrides(&c); err != nil {
		return nil, err
	}
	c.fillDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) fillDefaults() {
	if c.Engine.QuoteSizeUSDT == 0 {
		c.Engine.QuoteSizeUSDT = 100
	}
	if c.Engine.MaxTradeSizeUSDT == 0 {
		c.Engine.MaxTradeSizeUSDT = c.Engine.QuoteSizeUSDT
	}
	if c.Defaults.AlignmentBandBps == 0 {
		c.Defaults.AlignmentBandBps = 50
	}
	if c.Defaults.MaxImpactCapPct == 0 {
		c.Defaults.MaxImpactCapPct = 10
	}
	if c.Defaults.MaxGasBps == 0 {
		c.Defaults.MaxGasBps = 100
	}
	if c.Defaults.CEXStaleSeconds == 0 {
		c.Defaults.CEXStaleSeconds = 30
	}
	if c.Defaults.DEXStaleSeconds == 0 {
		c.Defaults.DEXStaleSeconds = 60
	}
	if c.Defaults.Decimals == 0 {
		c.Defaults.Decimals = 18
	}
	if len(c.TrustedSources) == 0 {
		c.TrustedSources = []string{"uniswap_v3_quoter", "uniswap_ui_scraper"}
	}

	if c.MEXC.Venue == "" {
		c.MEXC.Venue = "mexc"
	}
	if c.Chain.GasLimitSwap == 0 {
		c.Chain.GasLimitSwap = 180_000
	}
	if c.Chain.EthSymbol == "" {
		c.Chain.EthSymbol = "ETH/USDT"
	}
	if c.Chain.EthUSDFallback == 0 {
		c.Chain.EthUSDFallback = 2000
	}
	if c.DEX.USDTDecimals == 0 {
		c.DEX.USDTDecimals = 6
	}
	if c.DEX.FeeTier == 0 {
		c.DEX.FeeTier = 3000
	}
	if len(c.DEX.LadderSizesUSDT) == 0 {
		c.DEX.LadderSizesUSDT = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000}
	}

	if c.Redis.TickStream == "" {
		c.Redis.TickStream = "market:ticks"
	}
	if c.Redis.LadderStream == "" {
		c.Redis.LadderStream = "market:ladders"
	}
	if c.Redis.Group == "" {
		c.Redis.Group = "arb-engine"
	}
	if c.Redis.Consumer == "" {
		c.Redis.Consumer = "engine-1"
	}
	if c.Redis.DecisionStream == "" {
		c.Redis.DecisionStream = "engine:decisions"
	}
	if c.Redis.DecisionNS == "" {
		c.Redis.DecisionNS = "engine:latest:"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Timings.TickerPollMs == 0 {
		c.Timings.TickerPollMs = 1000
	}
	if c.Timings.LadderPollMs == 0 {
		c.Timings.LadderPollMs = 5000
	}
	if c.Timings.ReevaluateMs == 0 {
		c.Timings.ReevaluateMs = 1000
	}
	if c.Timings.ProviderCooldownMs == 0 {
		c.Timings.ProviderCooldownMs = 30_000
	}
	if c.Timings.HealthCheckMs == 0 {
		c.Timings.HealthCheckMs = 15_000
	}
	if c.Timings.InboxSize == 0 {
		c.Timings.InboxSize = 256
	}
}

// Validate rejects configurations the engine cannot evaluate with.
func (c *Config) Validate() error {
	e := c.Engine
	if e.QuoteSizeUSDT <= 0 {
		return errors.New("engine.quote_size_usdt must be > 0")
	}
	if e.MaxTradeSizeUSDT <= 0 {
		return errors.New("engine.max_trade_size_usdt must be > 0")
	}
	for name, v := range map[string]float64{
		"cex_trading_fee_bps": e.CEXTradingFeeBps,
		"dex_lp_fee_bps":      e.DEXLPFeeBps,
		"gas_cost_usdt":       e.GasCostUSDT,
		"network_fee_usdt":    e.NetworkFeeUSDT,
		"slippage_buffer_bps": e.SlippageBufferBps,
	} {
		if v < 0 {
			return fmt.Errorf("engine.%s must be >= 0", name)
		}
	}
	if len(c.Venues) == 0 {
		return errors.New("venues: at least one CEX venue is required")
	}
	seen := make(map[string]struct{}, len(c.Venues))
	for _, v := range c.Venues {
		if v.Name == "" {
			return errors.New("venues: name is required")
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("venues: duplicate venue %q", v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	for name, s := range c.Symbols {
		if s.AlignmentBandBps < 0 || s.MaxImpactCapPct < 0 || s.MaxGasBps < 0 {
			return fmt.Errorf("symbols.%s: alignment bounds must be >= 0", name)
		}
	}
	for _, p := range c.Providers {
		switch p.Kind {
		case "univ3", "http":
		default:
			return fmt.Errorf("providers.%s: unknown kind %q", p.Name, p.Kind)
		}
	}
	return nil
}

// Symbol resolves the parameters for symbol, falling back to Defaults per field.
func (c *Config) Symbol(symbol string) SymbolCfg {
	s := c.Symbols[symbol]
	d := c.Defaults
	if s.AlignmentBandBps == 0 {
		s.AlignmentBandBps = d.AlignmentBandBps
	}
	if s.MaxImpactCapPct == 0 {
		s.MaxImpactCapPct = d.MaxImpactCapPct
	}
	if s.MaxGasBps == 0 {
		s.MaxGasBps = d.MaxGasBps
	}
	if s.CEXStaleSeconds == 0 {
		s.CEXStaleSeconds = d.CEXStaleSeconds
	}
	if s.DEXStaleSeconds == 0 {
		s.DEXStaleSeconds = d.DEXStaleSeconds
	}
	if s.Decimals == 0 {
		s.Decimals = d.Decimals
	}
	return s
}

// VenueWindow is the staleness window of venue for symbol.
func (c *Config) VenueWindow(venue, symbol string) time.Duration {
	for _, v := range c.Venues {
		if v.Name == venue && v.StaleSeconds > 0 {
			return seconds(v.StaleSeconds)
		}
	}
	return seconds(c.Symbol(symbol).CEXStaleSeconds)
}

// IsTrustedSource reports whether ladders from source may be acted on.
func (c *Config) IsTrustedSource(source string) bool {
	for _, s := range c.TrustedSources {
		if s == source {
			return true
		}
	}
	return false
}

func (c *Config) TickerPoll() time.Duration {
	return time.Duration(c.Timings.TickerPollMs) * time.Millisecond
}
func (c *Config) LadderPoll() time.Duration {
	return time.Duration(c.Timings.LadderPollMs) * time.Millisecond
}
func (c *Config) Reevaluate() time.Duration {
	return time.Duration(c.Timings.ReevaluateMs) * time.Millisecond
}
func (c *Config) ProviderCooldown() time.Duration {
	return time.Duration(c.Timings.ProviderCooldownMs) * time.Millisecond
}
func (c *Config) HealthCheck() time.Duration {
	return time.Duration(c.Timings.HealthCheckMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
