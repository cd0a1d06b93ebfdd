package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides lets deployments set the cost model and the per-symbol
// defaults through the environment. Per-symbol YAML values still win over
// the defaults set here. Every numeric value that does not parse is reported.
func applyEnvOverrides(c *Config) error {
	var errs []error
	setFloat := func(dst *float64, key string) {
		if err := envFloat(dst, key); err != nil {
			errs = append(errs, err)
		}
	}

	setFloat(&c.Engine.MinEdgeBps, "MIN_EDGE_BPS")
	setFloat(&c.Engine.CEXTradingFeeBps, "CEX_TRADING_FEE_BPS")
	setFloat(&c.Engine.DEXLPFeeBps, "DEX_LP_FEE_BPS")
	setFloat(&c.Engine.GasCostUSDT, "GAS_COST_USDT")
	setFloat(&c.Engine.NetworkFeeUSDT, "NETWORK_FEE_USDT")
	setFloat(&c.Engine.SlippageBufferBps, "SLIPPAGE_BUFFER_BPS")
	setFloat(&c.Engine.MaxTradeSizeUSDT, "MAX_TRADE_SIZE_USDT")
	setFloat(&c.Engine.QuoteSizeUSDT, "QUOTE_SIZE_USDT")

	setFloat(&c.Defaults.AlignmentBandBps, "ALIGNMENT_BAND_BPS")
	setFloat(&c.Defaults.MaxImpactCapPct, "MAX_IMPACT_CAP_PCT")
	setFloat(&c.Defaults.MaxGasBps, "MAX_GAS_BPS")
	setFloat(&c.Defaults.CEXStaleSeconds, "CEX_STALE_SECONDS")
	setFloat(&c.Defaults.DEXStaleSeconds, "DEX_STALE_SECONDS")

	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.Chain.RPCHTTP, "RPC_HTTP")
	if v := os.Getenv("TRUSTED_QUOTE_SOURCES"); v != "" {
		c.TrustedSources = splitList(v)
	}
	return errors.Join(errs...)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("env %s=%q: not a number", key, v)
	}
	*dst = f
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
