// Package univ3 quotes Uniswap v3 swap ladders through QuoterV2 batched over
// multicall.
package univ3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/core"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/multicall"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

const quoterV2ABI = `[
{
  "inputs": [{
    "components": [
      {"internalType":"address","name":"tokenIn","type":"address"},
      {"internalType":"address","name":"tokenOut","type":"address"},
      {"internalType":"uint256","name":"amountIn","type":"uint256"},
      {"internalType":"uint24","name":"fee","type":"uint24"},
      {"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}
    ],
    "internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"
  }],
  "name": "quoteExactInputSingle",
  "outputs": [
    {"internalType":"uint256","name":"amountOut","type":"uint256"},
    {"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},
    {"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},
    {"internalType":"uint256","name":"gasEstimate","type":"uint256"}
  ],
  "stateMutability": "nonpayable",
  "type": "function"
}
]`

type exactInputParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// GasPricer is the subset of ethclient used to price gas.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Ladder buys each configured USDT size through QuoterV2 in a single
// multicall and reports the result as a QuoteLadder.
type Ladder struct {
	log    *zap.Logger
	cfg    *config.Config
	mc     multicall.IClient
	caller ethereum.ContractCaller // token decimals, nil uses config
	gas    GasPricer
	ethUSD func() float64
	q2abi  abi.ABI
	quoter common.Address
	usdt   common.Address

	decimalsCache sync.Map
	now           func() time.Time
}

// NewLadder builds the on-chain provider. ethUSD supplies the gas token price
// in USDT; it falls back to chain.eth_usd_fallback when it returns 0.
func NewLadder(cfg *config.Config, mc multicall.IClient, caller ethereum.ContractCaller, gas GasPricer, ethUSD func() float64, log *zap.Logger) (*Ladder, error) {
	q2abi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter v2 abi: %w", err)
	}
	quoter := common.HexToAddress(cfg.DEX.QuoterV2)
	if quoter == (common.Address{}) {
		return nil, errors.New("quoter v2 address is not configured")
	}
	usdt := common.HexToAddress(cfg.DEX.USDT)
	if usdt == (common.Address{}) {
		return nil, errors.New("usdt address is not configured")
	}
	if ethUSD == nil {
		ethUSD = func() float64 { return 0 }
	}
	return &Ladder{
		log:    log,
		cfg:    cfg,
		mc:     mc,
		caller: caller,
		gas:    gas,
		ethUSD: ethUSD,
		q2abi:  q2abi,
		quoter: quoter,
		usdt:   usdt,
		now:    time.Now,
	}, nil
}

func (l *Ladder) Name() string { return core.ProviderUniswapV3Quoter }

func (l *Ladder) FetchLadder(ctx context.Context, symbol string) (types.QuoteLadder, error) {
	sc := l.cfg.Symbol(symbol)
	token := common.HexToAddress(sc.Token)
	if token == (common.Address{}) {
		return types.QuoteLadder{}, fmt.Errorf("%w: %s has no token address", types.ErrUnknownSymbol, symbol)
	}
	sizes := l.cfg.DEX.LadderSizesUSDT

	calls := make([]multicall.Call, 0, len(sizes))
	for _, size := range sizes {
		data, err := l.q2abi.Pack("quoteExactInputSingle", exactInputParams{
			TokenIn:           l.usdt,
			TokenOut:          token,
			AmountIn:          ToBig(size, l.cfg.DEX.USDTDecimals),
			Fee:               big.NewInt(int64(l.cfg.DEX.FeeTier)),
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return types.QuoteLadder{}, fmt.Errorf("pack quote %.2f: %w", size, err)
		}
		calls = append(calls, multicall.Call{Target: l.quoter, CallData: data})
	}

	results, err := l.mc.TryAggregate(ctx, calls)
	if err != nil {
		return types.QuoteLadder{}, fmt.Errorf("multicall: %w", err)
	}
	if len(results) != len(calls) {
		return types.QuoteLadder{}, fmt.Errorf("multicall: %d results for %d calls", len(results), len(calls))
	}

	dec := l.decimals(ctx, token, sc.Decimals)
	gasPrice := l.gasPrice(ctx)
	ethUSD := l.ethUSD()
	if ethUSD <= 0 {
		ethUSD = l.cfg.Chain.EthUSDFallback
	}

	now := l.now()
	out := types.QuoteLadder{
		Symbol:     symbol,
		Source:     l.Name(),
		Validated:  true,
		ReceivedAt: now,
		Entries:    make([]types.LadderEntry, 0, len(sizes)),
	}
	for i, size := range sizes {
		e := types.LadderEntry{SizeUSDT: size, ObservedAt: now}
		if !results[i].Success {
			e.InvalidReason = "quote_reverted"
			out.Entries = append(out.Entries, e)
			continue
		}
		amountOut, gasUnits, err := l.unpack(results[i].ReturnData)
		if err != nil {
			e.InvalidReason = "decode_failed"
			out.Entries = append(out.Entries, e)
			continue
		}
		e.TokensOut = ToFloat(amountOut, dec)
		if e.TokensOut <= 0 {
			e.InvalidReason = "zero_output"
			out.Entries = append(out.Entries, e)
			continue
		}
		e.ExecPrice = size / e.TokensOut
		e.Valid = true
		if gasPrice != nil {
			if gasUnits == nil || gasUnits.Sign() == 0 {
				gasUnits = new(big.Int).SetUint64(l.cfg.Chain.GasLimitSwap)
			}
			g := weiToUSD(new(big.Int).Mul(gasUnits, gasPrice), ethUSD)
			e.GasEstimateUSDT = &g
		}
		out.Entries = append(out.Entries, e)
	}

	if len(out.ValidEntries()) == 0 {
		out.Error = "all quotes reverted"
	}
	return out, nil
}

// Healthy probes the RPC endpoint.
func (l *Ladder) Healthy(ctx context.Context) error {
	if l.gas == nil {
		return nil
	}
	if _, err := l.gas.SuggestGasPrice(ctx); err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	return nil
}

func (l *Ladder) unpack(data []byte) (*big.Int, *big.Int, error) {
	outs, err := l.q2abi.Methods["quoteExactInputSingle"].Outputs.Unpack(data)
	if err != nil {
		return nil, nil, err
	}
	if len(outs) != 4 {
		return nil, nil, fmt.Errorf("want 4 outputs, got %d", len(outs))
	}
	amountOut, ok := outs[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("amountOut: unexpected %T", outs[0])
	}
	gasUnits, _ := outs[3].(*big.Int)
	return amountOut, gasUnits, nil
}

func (l *Ladder) gasPrice(ctx context.Context) *big.Int {
	if l.gas == nil {
		return nil
	}
	p, err := l.gas.SuggestGasPrice(ctx)
	if err != nil {
		l.log.Warn("suggest gas price", zap.Error(err))
		return nil
	}
	return p
}

func (l *Ladder) decimals(ctx context.Context, token common.Address, fallback int) int {
	if v, ok := l.decimalsCache.Load(token); ok {
		return v.(int)
	}
	if l.caller == nil {
		return fallback
	}
	d, err := GetERC20Decimals(ctx, l.caller, token)
	if err != nil {
		l.log.Warn("token decimals, using config", zap.String("token", token.Hex()), zap.Error(err))
		return fallback
	}
	l.decimalsCache.Store(token, d)
	return d
}
