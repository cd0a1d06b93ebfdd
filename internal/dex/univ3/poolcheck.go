package univ3

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Uniswap v3 Factory, same address on Ethereum, Arbitrum and most L2s.
var UniswapV3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")

// getPool(tokenA, tokenB, fee) -> address
const v3FactoryABI = `[
  {"inputs":[
    {"internalType":"address","name":"tokenA","type":"address"},
    {"internalType":"address","name":"tokenB","type":"address"},
    {"internalType":"uint24","name":"fee","type":"uint24"}],
   "name":"getPool",
   "outputs":[{"internalType":"address","name":"pool","type":"address"}],
   "stateMutability":"view","type":"function"}
]`

// CheckAvailableFeeTiers returns the fee tiers that have a pool for base/quote
// and the pool addresses.
func CheckAvailableFeeTiers(ctx context.Context, ec ethereum.ContractCaller, base, quote common.Address, tiers []uint32) (present []uint32, pools map[uint32]common.Address, err error) {
	if (base == common.Address{}) || (quote == common.Address{}) {
		return nil, nil, fmt.Errorf("base/quote address is zero")
	}

	fabi, err := abi.JSON(strings.NewReader(v3FactoryABI))
	if err != nil {
		return nil, nil, fmt.Errorf("parse factory abi: %w", err)
	}

	// the factory keys pools by sorted token pair
	tokenA, tokenB := base, quote
	if bytes.Compare(tokenB.Bytes(), tokenA.Bytes()) < 0 {
		tokenA, tokenB = tokenB, tokenA
	}

	pools = make(map[uint32]common.Address, len(tiers))
	for _, fee := range tiers {
		data, err := fabi.Pack("getPool", tokenA, tokenB, big.NewInt(int64(fee)))
		if err != nil {
			return nil, nil, fmt.Errorf("pack getPool: %w", err)
		}

		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		res, callErr := ec.CallContract(cctx, ethereum.CallMsg{To: &UniswapV3Factory, Data: data}, nil)
		cancel()
		if callErr != nil {
			return nil, nil, fmt.Errorf("call getPool(fee=%d): %w", fee, callErr)
		}

		out, err := fabi.Unpack("getPool", res)
		if err != nil || len(out) != 1 {
			return nil, nil, fmt.Errorf("unpack getPool(fee=%d): %w", fee, err)
		}
		addr, ok := out[0].(common.Address)
		if !ok {
			return nil, nil, fmt.Errorf("unpack getPool(fee=%d): unexpected %T", fee, out[0])
		}
		if addr != (common.Address{}) {
			present = append(present, fee)
			pools[fee] = addr
		}
	}
	return present, pools, nil
}
