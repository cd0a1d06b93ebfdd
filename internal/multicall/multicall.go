// Package multicall batches read-only contract calls through Multicall2/3
// tryAggregate, so one reverting quote does not fail the whole batch.
package multicall

import (
	"context"
	"fmt"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 is deployed at the same address on every major EVM chain.
var Multicall3 = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const multicallABI = `[
{
  "inputs": [
    {"name": "requireSuccess", "type": "bool"},
    {
      "components": [
        {"name": "target", "type": "address"},
        {"name": "callData", "type": "bytes"}
      ],
      "name": "calls",
      "type": "tuple[]"
    }
  ],
  "name": "tryAggregate",
  "outputs": [
    {
      "components": [
        {"name": "success", "type": "bool"},
        {"name": "returnData", "type": "bytes"}
      ],
      "name": "returnData",
      "type": "tuple[]"
    }
  ],
  "stateMutability": "nonpayable",
  "type": "function"
}
]`

type IClient interface {
	TryAggregate(ctx context.Context, calls []Call) ([]Result, error)
}

type Client struct {
	c    ethereum.ContractCaller
	addr common.Address
	abi  abi.ABI
}

// New binds a multicall contract. c is usually an *ethclient.Client.
func New(c ethereum.ContractCaller, multicallAddr common.Address) (*Client, error) {
	parsedABI, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return nil, fmt.Errorf("bad abi: %w", err)
	}
	if multicallAddr == (common.Address{}) {
		multicallAddr = Multicall3
	}
	return &Client{c: c, addr: multicallAddr, abi: parsedABI}, nil
}

type Call struct {
	Target   common.Address
	CallData []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}

// TryAggregate runs calls in one eth_call; per-call failures come back as
// Success=false instead of an error.
func (c *Client) TryAggregate(ctx context.Context, calls []Call) ([]Result, error) {
	payload, err := c.abi.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	res, err := c.c.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call tryAggregate: %w", err)
	}

	var out []Result
	if err := c.abi.UnpackIntoInterface(&out, "tryAggregate", res); err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}
	if len(out) != len(calls) {
		return nil, fmt.Errorf("tryAggregate returned %d results for %d calls", len(out), len(calls))
	}
	for i := range out {
		if len(out[i].ReturnData) == 0 {
			out[i].Success = false
		}
	}
	return out, nil
}
