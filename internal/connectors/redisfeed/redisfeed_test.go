package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/bot"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

func redisCfg(addr string) config.RedisCfg {
	return config.RedisCfg{
		Addr:           addr,
		TickStream:     "market:ticks",
		LadderStream:   "market:ladders",
		Group:          "arb-engine",
		Consumer:       "engine-1",
		DecisionStream: "engine:decisions",
		DecisionNS:     "engine:latest:",
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := NewClient(redisCfg(mr.Addr()))
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeSubmitter struct {
	mu      sync.Mutex
	tickers []types.Ticker
	ladders []types.QuoteLadder
	err     error
}

func (f *fakeSubmitter) SubmitTicker(_ context.Context, t types.Ticker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers = append(f.tickers, t)
	return f.err
}

func (f *fakeSubmitter) SubmitLadder(_ context.Context, l types.QuoteLadder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ladders = append(f.ladders, l)
	return f.err
}

func TestConsumer_ParsesAndAcks(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	cfg := redisCfg("")
	sub := &fakeSubmitter{}
	c := NewConsumer(rdb, cfg, sub, zap.NewNop())
	now := time.Unix(1_700_000_100, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.EnsureGroups(ctx))
	require.NoError(t, c.EnsureGroups(ctx), "existing group is fine")

	add := func(stream, payload string) {
		require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]interface{}{"payload": payload}}).Err())
	}
	add(cfg.TickStream, `{"symbol":"csr/usdt","venue":"LBank","bid":"0.0099","ask":"0.0101","ts":1700000000}`)
	add(cfg.TickStream, `{"symbol":"csr/usdt","venue":"lbank","bid":"0.02","ask":"0.01"}`)
	add(cfg.LadderStream, `{"symbol":"CSR/USDT","source":"uniswap_v3_quoter","validated":true,"entries":[{"sizeUsdt":100,"tokensOut":200,"ts":1700000000,"valid":true}]}`)
	add(cfg.LadderStream, `garbage`)

	n, err := c.poll(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.Len(t, sub.tickers, 1)
	assert.Equal(t, "CSR/USDT", sub.tickers[0].Symbol)
	assert.Equal(t, "lbank", sub.tickers[0].Venue)
	assert.Equal(t, now, sub.tickers[0].ReceivedAt)
	require.Len(t, sub.ladders, 1)
	assert.Equal(t, "uniswap_v3_quoter", sub.ladders[0].Source)

	pending, err := rdb.XPending(ctx, cfg.TickStream, cfg.Group).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	n, err = c.poll(ctx, -1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	_, rdb := newRedis(t)
	sub := &fakeSubmitter{err: errors.New("orchestrator stopped")}
	c := NewConsumer(rdb, redisCfg(""), sub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return rdb.Exists(context.Background(), "market:ticks").Val() == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func decidedView() bot.SymbolView {
	at := time.Unix(1_700_000_000, 0)
	spot := 1.02
	return bot.SymbolView{
		Symbol:       "CSR/USDT",
		State:        bot.StateDecided,
		EvaluationID: "eval-1",
		EvaluatedAt:  at,
		DecidedAt:    at,
		Decision: &types.Decision{
			Symbol:            "CSR/USDT",
			EdgeAfterCostsBps: 70,
			WouldTrade:        true,
			Direction:         types.BuyCEXSellDEX,
		},
		Alignment: &types.AlignmentResult{Market: "CSR/USDT", DEXExecPrice: &spot, Status: types.StatusSellOnDEX},
		Debug:     &types.AlignmentDebug{},
	}
}

func TestPublisher_DecidedThenSkipped(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	p := NewPublisher(rdb, redisCfg(""))

	require.NoError(t, p.Publish(ctx, decidedView()))
	key := "engine:latest:CSR/USDT"
	assert.Equal(t, "DECIDED", mr.HGet(key, "state"))
	assert.Equal(t, "1", mr.HGet(key, "would_trade"))
	assert.Equal(t, "70", mr.HGet(key, "edge_bps"))

	var d types.Decision
	require.NoError(t, json.Unmarshal([]byte(mr.HGet(key, "decision")), &d))
	assert.Equal(t, types.BuyCEXSellDEX, d.Direction)

	skipped := decidedView()
	skipped.State = bot.StateSkipped
	skipped.SkipReason = types.SkipStaleData
	skipped.EvaluationID = "eval-2"
	require.NoError(t, p.Publish(ctx, skipped))

	assert.Equal(t, "SKIPPED", mr.HGet(key, "state"))
	assert.Equal(t, "stale_data", mr.HGet(key, "skip_reason"))
	assert.Equal(t, "eval-2", mr.HGet(key, "evaluation_id"))
	assert.Equal(t, "1", mr.HGet(key, "would_trade"), "last decided numbers stay")

	entries, err := rdb.XRange(ctx, "engine:decisions", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SKIPPED", entries[1].Values["state"])

	var v bot.SymbolView
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &v))
	assert.Equal(t, "eval-1", v.EvaluationID)
	assert.Nil(t, v.Debug, "debug payload is not streamed")
}
