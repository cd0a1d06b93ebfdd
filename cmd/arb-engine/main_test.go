package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/core"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			want: options{
				ConfigPath: "./config.yaml",
				Watch:      true,
				FeeTiers:   []uint32{100, 500, 3000, 10000},
				Bootstrap:  30 * time.Second,
			},
		},
		{
			name: "overrides",
			args: []string{"-config", "/etc/engine.yaml", "-watch=false", "-check-pools", "-tiers", "500, 3000", "-bootstrap-timeout", "5s"},
			want: options{
				ConfigPath: "/etc/engine.yaml",
				CheckPools: true,
				FeeTiers:   []uint32{500, 3000},
				Bootstrap:  5 * time.Second,
			},
		},
		{name: "bad tier", args: []string{"-tiers", "500,abc"}, wantErr: true},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stubProvider struct{ err error }

func (stubProvider) Name() string { return core.ProviderUniswapUIScraper }

func (p stubProvider) FetchLadder(context.Context, string) (types.QuoteLadder, error) {
	return types.QuoteLadder{}, p.err
}

func (p stubProvider) Healthy(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	assert.Nil(t, ready(nil))

	empty := core.NewChain(nil, time.Minute, zap.NewNop())
	assert.Error(t, ready(empty)())

	chain := core.NewChain([]core.LadderProvider{stubProvider{err: errors.New("down")}}, time.Minute, zap.NewNop())
	check := ready(chain)
	require.NoError(t, check())

	chain.CheckHealth(context.Background())
	assert.EqualError(t, check(), "no healthy ladder provider")
}
