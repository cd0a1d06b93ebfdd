// Package redisfeed moves engine traffic over Redis: upstream ticks and
// ladders come in on streams, decisions go out as hashes plus a stream.
package redisfeed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/ingest"
	imetrics "github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/metrics"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

// NewClient dials Redis with the configured credentials.
func NewClient(cfg config.RedisCfg) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Username: cfg.Username,
		Password: cfg.Password,
	})
}

// Submitter is where parsed updates are delivered.
type Submitter interface {
	SubmitTicker(ctx context.Context, t types.Ticker) error
	SubmitLadder(ctx context.Context, l types.QuoteLadder) error
}

type Consumer struct {
	rdb      redis.UniversalClient
	cfg      config.RedisCfg
	sub      Submitter
	log      *zap.Logger
	now      func() time.Time
	errPause time.Duration
}

func NewConsumer(rdb redis.UniversalClient, cfg config.RedisCfg, sub Submitter, log *zap.Logger) *Consumer {
	return &Consumer{rdb: rdb, cfg: cfg, sub: sub, log: log, now: time.Now, errPause: 200 * time.Millisecond}
}

// EnsureGroups creates the consumer group on both input streams. Only entries
// added after creation are delivered; a restart does not replay old prices as
// if they were fresh.
func (c *Consumer) EnsureGroups(ctx context.Context) error {
	for _, s := range []string{c.cfg.TickStream, c.cfg.LadderStream} {
		err := c.rdb.XGroupCreateMkStream(ctx, s, c.cfg.Group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return err
		}
	}
	return nil
}

// Run reads both streams until ctx ends. Every entry is acked, including
// ones that fail to parse.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroups(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := c.poll(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("redis feed read", zap.Error(err))
			time.Sleep(c.errPause)
			continue
		}
		if n > 0 {
			c.log.Debug("redis feed batch", zap.Int("entries", n))
		}
	}
}

// poll does one XREADGROUP round; a negative block returns immediately.
func (c *Consumer) poll(ctx context.Context, block time.Duration) (int, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.TickStream, c.cfg.LadderStream, ">", ">"},
		Count:    200,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, s := range streams {
		for _, m := range s.Messages {
			c.handle(ctx, s.Stream, m)
			_ = c.rdb.XAck(ctx, s.Stream, c.cfg.Group, m.ID).Err()
			n++
		}
	}
	return n, nil
}

func (c *Consumer) handle(ctx context.Context, stream string, m redis.XMessage) {
	payload, _ := m.Values["payload"].(string)
	now := c.now()

	var (
		kind string
		err  error
	)
	switch stream {
	case c.cfg.TickStream:
		kind = "ticker"
		var t types.Ticker
		if t, err = ingest.ParseTicker([]byte(payload), now); err == nil {
			err = c.sub.SubmitTicker(ctx, t)
		}
	case c.cfg.LadderStream:
		kind = "ladder"
		var l types.QuoteLadder
		if l, err = ingest.ParseLadder([]byte(payload), now); err == nil {
			err = c.sub.SubmitLadder(ctx, l)
		}
	default:
		return
	}
	if err != nil {
		if errors.Is(err, types.ErrInvalidPayload) {
			imetrics.RejectedUpdates.WithLabelValues(kind).Inc()
		}
		c.log.Warn("redis feed entry dropped",
			zap.String("stream", stream),
			zap.String("id", m.ID),
			zap.Error(err),
		)
	}
}
