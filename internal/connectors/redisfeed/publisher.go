package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/bot"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
)

const decisionStreamMaxLen = 10_000

// Publisher mirrors orchestrator views into Redis: the latest state per
// symbol under <decision_ns><SYMBOL> and every evaluation on the decision
// stream.
type Publisher struct {
	rdb    redis.UniversalClient
	stream string
	ns     string
}

func NewPublisher(rdb redis.UniversalClient, cfg config.RedisCfg) *Publisher {
	return &Publisher{rdb: rdb, stream: cfg.DecisionStream, ns: cfg.DecisionNS}
}

// Publish implements bot.Sink. A skipped evaluation only touches the state
// fields so the hash keeps showing the last decided numbers.
func (p *Publisher) Publish(ctx context.Context, v bot.SymbolView) error {
	fields := map[string]interface{}{
		"state":         string(v.State),
		"skip_reason":   string(v.SkipReason),
		"evaluation_id": v.EvaluationID,
		"evaluated_at":  v.EvaluatedAt.UTC().Format(time.RFC3339Nano),
	}
	if v.State == bot.StateDecided {
		decision, err := json.Marshal(v.Decision)
		if err != nil {
			return fmt.Errorf("encode decision: %w", err)
		}
		alignment, err := json.Marshal(v.Alignment)
		if err != nil {
			return fmt.Errorf("encode alignment: %w", err)
		}
		fields["decided_at"] = v.DecidedAt.UTC().Format(time.RFC3339Nano)
		fields["decision"] = decision
		fields["alignment"] = alignment
		fields["decision_skip"] = string(v.DecisionSkip)
		if v.Decision != nil {
			fields["would_trade"] = v.Decision.WouldTrade
			fields["edge_bps"] = v.Decision.EdgeAfterCostsBps
		}
	}

	v.Debug = nil
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, p.ns+v.Symbol, fields)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: decisionStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"symbol":  v.Symbol,
			"state":   string(v.State),
			"payload": payload,
		},
	})
	_, err = pipe.Exec(ctx)
	return err
}
