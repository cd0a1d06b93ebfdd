package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

const chanPrefix = "spot@public.bookTicker.v3.api@"

type WS struct {
	URL    string
	Venue  string
	Dialer *websocket.Dialer
	conn   *websocket.Conn
	mu     sync.Mutex
	now    func() time.Time
}

func NewWS(url, venue string) *WS {
	return &WS{
		URL:   strings.TrimRight(url, "/"),
		Venue: venue,
		Dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
		now: time.Now,
	}
}

func (w *WS) connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return nil
	}
	h := http.Header{"Origin": []string{"https://www.mexc.com"}}
	c, _, err := w.Dialer.DialContext(ctx, w.URL, h)
	if err != nil {
		return err
	}
	w.conn = c

	_ = c.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(90 * time.Second))
	})
	return nil
}

func (w *WS) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

func (w *WS) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return websocket.ErrCloseSent
	}
	return w.conn.WriteJSON(v)
}

type bookTickerPush struct {
	Channel string `json:"c"`
	Symbol  string `json:"s"`
	TS      int64  `json:"t"`
	Data    struct {
		Ask    string `json:"a"`
		AskQty string `json:"A"`
		Bid    string `json:"b"`
		BidQty string `json:"B"`
	} `json:"d"`
}

// SubscribeBookTicker streams best bid/ask for symbols, keyed by canonical
// name ("CSR/USDT") to venue name ("CSRUSDT"). The channel closes when the
// connection drops or ctx ends.
func (w *WS) SubscribeBookTicker(ctx context.Context, symbols map[string]string) (<-chan types.Ticker, error) {
	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	canonical := make(map[string]string, len(symbols))
	params := make([]string, 0, len(symbols))
	for sym, venueSym := range symbols {
		if venueSym == "" {
			venueSym = VenueSymbol(sym)
		}
		venueSym = strings.ToUpper(venueSym)
		canonical[venueSym] = sym
		params = append(params, chanPrefix+venueSym)
	}
	sub := struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{Method: "SUBSCRIPTION", Params: params}

	if err := w.write(sub); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	out := make(chan types.Ticker, 1024)

	go func() {
		defer close(out)
		defer w.Close()

		pingStop := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					_ = w.Close()
					return
				case <-pingStop:
					return
				case <-t.C:
					_ = w.write(map[string]string{"method": "PING"})
				}
			}
		}()
		defer close(pingStop)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

			var push bookTickerPush
			if json.Unmarshal(data, &push) != nil || !strings.HasPrefix(push.Channel, chanPrefix) {
				// acks and PONGs
				continue
			}
			sym, ok := canonical[strings.ToUpper(push.Symbol)]
			if !ok {
				continue
			}

			bid, _ := strconv.ParseFloat(push.Data.Bid, 64)
			ask, _ := strconv.ParseFloat(push.Data.Ask, 64)
			if bid == 0 && ask == 0 {
				continue
			}
			t := types.Ticker{
				Venue:      w.Venue,
				Symbol:     sym,
				Bid:        bid,
				Ask:        ask,
				ReceivedAt: w.now(),
			}
			if push.TS > 0 {
				ts := time.UnixMilli(push.TS)
				t.SourceTs = &ts
			}

			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Run keeps a subscription alive, reconnecting with capped backoff, and hands
// every ticker to submit. It returns when ctx ends.
func (w *WS) Run(ctx context.Context, symbols map[string]string, submit func(context.Context, types.Ticker) error, log *zap.Logger) error {
	backoff := time.Second
	for {
		ch, err := w.SubscribeBookTicker(ctx, symbols)
		if err != nil {
			log.Warn("mexc ws connect", zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			backoff = time.Second
			for t := range ch {
				if err := submit(ctx, t); err != nil && ctx.Err() == nil {
					log.Warn("mexc ws ticker rejected", zap.String("symbol", t.Symbol), zap.Error(err))
				}
			}
			log.Info("mexc ws disconnected")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
