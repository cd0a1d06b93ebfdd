// Package dash serves a small read-only JSON API and HTML page over the
// orchestrator's current views.
package dash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/bot"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/core"
)

// Views is the read side of the orchestrator.
type Views interface {
	Views() []bot.SymbolView
	View(symbol string) (bot.SymbolView, bool)
}

// Row is one symbol flattened for the table.
type Row struct {
	Symbol string `json:"symbol"`
	State  string `json:"state"`
	Skip   string `json:"skip,omitempty"`

	CEXBid   float64 `json:"cexBid"`
	CEXAsk   float64 `json:"cexAsk"`
	DEXPrice float64 `json:"dexPrice"`

	RawSpreadBps float64 `json:"rawSpreadBps"`
	EdgeBps      float64 `json:"edgeBps"`
	WouldTrade   bool    `json:"wouldTrade"`
	Direction    string  `json:"direction"`

	Alignment    string   `json:"alignment"`
	RequiredUSDT *float64 `json:"requiredUsdt"`
	Confidence   string   `json:"confidence"`

	TS int64 `json:"ts"`
}

func rowOf(v bot.SymbolView) Row {
	r := Row{
		Symbol: v.Symbol,
		State:  string(v.State),
		Skip:   string(v.SkipReason),
		TS:     v.EvaluatedAt.UnixMilli(),
	}
	if d := v.Decision; d != nil {
		r.CEXBid, r.CEXAsk, r.DEXPrice = d.CEXBid, d.CEXAsk, d.DEXPrice
		r.RawSpreadBps = d.RawSpreadBps
		r.EdgeBps = d.EdgeAfterCostsBps
		r.WouldTrade = d.WouldTrade
		r.Direction = string(d.Direction)
	}
	if a := v.Alignment; a != nil {
		r.Alignment = string(a.Status)
		r.RequiredUSDT = a.RequiredUSDT
		r.Confidence = string(a.Confidence)
	}
	return r
}

// Rows returns one row per symbol, sorted.
func Rows(src Views) []Row {
	views := src.Views()
	out := make([]Row, 0, len(views))
	for _, v := range views {
		out = append(out, rowOf(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Handler wires the API. providers may be nil.
func Handler(src Views, providers func() []core.ProviderStatus) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/dash", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Rows(src))
	})
	mux.HandleFunc("/api/decisions", func(w http.ResponseWriter, r *http.Request) {
		views := src.Views()
		for i := range views {
			views[i].Debug = nil
		}
		writeJSON(w, http.StatusOK, views)
	})
	alignment := func(w http.ResponseWriter, r *http.Request) {
		symbol := r.PathValue("symbol")
		if symbol == "" {
			symbol = r.URL.Query().Get("symbol")
		}
		v, ok := src.View(symbol)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown symbol " + symbol})
			return
		}
		resp := struct {
			Symbol    string      `json:"symbol"`
			State     bot.State   `json:"state"`
			Alignment interface{} `json:"alignment"`
			Debug     interface{} `json:"debug,omitempty"`
		}{Symbol: v.Symbol, State: v.State, Alignment: v.Alignment}
		if r.URL.Query().Get("debug") == "1" && v.Debug != nil {
			resp.Debug = v.Debug
		}
		writeJSON(w, http.StatusOK, resp)
	}
	// symbols contain a slash, so the path form takes the rest of the path
	mux.HandleFunc("/api/alignment/{symbol...}", alignment)
	mux.HandleFunc("/api/alignment", alignment)
	mux.HandleFunc("/api/providers", func(w http.ResponseWriter, r *http.Request) {
		var st []core.ProviderStatus
		if providers != nil {
			st = providers()
		}
		writeJSON(w, http.StatusOK, st)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexHTML)
	})
	return withCORS(mux)
}

// StartHTTP serves h on addr until ctx ends.
func StartHTTP(ctx context.Context, h http.Handler, addr string, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("dash listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dash http server: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const indexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>CEX / DEX Alignment</title>
  <style>
    :root { --bg:#f8fafc; --card:#fff; --muted:#6b7280; --chip:#e5e7eb; }
    body{margin:0;background:var(--bg);font:14px/1.4 ui-sans-serif,system-ui,-apple-system,Segoe UI,Roboto,Ubuntu; color:#111827;}
    .wrap{max-width:1080px;margin:24px auto;padding:0 16px;}
    .hdr{display:flex;align-items:flex-end;justify-content:space-between;margin-bottom:12px;}
    .state{font-size:12px;padding:2px 8px;border-radius:999px;background:#d1fae5;color:#065f46;}
    table{width:100%;border-collapse:collapse;background:var(--card);border-radius:16px;overflow:hidden;box-shadow:0 10px 30px rgba(0,0,0,.06);}
    thead{background:#f3f4f6;} th,td{padding:12px 14px;text-align:left;} tbody tr{border-top:1px solid #f3f4f6;}
    .chip{display:inline-block;font-size:12px;padding:2px 8px;background:var(--chip);border-radius:999px;color:#374151;}
    .pct{padding:2px 8px;border-radius:8px;font-size:12px;}
    .pct.ok{background:#dcfce7;color:#166534;} .pct.bad{background:#fee2e2;color:#991b1b;} .pct.dim{background:#f3f4f6;color:#6b7280;}
    .sub{color:var(--muted);font-size:12px;margin:0;}
  </style>
</head>
<body>
<div class="wrap">
  <div class="hdr">
    <div>
      <h1 style="margin:0;font-size:22px;font-weight:600">CEX / DEX Alignment</h1>
      <p class="sub">Reference CEX mid vs Uniswap ladder</p>
    </div>
    <div id="state" class="state">live</div>
  </div>
  <table>
    <thead>
      <tr>
        <th>Symbol</th><th>State</th><th>CEX (bid/ask)</th><th>DEX px</th>
        <th>Edge</th><th>Alignment</th><th>Required USDT</th>
        <th style="text-align:right">Updated</th>
      </tr>
    </thead>
    <tbody id="rows"></tbody>
  </table>
  <p class="sub" style="margin-top:8px">Edge is the raw spread minus modeled costs, in bps of the quote size.</p>
</div>
<script>
  function usd(x){ return (x==null||isNaN(x)||x===0) ? '—' : ('$'+Number(x).toLocaleString(undefined,{maximumFractionDigits:6})); }
  function bps(x){ return (x==null||isNaN(x)) ? '—' : (Number(x).toFixed(1)+' bps'); }
  function rowHTML(r){
    var cls = r.wouldTrade ? 'ok' : ((r.edgeBps||0) < 0 ? 'bad' : 'dim');
    return '<tr>'
      + '<td><strong>' + (r.symbol||'') + '</strong></td>'
      + '<td><span class="chip">' + (r.state||'') + (r.skip ? ' · '+r.skip : '') + '</span></td>'
      + '<td>' + usd(r.cexBid) + ' <span style="color:#9CA3AF">/</span> ' + usd(r.cexAsk) + '</td>'
      + '<td>' + usd(r.dexPrice) + '</td>'
      + '<td><span class="pct ' + cls + '">' + bps(r.edgeBps) + '</span></td>'
      + '<td><span class="chip">' + (r.alignment||'—') + '</span> <span class="chip">' + (r.confidence||'') + '</span></td>'
      + '<td>' + usd(r.requiredUsdt) + '</td>'
      + '<td style="text-align:right;color:#6B7280;font-size:12px">' + new Date(r.ts||Date.now()).toLocaleTimeString() + '</td>'
      + '</tr>';
  }
  async function tick(){
    try{
      var res = await fetch('/api/dash', {cache:'no-store'});
      if(!res.ok) throw new Error('status '+res.status);
      var data = await res.json();
      document.getElementById('state').textContent = 'live';
      document.getElementById('rows').innerHTML = data.map(rowHTML).join('');
    }catch(e){
      document.getElementById('state').textContent = 'offline';
    }
  }
  tick(); setInterval(tick, 1000);
</script>
</body>
</html>`
