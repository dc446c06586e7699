package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavelet-signal-go/market"
	"wavelet-signal-go/metrics"
)

// wsServer replays one scripted session per connection, then holds any
// further connection open until the client leaves.
type wsServer struct {
	*httptest.Server
	mu       sync.Mutex
	sessions [][]string
	conns    int
	streams  []string
}

func newWSServer(t *testing.T, sessions ...[]string) *wsServer {
	t.Helper()
	s := &wsServer{sessions: sessions}
	up := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.mu.Lock()
		idx := s.conns
		s.conns++
		s.streams = append(s.streams, r.URL.Query().Get("streams"))
		s.mu.Unlock()

		if idx < len(s.sessions) {
			for _, m := range s.sessions[idx] {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
					return
				}
			}
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) endpoint() string {
	return "ws://" + strings.TrimPrefix(s.URL, "http://")
}

func klineMsg(startMs int64, px float64, closed bool) string {
	return fmt.Sprintf(`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":%d,"o":"%g","h":"%g","l":"%g","c":"%g","v":"1","x":%t}}}`,
		startMs, px, px+1, px-1, px, closed)
}

func tradeMsg(ms int64, price, qty float64) string {
	return fmt.Sprintf(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"%g","q":"%g","T":%d}}`,
		price, qty, ms)
}

func collect(cancel context.CancelFunc, want int) (Handler, func() []market.Bar) {
	var mu sync.Mutex
	var bars []market.Bar
	h := func(b market.Bar) {
		mu.Lock()
		defer mu.Unlock()
		bars = append(bars, b)
		if len(bars) >= want {
			cancel()
		}
	}
	return h, func() []market.Bar {
		mu.Lock()
		defer mu.Unlock()
		return append([]market.Bar(nil), bars...)
	}
}

func TestStream_KlineReconnect(t *testing.T) {
	srv := newWSServer(t,
		[]string{klineMsg(0, 100, false), "not json", klineMsg(0, 101, true)},
		[]string{klineMsg(60000, 102, true)},
	)
	reg := prometheus.NewRegistry()
	col, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	s := NewStream(srv.endpoint(), "BTCUSDT", "1m", KindKline, WithMetrics(col))
	s.RetryBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, got := collect(cancel, 2)
	err = s.Run(ctx, h)
	require.ErrorIs(t, err, context.Canceled)

	bars := got()
	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 102.0, bars[1].Close)
	assert.Equal(t, time.UnixMilli(60000).UTC(), bars[1].Ts)
	assert.Equal(t, 1.0, testutil.ToFloat64(col.FeedReconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(col.FeedBars))
	assert.False(t, s.Connected())

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "btcusdt@kline_1m", srv.streams[0])
}

func TestStream_AggTradeBars(t *testing.T) {
	srv := newWSServer(t, []string{
		tradeMsg(0, 100, 1),
		tradeMsg(20000, 103, 2),
		tradeMsg(40000, 99, 1),
		tradeMsg(50000, 101, 1),
		tradeMsg(61000, 102, 1),
	})
	s := NewStream(srv.endpoint(), "BTCUSDT", "1m", KindAggTrade)
	s.RetryBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, got := collect(cancel, 1)
	require.ErrorIs(t, s.Run(ctx, h), context.Canceled)

	bars := got()
	require.Len(t, bars, 1)
	assert.Equal(t, market.Bar{Open: 100, High: 103, Low: 99, Close: 101, Volume: 5, Ts: time.UnixMilli(0).UTC()}, bars[0])
}

func TestStream_AggTradeDropsPartialBarOnReconnect(t *testing.T) {
	srv := newWSServer(t,
		[]string{tradeMsg(0, 100, 1), tradeMsg(20000, 103, 2)},
		[]string{
			tradeMsg(61000, 102, 1),
			tradeMsg(70000, 104, 1),
			tradeMsg(125000, 105, 1),
		},
	)
	s := NewStream(srv.endpoint(), "BTCUSDT", "1m", KindAggTrade)
	s.RetryBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, got := collect(cancel, 1)
	require.ErrorIs(t, s.Run(ctx, h), context.Canceled)

	bars := got()
	require.Len(t, bars, 1)
	assert.Equal(t, market.Bar{Open: 102, High: 104, Low: 102, Close: 104, Volume: 2, Ts: time.UnixMilli(60000).UTC()}, bars[0])
}

func TestStream_CancelWhileIdle(t *testing.T) {
	srv := newWSServer(t)
	s := NewStream(srv.endpoint(), "BTCUSDT", "1m", KindKline)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx, nil) }()

	require.Eventually(t, s.Connected, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStream_RetriesExhausted(t *testing.T) {
	srv := newWSServer(t)
	endpoint := srv.endpoint()
	srv.Close()

	s := NewStream(endpoint, "BTCUSDT", "1m", KindKline)
	s.RetryBackoff = time.Millisecond
	s.MaxRetries = 2
	err := s.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestStream_Misconfigured(t *testing.T) {
	s := NewStream("", "", "1m", KindKline)
	assert.Equal(t, DefaultEndpoint, s.Endpoint)
	assert.Error(t, s.Run(context.Background(), nil))

	s = NewStream("", "BTCUSDT", "fortnight", KindAggTrade)
	assert.Error(t, s.Run(context.Background(), nil))

	s = NewStream("", "BTCUSDT", "1m", Kind("depth"))
	assert.Error(t, s.Run(context.Background(), nil))
}
