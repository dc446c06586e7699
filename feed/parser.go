package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wavelet-signal-go/market"
)

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	Event  string       `json:"e"`
	Symbol string       `json:"s"`
	Kline  klinePayload `json:"k"`
}

type klinePayload struct {
	Start  int64       `json:"t"`
	Open   json.Number `json:"o"`
	High   json.Number `json:"h"`
	Low    json.Number `json:"l"`
	Close  json.Number `json:"c"`
	Volume json.Number `json:"v"`
	Closed bool        `json:"x"`
}

type aggTradeEvent struct {
	Event    string      `json:"e"`
	Symbol   string      `json:"s"`
	Price    json.Number `json:"p"`
	Quantity json.Number `json:"q"`
	Time     int64       `json:"T"`
}

// Trade 单笔聚合成交。
type Trade struct {
	Symbol string
	Price  float64
	Qty    float64
	Ts     time.Time
}

// ParseKline 解析 combined stream 的 kline 消息，closed 表示该 bar 已收盘。
func ParseKline(raw []byte) (bar market.Bar, closed bool, err error) {
	var msg CombinedMessage
	if err = json.Unmarshal(raw, &msg); err != nil {
		return
	}
	var ev klineEvent
	if err = json.Unmarshal(msg.Data, &ev); err != nil {
		return
	}
	if ev.Event != "kline" {
		err = fmt.Errorf("unexpected event %q on %s", ev.Event, msg.Stream)
		return
	}
	k := ev.Kline
	fields := []struct {
		dst *float64
		src json.Number
	}{
		{&bar.Open, k.Open}, {&bar.High, k.High}, {&bar.Low, k.Low},
		{&bar.Close, k.Close}, {&bar.Volume, k.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = f.src.Float64(); err != nil {
			return market.Bar{}, false, fmt.Errorf("kline %s: %w", msg.Stream, err)
		}
	}
	bar.Ts = time.UnixMilli(k.Start).UTC()
	return bar, k.Closed, nil
}

// ParseAggTrade 解析 combined stream 的 aggTrade 消息。
func ParseAggTrade(raw []byte) (Trade, error) {
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Trade{}, err
	}
	var ev aggTradeEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return Trade{}, err
	}
	if ev.Event != "aggTrade" {
		return Trade{}, fmt.Errorf("unexpected event %q on %s", ev.Event, msg.Stream)
	}
	price, err := ev.Price.Float64()
	if err != nil {
		return Trade{}, fmt.Errorf("aggTrade price: %w", err)
	}
	qty, err := ev.Quantity.Float64()
	if err != nil {
		return Trade{}, fmt.Errorf("aggTrade qty: %w", err)
	}
	return Trade{Symbol: ev.Symbol, Price: price, Qty: qty, Ts: time.UnixMilli(ev.Time).UTC()}, nil
}

// ParseInterval converts a binance interval name (1m, 15m, 4h, 1d, 1w) to a
// duration.
func ParseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return time.Duration(n) * unit, nil
}

// StreamName 返回订阅名，例如 btcusdt@kline_1m 或 btcusdt@aggTrade。
func StreamName(kind Kind, symbol, interval string) string {
	sym := strings.ToLower(symbol)
	if kind == KindAggTrade {
		return sym + "@aggTrade"
	}
	return sym + "@kline_" + interval
}
