package market

import (
	"sync"
	"time"
)

// BarAggregator 从成交流生成固定周期的 Bar，周期按 Interval 对齐。
type BarAggregator struct {
	Interval time.Duration
	mu       sync.Mutex
	current  *Bar
}

func NewBarAggregator(interval time.Duration) *BarAggregator {
	return &BarAggregator{Interval: interval}
}

// OnTrade 更新当前 Bar；跨周期时返回已闭合的上一根，否则返回 nil。
func (a *BarAggregator) OnTrade(price, qty float64, ts time.Time) *Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := ts.Truncate(a.Interval)
	if a.current == nil || !start.Equal(a.current.Ts) {
		closed := a.current
		a.current = &Bar{
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: qty,
			Ts:     start,
		}
		return closed
	}

	if price > a.current.High {
		a.current.High = price
	}
	if price < a.current.Low {
		a.current.Low = price
	}
	a.current.Close = price
	a.current.Volume += qty
	return nil
}

// Flush 返回并清空尚未闭合的 Bar。
func (a *BarAggregator) Flush() *Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.current
	a.current = nil
	return b
}
