package market

import "time"

// Bar 固定周期的 OHLCV。Ts 为周期起点。
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Ts     time.Time
}

// Valid reports whether the bar carries a usable, internally consistent price.
func (b Bar) Valid() bool {
	if b.Close <= 0 || b.High < b.Low {
		return false
	}
	return b.Close <= b.High && b.Close >= b.Low
}
