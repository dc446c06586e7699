package market

import "sync"

// Publisher 一个轻量 Bar 分发器，慢订阅者丢弃而不阻塞发布方。
type Publisher struct {
	mu   sync.RWMutex
	subs []chan Bar
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Subscribe(buffer int) <-chan Bar {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Bar, buffer)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// Publish 返回被丢弃的订阅数。
func (p *Publisher) Publish(b Bar) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	dropped := 0
	for _, ch := range p.subs {
		select {
		case ch <- b:
		default:
			dropped++
		}
	}
	return dropped
}

// Close closes every subscriber channel.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}
