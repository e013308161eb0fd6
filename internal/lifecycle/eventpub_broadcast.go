package lifecycle

import "sync"

// BroadcastPublisher fans events out to live subscribers. Slow subscribers
// lose events instead of blocking the scheduler.
type BroadcastPublisher struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBroadcastPublisher() *BroadcastPublisher {
	return &BroadcastPublisher{subs: make(map[int]chan Event)}
}

func (p *BroadcastPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a buffered event channel. The returned cancel func
// removes the subscription and closes the channel.
func (p *BroadcastPublisher) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan Event, 64)
	p.subs[id] = ch
	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
