package feed

import "sync"

// Subscriber hands out change-feed subscriptions.
type Subscriber interface {
	Subscribe(scope string) *Subscription
}

// Broker is a subscriber that also accepts publishes; stores publish an
// event after every successful write.
type Broker interface {
	Subscriber
	Publish(scope string, evt Event)
}

// Subscription is one listener's channel onto the feed. Close releases the
// channel; events arriving while the listener is slow are dropped rather
// than blocking the publisher.
type Subscription struct {
	C       <-chan Event
	once    sync.Once
	release func()
}

func (s *Subscription) Close() {
	s.once.Do(s.release)
}

// MemoryBroker fans events out in-process. It serves single-process
// deployments and tests.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // scope -> set of channels
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *MemoryBroker) Subscribe(scope string) *Subscription {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[scope] == nil {
		b.subs[scope] = map[chan Event]struct{}{}
	}
	b.subs[scope][ch] = struct{}{}
	b.mu.Unlock()
	return &Subscription{C: ch, release: func() { b.remove(scope, ch) }}
}

func (b *MemoryBroker) remove(scope string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[scope]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, scope)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *MemoryBroker) Publish(scope string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[scope] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
