// Package broadcast fans out snapshot values to any number of listeners.
package broadcast

import "sync"

// Broadcaster delivers published values to buffered subscriber channels.
// It keeps the most recent value so new subscribers get an immediate sample.
// Sends never block: a subscriber whose buffer is full misses that value.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	subs     map[int]chan T
	nextID   int
	last     T
	haveLast bool
	closed   bool
}

func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: make(map[int]chan T),
	}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel; calling it more than once is harmless.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan T, buffer)
	if b == nil {
		close(ch)
		return ch, func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster[T]) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish records v as the latest value and offers it to every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	if b == nil {
		return
	}
	// Sends are non-blocking, so holding the lock here is cheap and keeps
	// unsubscribe from closing a channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = v
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Last returns the most recently published value.
func (b *Broadcaster[T]) Last() (T, bool) {
	if b == nil {
		var zero T
		return zero, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.haveLast
}

// Subscribers returns the number of registered listeners.
func (b *Broadcaster[T]) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later Publish calls are dropped and
// later Subscribe calls return an already-closed channel.
func (b *Broadcaster[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
