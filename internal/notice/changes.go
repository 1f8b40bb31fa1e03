package notice

import "sync"

// Changes tells subscribers that some state changed, without saying what.
// Signals coalesce: a subscriber that has not yet drained its channel sees one
// pending signal however many changes happened.
type Changes struct {
	mu   sync.Mutex
	subs map[uint64]chan struct{}
	next uint64
}

// NewChanges creates an empty Changes.
func NewChanges() *Changes {
	return &Changes{subs: make(map[uint64]chan struct{})}
}

// Subscribe returns a signal channel and a function that ends the subscription.
func (c *Changes) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.next++
	id := c.next
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast signals every subscriber.
func (c *Changes) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
