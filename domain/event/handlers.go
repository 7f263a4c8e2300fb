package event

import "sync"

// Handler Each kind of event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event Event)
}

// Counter keeps a total per technical event type.
type Counter struct {
	mu     sync.RWMutex
	totals map[Type]uint64
}

func NewCounter() *Counter {
	return &Counter{totals: make(map[Type]uint64)}
}

func (c *Counter) Increment(t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totals[t]++
}

func (c *Counter) Get(t Type) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totals[t]
}

// Snapshot copies the totals so callers can render them without holding the lock.
func (c *Counter) Snapshot() map[Type]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make(map[Type]uint64, len(c.totals))
	for k, v := range c.totals {
		res[k] = v
	}
	return res
}
