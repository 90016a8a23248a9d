// Package playback coordinates audio players so only one set plays at a
// time: starting one pauses whichever was playing before.
package playback

import "sync"

// Coordinator tracks which set is currently playing and notifies
// subscribers when the active set changes. Each connected client registers
// an observer and pauses its local player whenever the active ID stops
// matching its own.
//
// Safe for concurrent use.
type Coordinator struct {
	mu        sync.Mutex
	active    string
	nextSub   int
	observers map[int]func(activeID string)
}

// NewCoordinator creates a coordinator with nothing playing.
func NewCoordinator() *Coordinator {
	return &Coordinator{observers: make(map[int]func(string))}
}

// Play marks setID as the actively playing set and notifies observers.
// Playing the set that is already active is a no-op.
func (c *Coordinator) Play(setID string) {
	c.setActive(setID)
}

// Pause clears the active set if it is setID. Pausing a set that is not
// active is a no-op, so a late pause from a superseded player is harmless.
func (c *Coordinator) Pause(setID string) {
	c.mu.Lock()
	if c.active != setID {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setActive("")
}

// Stop clears the active set unconditionally.
func (c *Coordinator) Stop() {
	c.setActive("")
}

// Active returns the ID of the currently playing set, or the empty string.
func (c *Coordinator) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Subscribe registers an observer invoked with the active set ID on every
// change, and returns an unsubscribe function. The observer runs without
// the coordinator lock held and must not block.
func (c *Coordinator) Subscribe(fn func(activeID string)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) setActive(setID string) {
	c.mu.Lock()
	if c.active == setID {
		c.mu.Unlock()
		return
	}
	c.active = setID
	observers := make([]func(string), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(setID)
	}
}
