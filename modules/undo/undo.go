// Package undo tracks short-lived reversal windows for destructive actions.
//
// Windows live in process memory only: they are scoped to the session that
// opened them and are forfeited on restart. There is no durable undo ledger.
package undo

import (
	"sync"
	"time"

	"github.com/TheLab-ms/bench/engine"
)

// DefaultTimeout is the undo window applied when the caller doesn't pick one.
const DefaultTimeout = 10 * time.Second

// ErrExpired signals that the undo window has already closed or been
// superseded. It's a benign no-op from the caller's perspective.
var ErrExpired = &engine.APIError{Status: 410, Code: engine.CodeUndoExpired, Message: "the undo window has expired"}

// Invoker reverses the action it was registered for. It can succeed at most
// once; after the window expires it returns ErrExpired.
type Invoker func() error

type window struct {
	fn       func() error
	deadline time.Time
}

type Coordinator struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewCoordinator() *Coordinator {
	return NewCoordinatorWithClock(time.Now)
}

// NewCoordinatorWithClock injects the clock so tests can cross the window
// boundary without sleeping.
func NewCoordinatorWithClock(now func() time.Time) *Coordinator {
	return &Coordinator{windows: map[string]*window{}, now: now}
}

// Register opens an undo window for the given key. Registering a key that
// already has a live window discards the previous one - no two live windows
// ever share a key. Both expiry and invocation deregister the key so the map
// doesn't grow over the life of the process.
func (c *Coordinator) Register(key string, fn func() error, timeout time.Duration) Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &window{fn: fn, deadline: c.now().Add(timeout)}
	c.windows[key] = w

	// Reap the entry once it can no longer fire. The identity check makes
	// sure a replacement window registered under the same key survives.
	time.AfterFunc(timeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.windows[key] == w {
			delete(c.windows, key)
		}
	})

	return func() error { return c.invoke(key, w) }
}

func (c *Coordinator) invoke(key string, w *window) error {
	c.mu.Lock()
	if c.windows[key] != w || c.now().After(w.deadline) {
		c.mu.Unlock()
		return ErrExpired
	}
	delete(c.windows, key)
	c.mu.Unlock()

	return w.fn()
}

// Dismiss closes the window for a key without invoking it.
func (c *Coordinator) Dismiss(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
}

// Invoke fires the live window for a key, if any.
func (c *Coordinator) Invoke(key string) error {
	c.mu.Lock()
	w, ok := c.windows[key]
	c.mu.Unlock()
	if !ok {
		return ErrExpired
	}
	return c.invoke(key, w)
}
