package undo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCoordinator() (*Coordinator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewCoordinatorWithClock(clock.Now), clock
}

func TestInvokeWithinWindow(t *testing.T) {
	c, clock := newTestCoordinator()

	calls := 0
	invoker := c.Register("k", func() error { calls++; return nil }, 10*time.Second)

	clock.Advance(9999 * time.Millisecond)
	assert.NoError(t, invoker())
	assert.Equal(t, 1, calls)

	// Exactly once
	assert.ErrorIs(t, invoker(), ErrExpired)
	assert.Equal(t, 1, calls)
}

func TestInvokeAfterExpiry(t *testing.T) {
	c, clock := newTestCoordinator()

	calls := 0
	invoker := c.Register("k", func() error { calls++; return nil }, 10*time.Second)

	clock.Advance(10001 * time.Millisecond)
	assert.ErrorIs(t, invoker(), ErrExpired)
	assert.Zero(t, calls)
}

func TestReregisterReplacesWindow(t *testing.T) {
	c, _ := newTestCoordinator()

	var first, second int
	invoker1 := c.Register("k", func() error { first++; return nil }, 10*time.Second)
	invoker2 := c.Register("k", func() error { second++; return nil }, 10*time.Second)

	assert.ErrorIs(t, invoker1(), ErrExpired)
	assert.NoError(t, invoker2())
	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestDismiss(t *testing.T) {
	c, _ := newTestCoordinator()

	invoker := c.Register("k", func() error { return nil }, 10*time.Second)
	c.Dismiss("k")
	assert.ErrorIs(t, invoker(), ErrExpired)
}

func TestInvokeByKey(t *testing.T) {
	c, _ := newTestCoordinator()

	assert.ErrorIs(t, c.Invoke("missing"), ErrExpired)

	calls := 0
	c.Register("k", func() error { calls++; return nil }, 10*time.Second)
	assert.NoError(t, c.Invoke("k"))
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, c.Invoke("k"), ErrExpired)
}

func TestUndoFnErrorPropagates(t *testing.T) {
	c, _ := newTestCoordinator()

	boom := errors.New("boom")
	invoker := c.Register("k", func() error { return boom }, 10*time.Second)
	assert.ErrorIs(t, invoker(), boom)
}

func TestIndependentKeys(t *testing.T) {
	c, _ := newTestCoordinator()

	var a, b int
	ia := c.Register("a", func() error { a++; return nil }, 10*time.Second)
	ib := c.Register("b", func() error { b++; return nil }, 10*time.Second)

	assert.NoError(t, ia())
	assert.NoError(t, ib())
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
