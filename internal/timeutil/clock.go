// Package timeutil provides a testable abstraction over the time operations
// the poll scheduler depends on.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// NewTicker returns a new Ticker containing a channel that will
	// send the time with a period specified by the duration argument.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers "ticks" of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	C() <-chan time.Time

	// Stop turns off a ticker.
	Stop()

	// Reset stops a ticker and resets its period to the specified duration.
	Reset(d time.Duration)
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }
func (t *realTicker) Reset(d time.Duration) {
	t.ticker.Reset(d)
}

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set sets the mock clock to a specific time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock clock forward by the given duration and fires any
// ticker whose period has elapsed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := c.tickers
	c.mu.Unlock()

	for _, t := range tickers {
		t.checkAndFire(now)
	}
}

// NewTicker creates a new MockTicker.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		ch:       make(chan time.Time, 1),
		nextTick: c.now.Add(d),
		duration: d,
	}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTicker is a manually controlled ticker for testing.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	nextTick time.Time
	duration time.Duration
	stopped  bool
}

// C returns the ticker channel.
func (t *MockTicker) C() <-chan time.Time {
	return t.ch
}

// Stop turns off the ticker.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Reset restarts the ticker with the specified period.
func (t *MockTicker) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
	t.duration = d
}

// Duration returns the ticker's current period.
func (t *MockTicker) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Trigger manually sends a tick with the given time.
func (t *MockTicker) Trigger(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

func (t *MockTicker) checkAndFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	for !now.Before(t.nextTick) {
		select {
		case t.ch <- t.nextTick:
		default:
		}
		t.nextTick = t.nextTick.Add(t.duration)
	}
}
