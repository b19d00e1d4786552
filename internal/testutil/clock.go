package testutil

import (
	"fmt"
	"sync"
	"time"

	"recipebox/internal/recipebox"
)

// StubClock is a settable clock. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ recipebox.Clock = (*StubClock)(nil)

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return &StubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, so later edits sort newer.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out UUID-shaped ids in sequence, see StubID.
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

var _ recipebox.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return StubID(g.n)
}

// StubID returns the n-th id a fresh StubIDGenerator produces, starting at 1.
// Ids are version 4 UUIDs with the sequence number in the last group, so
// they sort in generation order.
func StubID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}
