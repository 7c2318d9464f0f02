package testfixtures

import (
	"sync"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/occupancy"
)

// Clock provides a controllable time source for tests.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// NewClock returns a clock initialised to start, or to ReferenceTime when
// start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now as a function suitable for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Today is the calendar day of Now in UTC, the default for moves and
// inspections.
func (c *Clock) Today() occupancy.Date {
	return occupancy.DateOf(c.Now().UTC())
}

// SetDay moves the clock to the given day, keeping the time of day.
func (c *Clock) SetDay(value string) {
	day := Date(value).Time()
	c.mu.Lock()
	h, m, s := c.current.Clock()
	c.current = time.Date(day.Year(), day.Month(), day.Day(), h, m, s, c.current.Nanosecond(), time.UTC)
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
