package game

import (
	"fmt"
	"sync"
)

// Clock is the in-game calendar. The world advances one step per turn;
// it does not run in real time.
type Clock struct {
	mu             sync.Mutex
	day            int
	minuteOfDay    int
	minutesPerTurn int
}

// NewClock starts on day 1 at 08:00, advancing 45 in-game minutes per
// turn.
func NewClock() *Clock {
	return &Clock{day: 1, minuteOfDay: 8 * 60, minutesPerTurn: 45}
}

// Advance moves the clock forward by one turn.
func (c *Clock) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minuteOfDay += c.minutesPerTurn
	for c.minuteOfDay >= 24*60 {
		c.minuteOfDay -= 24 * 60
		c.day++
	}
}

// Stamp renders the current in-game time, e.g. "Day 3, 14:15".
func (c *Clock) Stamp() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Day %d, %02d:%02d", c.day, c.minuteOfDay/60, c.minuteOfDay%60)
}

// State returns the persistable clock position.
func (c *Clock) State() (day, minuteOfDay int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day, c.minuteOfDay
}

// Restore sets the clock from persisted state.
func (c *Clock) Restore(day, minuteOfDay int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if day > 0 {
		c.day = day
	}
	if minuteOfDay >= 0 && minuteOfDay < 24*60 {
		c.minuteOfDay = minuteOfDay
	}
}
