// Package window computes the trailing release-date range used to select
// recent items and to prune stale ones.
package window

import (
	"math"
	"sync"
	"time"
)

// DefaultDays is used when a non-positive day count is given.
const DefaultDays = 3

const isoDate = "2006-01-02"

// Range is an inclusive range of calendar dates.
type Range struct {
	Start time.Time
	End   time.Time
}

// StartISO returns the first day of the range as YYYY-MM-DD.
func (r Range) StartISO() string {
	return r.Start.Format(isoDate)
}

// EndISO returns the last day of the range as YYYY-MM-DD.
func (r Range) EndISO() string {
	return r.End.Format(isoDate)
}

// String renders the range as "start..end".
func (r Range) String() string {
	return r.StartISO() + ".." + r.EndISO()
}

// Days returns the number of calendar days covered.
func (r Range) Days() int {
	return int(math.Round(r.End.Sub(r.Start).Hours()/24)) + 1
}

// Compute returns [today-(days-1), today] where today is the local date of now.
func Compute(now time.Time, days int) Range {
	if days < 1 {
		days = DefaultDays
	}
	y, m, d := now.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return Range{
		Start: end.AddDate(0, 0, -(days - 1)),
		End:   end,
	}
}

// Calculator produces ranges from a clock. Each call to Current reads the
// clock again unless Pin is set, in which case the first range is reused.
type Calculator struct {
	Days int
	Pin  bool
	// Now defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	pinned *Range
}

// NewCalculator returns a calculator reading the system clock.
func NewCalculator(days int, pin bool) *Calculator {
	return &Calculator{Days: days, Pin: pin}
}

// Current returns the range for the current clock reading.
func (c *Calculator) Current() Range {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Pin && c.pinned != nil {
		return *c.pinned
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	r := Compute(now(), c.Days)
	if c.Pin {
		c.pinned = &r
	}
	return r
}
