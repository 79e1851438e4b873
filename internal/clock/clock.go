// Package clock provides calendar arithmetic in the service's fixed timezone,
// so "today" is stable regardless of the host's local timezone.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ledgerbot/internal/core"
)

// DefaultTimezone is the service locale all calendar computations use.
const DefaultTimezone = "Asia/Taipei"

// Clock computes dates and ranges in one fixed IANA timezone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New creates a Clock for the given IANA timezone name.
func New(tz string) (*Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewAt creates a Clock with an injected time source, for tests.
func NewAt(tz string, now func() time.Time) (*Clock, error) {
	c, err := New(tz)
	if err != nil {
		return nil, err
	}
	c.now = now
	return c, nil
}

// Location returns the fixed timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the fixed timezone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current date in the fixed timezone.
func (c *Clock) Today() core.Date {
	return core.DateOf(c.Now())
}

// CurrentWeekRange returns Monday through Sunday of the week containing today.
func (c *Clock) CurrentWeekRange() (core.Date, core.Date) {
	today := c.Today()
	// time.Weekday has Sunday == 0; shift to Monday-based.
	offset := (int(today.Weekday()) + 6) % 7
	start := today.AddDays(-offset)
	return start, start.AddDays(6)
}

// CurrentMonthRange returns the first through last day of the current month.
func (c *Clock) CurrentMonthRange() (core.Date, core.Date) {
	today := c.Today()
	return monthBounds(today.Year(), int(today.Month()))
}

// MonthRange returns the first through last day of an arbitrary "YYYY-MM"
// month. Fails with core.ErrInvalidMonth if the string does not parse as a
// valid year and month 1-12.
func (c *Clock) MonthRange(ym string) (core.Date, core.Date, error) {
	ys, ms, ok := strings.Cut(strings.TrimSpace(ym), "-")
	if !ok || len(ys) != 4 || len(ms) != 2 {
		return core.Date{}, core.Date{}, core.ErrInvalidMonth
	}
	year, err := strconv.Atoi(ys)
	if err != nil {
		return core.Date{}, core.Date{}, core.ErrInvalidMonth
	}
	month, err := strconv.Atoi(ms)
	if err != nil || month < 1 || month > 12 {
		return core.Date{}, core.Date{}, core.ErrInvalidMonth
	}
	start, end := monthBounds(year, month)
	return start, end, nil
}

// monthBounds steps to day 1 of the next month and subtracts one day, which
// handles the December to January year rollover.
func monthBounds(year, month int) (core.Date, core.Date) {
	start := core.NewDate(year, month, 1)
	end := core.NewDate(year, month+1, 1).AddDays(-1)
	return start, end
}
