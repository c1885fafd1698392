package calendar

import (
	"time"

	"github.com/rxtech-lab/argo-batch/pkg/errors"
)

// DateLayout is the layout of every trading date string in artifacts and file names.
const DateLayout = "2006-01-02"

// Calendar answers trading-day questions in the venue's timezone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
	open     time.Duration
	close    time.Duration
}

// New builds a calendar for the venue timezone. holidays are YYYY-MM-DD dates.
// open and close are offsets from local midnight.
func New(timezone string, holidays []string, open, close time.Duration) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "unknown timezone %q", timezone)
	}

	set := make(map[string]struct{}, len(holidays))

	for _, h := range holidays {
		if _, err := time.ParseInLocation(DateLayout, h, loc); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid holiday %q", h)
		}

		set[h] = struct{}{}
	}

	return &Calendar{
		loc:      loc,
		holidays: set,
		open:     open,
		close:    close,
	}, nil
}

// Location returns the venue timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Date returns the venue-local date of t as YYYY-MM-DD.
func (c *Calendar) Date(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date as venue-local midnight.
func (c *Calendar) ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, c.loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid date %q", date)
	}

	return t, nil
}

// Midnight returns venue-local midnight of the day containing t.
func (c *Calendar) Midnight(t time.Time) time.Time {
	local := t.In(c.loc)
	y, m, d := local.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// At returns the instant of hour:minute on the venue-local day containing t.
func (c *Calendar) At(t time.Time, hour, minute int) time.Time {
	local := t.In(c.loc)
	y, m, d := local.Date()

	return time.Date(y, m, d, hour, minute, 0, 0, c.loc)
}

// IsTradingDay reports whether the venue is open on the day containing t.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
	}

	_, holiday := c.holidays[local.Format(DateLayout)]

	return !holiday
}

// NextTradingDay returns midnight of the first trading day strictly after t's day.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	day := c.Midnight(t)

	for {
		day = addDays(day, 1, c.loc)
		if c.IsTradingDay(day) {
			return day
		}
	}
}

// PreviousTradingDay returns midnight of the last trading day strictly before t's day.
func (c *Calendar) PreviousTradingDay(t time.Time) time.Time {
	day := c.Midnight(t)

	for {
		day = addDays(day, -1, c.loc)
		if c.IsTradingDay(day) {
			return day
		}
	}
}

// MarketOpen returns the session open on the day containing t.
func (c *Calendar) MarketOpen(t time.Time) time.Time {
	return c.At(t, int(c.open.Hours()), int(c.open.Minutes())%60)
}

// MarketClose returns the session close on the day containing t.
func (c *Calendar) MarketClose(t time.Time) time.Time {
	return c.At(t, int(c.close.Hours()), int(c.close.Minutes())%60)
}

// IsMarketOpen reports whether t falls within the regular session of a trading day.
func (c *Calendar) IsMarketOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}

	return !t.Before(c.MarketOpen(t)) && t.Before(c.MarketClose(t))
}

// TradeDateFor returns the trading date that a scan run at t prepares for:
// today when t is before today's open on a trading day, otherwise the next trading day.
func (c *Calendar) TradeDateFor(t time.Time) string {
	if c.IsTradingDay(t) && t.Before(c.MarketOpen(t)) {
		return c.Date(t)
	}

	return c.Date(c.NextTradingDay(t))
}

// CalendarDaysBetween returns the number of calendar days from one date to another.
func (c *Calendar) CalendarDaysBetween(from, to string) (int, error) {
	start, err := c.ParseDate(from)
	if err != nil {
		return 0, err
	}

	end, err := c.ParseDate(to)
	if err != nil {
		return 0, err
	}

	return daysBetween(start, end), nil
}

// TradingDaysBetween counts trading days in (from, to].
func (c *Calendar) TradingDaysBetween(from, to string) (int, error) {
	start, err := c.ParseDate(from)
	if err != nil {
		return 0, err
	}

	end, err := c.ParseDate(to)
	if err != nil {
		return 0, err
	}

	n := 0

	for day := addDays(start, 1, c.loc); !day.After(end); day = addDays(day, 1, c.loc) {
		if c.IsTradingDay(day) {
			n++
		}
	}

	return n, nil
}

// addDays moves by whole calendar days, staying on local midnight across DST changes.
func addDays(t time.Time, days int, loc *time.Location) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d+days, 0, 0, 0, 0, loc)
}

func daysBetween(start, end time.Time) int {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	s := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	e := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)

	return int(e.Sub(s).Hours() / 24)
}
