package app

import (
	"strings"
	"sync"
	"time"

	"bookkeeper_bot/internal/domain/expense"

	"github.com/sirupsen/logrus"
)

// Clock resolves "now" and "today" in the configured schedule timezone.
type Clock struct {
	zoneName func() string
	now      func() time.Time
	logger   *logrus.Entry

	mu          sync.Mutex
	invalidZone string // Last rejected name, warned about once
}

// NewClock builds a Clock reading the timezone name on every call, so
// administrator changes apply without a restart.
func NewClock(zoneName func() string, logger *logrus.Entry) *Clock {
	return &Clock{zoneName: zoneName, now: time.Now, logger: logger}
}

// ZoneName returns the configured timezone name if it is loadable, otherwise ""
// (the host system timezone).
func (c *Clock) ZoneName() string {
	name := strings.TrimSpace(c.zoneName())
	if name == "" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		c.warnInvalid(name)
		return ""
	}
	return name
}

func (c *Clock) warnInvalid(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidZone == name {
		return
	}
	c.invalidZone = name
	c.logger.WithField("timezone", name).Warn("Invalid timezone, falling back to system timezone")
}

// Location returns the effective timezone.
func (c *Clock) Location() *time.Location {
	name := c.ZoneName()
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// Now returns the current instant in the effective timezone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.Location())
}

// Today returns the current calendar date as UTC midnight.
func (c *Clock) Today() time.Time {
	return civilDate(c.Now())
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthRange returns the first day of day's month and the first day of the next month.
func MonthRange(day time.Time) (start, endExclusive time.Time) {
	start = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// PeriodLabel renders an inclusive "start 至 end" label for [start, endExclusive).
func PeriodLabel(start, endExclusive time.Time) string {
	return expense.FormatDate(start) + " 至 " + expense.FormatDate(endExclusive.AddDate(0, 0, -1))
}

// ValidTimezone reports whether name is a loadable, non-empty IANA timezone.
func ValidTimezone(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
