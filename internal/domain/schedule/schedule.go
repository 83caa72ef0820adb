// internal/domain/schedule/schedule.go
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidTime   = errors.New("time must be HH:MM with hour 0-23 and minute 0-59")
	ErrDayOutOfRange = errors.New("day of month must be between 1 and 31")
)

// Handler runs on every trigger of a registered job.
type Handler func(ctx context.Context)

// Job is a recurring job registration request.
type Job struct {
	Name        string
	Spec        string // Five-field cron expression: minute hour day-of-month month day-of-week
	Timezone    string // IANA name; empty means the scheduler's local timezone
	Description string
	Handler     Handler
}

// JobScheduler registers and cancels recurring jobs. Identifiers are opaque.
type JobScheduler interface {
	Register(ctx context.Context, job Job) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

// ParseHHMM parses "H:MM" or "HH:MM".
func ParseHHMM(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidTime
	}
	hour, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
	minute, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errH != nil || errM != nil {
		return 0, 0, ErrInvalidTime
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, ErrInvalidTime
	}
	return hour, minute, nil
}

// DailyExpression builds the cron expression firing every day at reportTime.
func DailyExpression(reportTime string) (string, error) {
	hour, minute, err := ParseHHMM(reportTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// MonthlyExpression builds the cron expression firing on day of every month at reportTime.
// Months shorter than day are skipped, as with any cron day-of-month field.
func MonthlyExpression(day int, reportTime string) (string, error) {
	if day < 1 || day > 31 {
		return "", ErrDayOutOfRange
	}
	hour, minute, err := ParseHHMM(reportTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %d * *", minute, hour, day), nil
}
