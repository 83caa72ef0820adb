// internal/domain/expense/record.go
package expense

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date form used for Record.Date.
const DateLayout = "2006-01-02"

// Record is a single stored expense. Records are never mutated once stored.
type Record struct {
	Session         string          `json:"session"`     // Conversation the expense belongs to
	SenderID        string          `json:"sender_id"`
	SenderName      string          `json:"sender_name"` // Display only
	Item            string          `json:"item"`
	Amount          decimal.Decimal `json:"amount"`
	Note            string          `json:"note"`
	Date            string          `json:"date"`      // YYYY-MM-DD in the configured timezone
	Timestamp       time.Time       `json:"timestamp"` // Ordering key and delete anchor
	SourceMessageID string          `json:"source_message_id"`
}

// Day parses Record.Date. The second result is false for malformed dates.
func (r Record) Day() (time.Time, bool) {
	d, err := ParseDate(r.Date)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// SameEntry reports whether o matches r on timestamp, session, item and amount.
func (r Record) SameEntry(o Record) bool {
	return r.Timestamp.Equal(o.Timestamp) &&
		r.Session == o.Session &&
		r.Item == o.Item &&
		r.Amount.Equal(o.Amount)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders the calendar date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// EventKind names what happened to a record.
type EventKind string

const (
	EventRecorded EventKind = "recorded"
	EventDeleted  EventKind = "deleted"
)

// EventPublisher announces record changes to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, kind EventKind, rec Record) error
}
