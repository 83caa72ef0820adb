package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"bookkeeper_bot/internal/domain/expense"
	"bookkeeper_bot/internal/domain/kv"

	"github.com/sirupsen/logrus"
)

const (
	recordsKey = "records_v1"
	// dedupWindow is how many of the newest records are checked for a repeated tool call.
	dedupWindow = 30
)

// ReasonDuplicate is returned by Append when the record repeats a recent tool call.
const ReasonDuplicate = "记账跳过：重复的工具调用。"

// RecordStore is the process-wide expense collection kept in a single key-value slot.
// Every operation loads the whole collection under one mutex, so read-modify-write
// cycles never interleave.
type RecordStore struct {
	mu         sync.Mutex
	kv         kv.Store
	maxRecords func() int
	publisher  expense.EventPublisher // optional
	logger     *logrus.Entry
}

func NewRecordStore(store kv.Store, maxRecords func() int, publisher expense.EventPublisher, logger *logrus.Entry) *RecordStore {
	return &RecordStore{
		kv:         store,
		maxRecords: maxRecords,
		publisher:  publisher,
		logger:     logger,
	}
}

// Append stores rec unless it duplicates a recent tool call, then trims the
// collection to the newest max_records entries. Callers validate item and amount.
func (s *RecordStore) Append(ctx context.Context, rec expense.Record) (bool, string, error) {
	accepted, reason, err := s.appendLocked(ctx, rec)
	if err != nil || !accepted {
		return accepted, reason, err
	}
	s.logger.WithFields(logrus.Fields{
		"item":      rec.Item,
		"amount":    rec.Amount.StringFixed(2),
		"sender_id": rec.SenderID,
	}).Info("Expense record saved")
	s.publish(ctx, expense.EventRecorded, rec)
	return true, "saved", nil
}

func (s *RecordStore) appendLocked(ctx context.Context, rec expense.Record) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadUnlocked(ctx)
	if err != nil {
		return false, "", err
	}
	if isDuplicate(records, rec) {
		s.logger.WithFields(logrus.Fields{
			"item":   rec.Item,
			"amount": rec.Amount.StringFixed(2),
		}).Debug("Skipping duplicate expense record")
		return false, ReasonDuplicate, nil
	}

	records = append(records, rec)
	limit := s.maxRecords()
	if limit < 1 {
		limit = 1
	}
	if len(records) > limit {
		trimmed := len(records) - limit
		records = records[trimmed:]
		s.logger.WithFields(logrus.Fields{
			"max_records": limit,
			"trimmed":     trimmed,
		}).Info("Record count exceeded limit, oldest records trimmed")
	}
	if err := s.saveUnlocked(ctx, records); err != nil {
		return false, "", err
	}
	return true, "", nil
}

// Query returns the session's records dated within [start, endExclusive),
// ordered by timestamp. Records with malformed dates are skipped.
func (s *RecordStore) Query(ctx context.Context, session string, start, endExclusive time.Time) ([]expense.Record, error) {
	s.mu.Lock()
	records, err := s.loadUnlocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var selected []expense.Record
	for _, r := range records {
		if r.Session != session {
			continue
		}
		if inRange(r, start, endExclusive) {
			selected = append(selected, r)
		}
	}
	sortByTimestamp(selected)
	return selected, nil
}

// Snapshot returns the full collection in stored order.
func (s *RecordStore) Snapshot(ctx context.Context) ([]expense.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadUnlocked(ctx)
}

// Delete removes every record matching target on timestamp, session, item and
// amount. Identical records are all removed.
func (s *RecordStore) Delete(ctx context.Context, target expense.Record) (bool, error) {
	deleted, err := s.deleteLocked(ctx, target)
	if err != nil || !deleted {
		return deleted, err
	}
	s.publish(ctx, expense.EventDeleted, target)
	return true, nil
}

func (s *RecordStore) deleteLocked(ctx context.Context, target expense.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadUnlocked(ctx)
	if err != nil {
		return false, err
	}
	kept := records[:0:0]
	for _, r := range records {
		if !r.SameEntry(target) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return false, nil
	}
	if err := s.saveUnlocked(ctx, kept); err != nil {
		return false, err
	}
	return true, nil
}

// loadUnlocked reads the collection. Foreign data is never trusted: a non-array
// document reads as empty and elements that are not record objects are dropped.
func (s *RecordStore) loadUnlocked(ctx context.Context) ([]expense.Record, error) {
	raw, err := s.kv.Get(ctx, recordsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		s.logger.WithError(err).Warn("Stored records are not a list, treating as empty")
		return nil, nil
	}
	records := make([]expense.Record, 0, len(elements))
	dropped := 0
	for _, el := range elements {
		el = bytes.TrimSpace(el)
		if len(el) == 0 || el[0] != '{' {
			dropped++
			continue
		}
		var r expense.Record
		if err := json.Unmarshal(el, &r); err != nil {
			dropped++
			continue
		}
		records = append(records, r)
	}
	if dropped > 0 {
		s.logger.WithField("dropped", dropped).Warn("Dropped malformed stored records")
	}
	return records, nil
}

func (s *RecordStore) saveUnlocked(ctx context.Context, records []expense.Record) error {
	if records == nil {
		records = []expense.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := s.kv.Put(ctx, recordsKey, data); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}

func (s *RecordStore) publish(ctx context.Context, kind expense.EventKind, rec expense.Record) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, kind, rec); err != nil {
		s.logger.WithError(err).WithField("event", kind).Warn("Failed to publish expense event")
	}
}

// isDuplicate scans the newest dedupWindow records, newest first.
func isDuplicate(records []expense.Record, rec expense.Record) bool {
	if rec.SourceMessageID == "" {
		return false
	}
	from := len(records) - dedupWindow
	if from < 0 {
		from = 0
	}
	for i := len(records) - 1; i >= from; i-- {
		old := records[i]
		if old.SourceMessageID == rec.SourceMessageID &&
			old.Session == rec.Session &&
			old.Item == rec.Item &&
			old.Amount.Equal(rec.Amount) {
			return true
		}
	}
	return false
}

func inRange(r expense.Record, start, endExclusive time.Time) bool {
	day, ok := r.Day()
	if !ok {
		return false
	}
	return !day.Before(start) && day.Before(endExclusive)
}

// sortByTimestamp orders by instant rather than by the formatted string, so
// records written under different UTC offsets still sort chronologically.
func sortByTimestamp(records []expense.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
