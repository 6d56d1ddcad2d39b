// Package tracker records the last successful send per recipient address so
// repeated runs can skip recipients contacted recently.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blockedby/outreach/internal/logger"
	"github.com/blockedby/outreach/internal/models"
)

// TimeFormat is the layout timestamps are written with.
const TimeFormat = time.RFC3339Nano

// layouts accepted when reading timestamps back. The zone-less forms cover
// files written by older tooling and are read as local time.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// DeliveryTracker is the in-memory address -> timestamp table with a
// write-through durable store. Safe for concurrent use.
type DeliveryTracker struct {
	mu      sync.RWMutex
	entries map[string]string
	store   Store
	now     func() time.Time
	log     *logger.Logger
}

// New loads the table from store. A store with no data yields an empty table.
func New(ctx context.Context, store Store, log *logger.Logger) (*DeliveryTracker, error) {
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracker: %w", err)
	}
	if entries == nil {
		entries = map[string]string{}
	}

	log.Debug().Int("entries", len(entries)).Msg("delivery tracker loaded")

	return &DeliveryTracker{
		entries: entries,
		store:   store,
		now:     time.Now,
		log:     log,
	}, nil
}

// IsRecent reports whether address was sent to less than window ago.
// Absent addresses, malformed timestamps and non-positive windows are never
// recent.
func (t *DeliveryTracker) IsRecent(address string, window time.Duration) bool {
	if window <= 0 {
		return false
	}

	t.mu.RLock()
	raw, ok := t.entries[address]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	sentAt, err := parseTime(raw)
	if err != nil {
		t.log.Warn().
			Str("email", address).
			Str("timestamp", raw).
			Msg("malformed tracker timestamp, treating as not recent")
		return false
	}

	return t.now().Sub(sentAt) < window
}

// MarkSent records a send to address at the given time (now when zero) and
// persists the full table before returning.
func (t *DeliveryTracker) MarkSent(ctx context.Context, address string, at time.Time) error {
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[address] = at.Format(TimeFormat)
	return t.persistLocked(ctx)
}

// Persist writes the current table to the store.
func (t *DeliveryTracker) Persist(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persistLocked(ctx)
}

func (t *DeliveryTracker) persistLocked(ctx context.Context) error {
	snapshot := make(map[string]string, len(t.entries))
	for k, v := range t.entries {
		snapshot[k] = v
	}
	if err := t.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("persist tracker: %w", err)
	}
	return nil
}

// Lookup returns the record stored for address.
func (t *DeliveryTracker) Lookup(address string) (models.DeliveryRecord, bool) {
	t.mu.RLock()
	raw, ok := t.entries[address]
	t.mu.RUnlock()
	if !ok {
		return models.DeliveryRecord{}, false
	}
	return toRecord(address, raw), true
}

// Recent returns up to limit records, newest first. Records with malformed
// timestamps sort last. limit <= 0 returns all.
func (t *DeliveryTracker) Recent(limit int) []models.DeliveryRecord {
	t.mu.RLock()
	records := make([]models.DeliveryRecord, 0, len(t.entries))
	for email, raw := range t.entries {
		records = append(records, toRecord(email, raw))
	}
	t.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.SentAt.Equal(b.SentAt) {
			return a.SentAt.After(b.SentAt)
		}
		return a.Email < b.Email
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// Len returns the number of tracked addresses.
func (t *DeliveryTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func toRecord(email, raw string) models.DeliveryRecord {
	rec := models.DeliveryRecord{Email: email, Raw: raw}
	if ts, err := parseTime(raw); err == nil {
		rec.SentAt = ts
		rec.Valid = true
	}
	return rec
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range layouts {
		var (
			ts  time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			ts, err = time.Parse(layout, raw)
		} else {
			ts, err = time.ParseInLocation(layout, raw, time.Local)
		}
		if err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
