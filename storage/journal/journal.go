package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"auxrewards/core/events"
	"auxrewards/native/kpireward"
	"auxrewards/observability"
)

var (
	bucketEvents   = []byte("events")
	bucketPartials = []byte("partials")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("journal: record not found")
)

var (
	_ events.Emitter       = (*Journal)(nil)
	_ kpireward.Reconciler = (*Journal)(nil)
)

// EventRecord is a journaled structured event.
type EventRecord struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Journal is an append-only bbolt log of issuance events that also keeps the
// partial issuance records awaiting reconciliation.
type Journal struct {
	db     *bolt.DB
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Journal)

func WithClock(clock func() time.Time) Option {
	return func(j *Journal) { j.now = clock }
}

func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// Open initialises the journal at path, creating the buckets when missing.
func Open(path string, opts ...Option) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal: path required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketPartials} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create buckets: %w", err)
	}
	j := &Journal{db: db, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close releases the underlying Bolt database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Emit appends evt to the journal. Failures are logged and counted; emitters
// never fail the operation that produced the event.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if _, err := j.Append(evt); err != nil {
		observability.Events().RecordDropped(evt.EventType())
		j.logger.Error("journal: append event", slog.String("type", evt.EventType()), slog.Any("error", err))
		return
	}
	observability.Events().RecordEmitted(evt.EventType())
}

// Append stores evt and returns its sequence number.
func (j *Journal) Append(evt events.Event) (uint64, error) {
	rendered := evt.Event()
	if rendered == nil {
		return 0, fmt.Errorf("journal: event %s rendered nil", evt.EventType())
	}
	var seq uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		encoded, err := json.Marshal(EventRecord{
			Seq:        next,
			Type:       rendered.Type,
			Attributes: rendered.Clone().Attributes,
			RecordedAt: j.now().UTC(),
		})
		if err != nil {
			return err
		}
		return bucket.Put(seqKey(next), encoded)
	})
	if err != nil {
		return 0, fmt.Errorf("journal: append: %w", err)
	}
	return seq, nil
}

// Events returns up to limit events with a sequence number of at least from.
func (j *Journal) Events(from uint64, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	records := make([]EventRecord, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketEvents).Cursor()
		for k, v := cursor.Seek(seqKey(from)); k != nil && len(records) < limit; k, v = cursor.Next() {
			var rec EventRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: read events: %w", err)
	}
	return records, nil
}

// RecordPartial inserts or replaces a partial issuance record.
func (j *Journal) RecordPartial(_ context.Context, rec kpireward.PartialIssuance) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("journal: partial record id required")
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encode partial: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartials).Put([]byte(rec.ID), encoded)
	})
}

// Partial fetches a partial issuance record by id.
func (j *Journal) Partial(_ context.Context, id string) (kpireward.PartialIssuance, error) {
	var rec kpireward.PartialIssuance
	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPartials).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return kpireward.PartialIssuance{}, err
	}
	return rec, nil
}

// Resolve marks the record as reconciled at the supplied time.
func (j *Journal) Resolve(_ context.Context, id string, at time.Time) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPartials)
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		var rec kpireward.PartialIssuance
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		resolved := at.UTC()
		rec.ResolvedAt = &resolved
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), encoded)
	})
}

// Partials lists partial issuance records ordered by creation time. When
// pendingOnly is set resolved records are skipped.
func (j *Journal) Partials(_ context.Context, pendingOnly bool) ([]kpireward.PartialIssuance, error) {
	records := make([]kpireward.PartialIssuance, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPartials).ForEach(func(_, v []byte) error {
			var rec kpireward.PartialIssuance
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if pendingOnly && rec.Resolved() {
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("journal: list partials: %w", err)
	}
	sort.Slice(records, func(a, b int) bool {
		return records[a].CreatedAt.Before(records[b].CreatedAt)
	})
	return records, nil
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
