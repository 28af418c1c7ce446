package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"face2face/internal/core/domain"
)

const keyPrefix = "call"

// diskRecord is the stored shape of a call record.
type diskRecord struct {
	ID        string    `json:"id"`
	Caller    string    `json:"caller"`
	Receiver  string    `json:"receiver"`
	Outcome   string    `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Store persists terminal call outcomes in BadgerDB. Each record is written
// once per participant under call:<identity>:<endedAt>:<id>, so per-user
// history reads are a single prefix scan, newest first.
type Store struct {
	db *badger.DB
}

func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, rec domain.CallRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	data, err := json.Marshal(diskRecord{
		ID:        rec.ID,
		Caller:    rec.Caller.String(),
		Receiver:  rec.Receiver.String(),
		Outcome:   string(rec.Outcome),
		StartedAt: rec.StartedAt.UTC(),
		EndedAt:   rec.EndedAt.UTC(),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range []domain.Identity{rec.Caller, rec.Receiver} {
			if err := txn.Set(recordKey(id, rec.EndedAt, rec.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListByIdentity(ctx context.Context, identity domain.Identity, limit int) ([]domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(fmt.Sprintf("%s:%s:", keyPrefix, identity))
	var records []diskRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek past the last key of the prefix.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var rec diskRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing call history: %w", err)
	}

	return lo.Map(records, func(rec diskRecord, _ int) domain.CallRecord {
		return domain.CallRecord{
			ID:        rec.ID,
			Caller:    domain.Identity(rec.Caller),
			Receiver:  domain.Identity(rec.Receiver),
			Outcome:   domain.Outcome(rec.Outcome),
			StartedAt: rec.StartedAt,
			EndedAt:   rec.EndedAt,
		}
	}), nil
}

// recordKey orders a participant's records chronologically; UnixNano is
// fixed-width for any contemporary timestamp, so byte order matches time
// order.
func recordKey(identity domain.Identity, endedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%019d:%s", keyPrefix, identity, endedAt.UnixNano(), id))
}
