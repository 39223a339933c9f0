// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"sync"

	"github.com/wizenheimer/wayback/internal/core"
)

// DiffStore keeps diff records in a slice, newest last.
type DiffStore struct {
	mu      sync.RWMutex
	nextID  int64
	records []core.DiffRecord
}

// NewDiffStore returns an empty in-memory diff store.
func NewDiffStore() *DiffStore {
	return &DiffStore{nextID: 1}
}

// InsertDiff appends a record, assigning the next id.
func (s *DiffStore) InsertDiff(_ context.Context, rec core.DiffRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	return nil
}

// DiffHistory filters stored records for a URL, newest first.
func (s *DiffStore) DiffHistory(_ context.Context, q core.DiffHistoryQuery) ([]core.DiffRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = core.DefaultHistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.DiffRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.records[i]
		if rec.URL != q.URL {
			continue
		}
		if q.WeekNumber != "" && rec.WeekNumber != q.WeekNumber {
			continue
		}
		if !runRangeMatches(rec, q.FromRunID, q.ToRunID) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// runRangeMatches mirrors the Postgres filter: a bound matches when either
// side of the stored comparison falls inside it.
func runRangeMatches(rec core.DiffRecord, from, to string) bool {
	switch {
	case from != "" && to != "":
		return (rec.RunID1 >= from && rec.RunID1 <= to) || (rec.RunID2 >= from && rec.RunID2 <= to)
	case from != "":
		return rec.RunID1 >= from || rec.RunID2 >= from
	case to != "":
		return rec.RunID1 <= to || rec.RunID2 <= to
	default:
		return true
	}
}
