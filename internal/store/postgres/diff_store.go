package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

const diffSchema = `
CREATE TABLE IF NOT EXISTS content_diffs (
	id                  BIGSERIAL PRIMARY KEY,
	url                 TEXT        NOT NULL,
	run_id1             TEXT        NOT NULL,
	run_id2             TEXT        NOT NULL,
	week_number         TEXT        NOT NULL,
	branding_changes    JSONB       NOT NULL DEFAULT '[]',
	integration_changes JSONB       NOT NULL DEFAULT '[]',
	pricing_changes     JSONB       NOT NULL DEFAULT '[]',
	product_changes     JSONB       NOT NULL DEFAULT '[]',
	positioning_changes JSONB       NOT NULL DEFAULT '[]',
	partnership_changes JSONB       NOT NULL DEFAULT '[]',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_content_diffs_url_created ON content_diffs (url, created_at DESC);
`

// DiffStore persists categorized diff records in Postgres.
type DiffStore struct {
	pool   Pool
	logger *zap.Logger
}

// NewDiffStore connects a pool and returns a store backed by it.
func NewDiffStore(ctx context.Context, cfg Config, logger *zap.Logger) (*DiffStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewDiffStoreWithPool(pool, logger), nil
}

// NewDiffStoreWithPool wraps an existing pool. Used by tests with pgxmock.
func NewDiffStoreWithPool(pool Pool, logger *zap.Logger) *DiffStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiffStore{pool: pool, logger: logger}
}

// EnsureSchema creates the content_diffs table if it does not exist.
func (s *DiffStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, diffSchema); err != nil {
		return fmt.Errorf("ensure diff schema: %w", err)
	}
	return nil
}

// InsertDiff appends a diff record. Replays of the same comparison produce
// additional rows; history reads newest first so the latest wins.
func (s *DiffStore) InsertDiff(ctx context.Context, rec core.DiffRecord) error {
	cols := make([][]byte, len(core.CategoryNames))
	for i, name := range core.CategoryNames {
		changes := rec.Analysis.Category(name)
		if changes == nil {
			changes = []string{}
		}
		data, err := json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("marshal %s changes: %w", name, err)
		}
		cols[i] = data
	}

	const q = `INSERT INTO content_diffs
		(url, run_id1, run_id2, week_number,
		 branding_changes, integration_changes, pricing_changes,
		 product_changes, positioning_changes, partnership_changes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q,
		rec.URL, rec.RunID1, rec.RunID2, rec.WeekNumber,
		cols[0], cols[1], cols[2], cols[3], cols[4], cols[5])
	if err != nil {
		return fmt.Errorf("insert diff: %w", err)
	}
	s.logger.Debug("diff record inserted",
		zap.String("url", rec.URL),
		zap.String("week_number", rec.WeekNumber),
		zap.String("run_id1", rec.RunID1),
		zap.String("run_id2", rec.RunID2))
	return nil
}

// DiffHistory returns records for a URL newest first, optionally filtered by
// week and by an inclusive run range. A run range bound matches when either
// side of the stored comparison falls inside it.
func (s *DiffStore) DiffHistory(ctx context.Context, q core.DiffHistoryQuery) ([]core.DiffRecord, error) {
	if q.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = core.DefaultHistoryLimit
	}

	sql := `SELECT id, url, run_id1, run_id2, week_number,
		branding_changes, integration_changes, pricing_changes,
		product_changes, positioning_changes, partnership_changes, created_at
		FROM content_diffs WHERE url = $1`
	args := []any{q.URL}

	if q.WeekNumber != "" {
		args = append(args, q.WeekNumber)
		sql += fmt.Sprintf(" AND week_number = $%d", len(args))
	}
	switch {
	case q.FromRunID != "" && q.ToRunID != "":
		args = append(args, q.FromRunID, q.ToRunID)
		lo, hi := len(args)-1, len(args)
		sql += fmt.Sprintf(" AND (run_id1 BETWEEN $%d AND $%d OR run_id2 BETWEEN $%d AND $%d)", lo, hi, lo, hi)
	case q.FromRunID != "":
		args = append(args, q.FromRunID)
		n := len(args)
		sql += fmt.Sprintf(" AND (run_id1 >= $%d OR run_id2 >= $%d)", n, n)
	case q.ToRunID != "":
		args = append(args, q.ToRunID)
		n := len(args)
		sql += fmt.Sprintf(" AND (run_id1 <= $%d OR run_id2 <= $%d)", n, n)
	}

	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query diff history: %w", err)
	}
	defer rows.Close()

	var out []core.DiffRecord
	for rows.Next() {
		var (
			rec       core.DiffRecord
			cols      [6][]byte
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.RunID1, &rec.RunID2, &rec.WeekNumber,
			&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &createdAt); err != nil {
			return nil, fmt.Errorf("scan diff row: %w", err)
		}
		for i, name := range core.CategoryNames {
			var changes []string
			if len(cols[i]) > 0 {
				if err := json.Unmarshal(cols[i], &changes); err != nil {
					return nil, fmt.Errorf("decode %s changes: %w", name, err)
				}
			}
			rec.Analysis.SetCategory(name, changes)
		}
		rec.CreatedAt = createdAt
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diff history: %w", err)
	}
	return out, nil
}

// Close releases the underlying pool.
func (s *DiffStore) Close() {
	s.pool.Close()
}
