package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

// CompetitorStore reads competitor, URL, and subscriber data. The tables are
// owned by the account service; this store never writes them.
type CompetitorStore struct {
	pool   Pool
	logger *zap.Logger
}

// NewCompetitorStore connects a pool and returns a store backed by it.
func NewCompetitorStore(ctx context.Context, cfg Config, logger *zap.Logger) (*CompetitorStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCompetitorStoreWithPool(pool, logger), nil
}

// NewCompetitorStoreWithPool wraps an existing pool. Used by tests with pgxmock.
func NewCompetitorStoreWithPool(pool Pool, logger *zap.Logger) *CompetitorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompetitorStore{pool: pool, logger: logger}
}

// GetCompetitor returns one competitor with its tracked URLs.
func (s *CompetitorStore) GetCompetitor(ctx context.Context, id int64) (core.Competitor, error) {
	var c core.Competitor
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM competitors WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Competitor{}, core.ErrCompetitorNotFound
	}
	if err != nil {
		return core.Competitor{}, fmt.Errorf("query competitor: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT url FROM competitor_urls WHERE competitor_id = $1 ORDER BY url`, id)
	if err != nil {
		return core.Competitor{}, fmt.Errorf("query competitor urls: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return core.Competitor{}, fmt.Errorf("scan competitor url: %w", err)
		}
		c.URLs = append(c.URLs, u)
	}
	if err := rows.Err(); err != nil {
		return core.Competitor{}, fmt.Errorf("iterate competitor urls: %w", err)
	}
	return c, nil
}

// ListCompetitors pages through competitors ordered by id. URLs are not
// loaded here; callers that need them fetch competitors individually.
func (s *CompetitorStore) ListCompetitors(ctx context.Context, limit, offset int) ([]core.Competitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM competitors ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query competitors: %w", err)
	}
	defer rows.Close()

	var out []core.Competitor
	for rows.Next() {
		var c core.Competitor
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan competitor: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competitors: %w", err)
	}
	return out, nil
}

// ListURLs pages through every tracked URL across all competitors.
func (s *CompetitorStore) ListURLs(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url FROM competitor_urls ORDER BY url LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query urls: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return out, nil
}

// Subscribers returns the active notification recipients for a competitor.
func (s *CompetitorStore) Subscribers(ctx context.Context, competitorID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email FROM subscriptions WHERE competitor_id = $1 AND active ORDER BY email`, competitorID)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return out, nil
}

// Close releases the underlying pool.
func (s *CompetitorStore) Close() {
	s.pool.Close()
}
