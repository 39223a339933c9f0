package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wizenheimer/wayback/internal/core"
)

// CompetitorStore holds competitors and their subscribers in maps. Seed it
// with Add and Subscribe; the pipeline itself only reads.
type CompetitorStore struct {
	mu          sync.RWMutex
	competitors map[int64]core.Competitor
	subscribers map[int64][]string
}

// NewCompetitorStore returns an empty in-memory competitor store.
func NewCompetitorStore() *CompetitorStore {
	return &CompetitorStore{
		competitors: make(map[int64]core.Competitor),
		subscribers: make(map[int64][]string),
	}
}

// Add registers a competitor.
func (s *CompetitorStore) Add(c core.Competitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitors[c.ID] = c
}

// Subscribe adds a notification recipient for a competitor.
func (s *CompetitorStore) Subscribe(competitorID int64, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[competitorID] = append(s.subscribers[competitorID], email)
}

// GetCompetitor returns one competitor or ErrCompetitorNotFound.
func (s *CompetitorStore) GetCompetitor(_ context.Context, id int64) (core.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitors[id]
	if !ok {
		return core.Competitor{}, core.ErrCompetitorNotFound
	}
	return c, nil
}

// ListCompetitors pages through competitors ordered by id.
func (s *CompetitorStore) ListCompetitors(_ context.Context, limit, offset int) ([]core.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]core.Competitor, 0, len(s.competitors))
	for _, c := range s.competitors {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, limit, offset), nil
}

// ListURLs pages through all tracked URLs in sorted order.
func (s *CompetitorStore) ListURLs(_ context.Context, limit, offset int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []string
	for _, c := range s.competitors {
		all = append(all, c.URLs...)
	}
	sort.Strings(all)
	return page(all, limit, offset), nil
}

// Subscribers returns the recipients registered for a competitor.
func (s *CompetitorStore) Subscribers(_ context.Context, competitorID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.subscribers[competitorID]))
	copy(out, s.subscribers[competitorID])
	return out, nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
