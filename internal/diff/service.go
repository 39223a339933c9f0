package diff

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/snapshot"
)

// DefaultHistoryLimit bounds history queries that omit a limit.
const DefaultHistoryLimit = core.DefaultHistoryLimit

// ContentReader fetches stored text snapshots. Satisfied by
// snapshot.Service.
type ContentReader interface {
	Content(ctx context.Context, pageURL, weekNumber, runID string) ([]byte, error)
}

// Service compares stored snapshots and maintains the diff history.
type Service struct {
	contents ContentReader
	diffs    core.DiffStore
	analyzer core.Analyzer
	clock    core.Clock
	logger   *zap.Logger
}

// NewService constructs a diff Service.
func NewService(contents ContentReader, diffs core.DiffStore, analyzer core.Analyzer, clock core.Clock, logger *zap.Logger) *Service {
	return &Service{
		contents: contents,
		diffs:    diffs,
		analyzer: analyzer,
		clock:    clock,
		logger:   logger,
	}
}

// CreateDiff fetches the two text snapshots named by req, asks the analyzer
// to categorize the changes, and appends one history row keyed by the later
// week number. Missing snapshots surface as the content-not-found sentinels;
// nothing is persisted in that case.
func (s *Service) CreateDiff(ctx context.Context, req core.DiffRequest) (core.DiffResult, error) {
	week1 := req.WeekNumber1
	week2 := req.WeekNumber2
	if week1 == "" {
		week1 = snapshot.WeekNumber(s.clock.Now())
	}
	if week2 == "" {
		week2 = snapshot.WeekNumber(s.clock.Now())
	}

	content1, err1 := s.contents.Content(ctx, req.URL, week1, req.RunID1)
	content2, err2 := s.contents.Content(ctx, req.URL, week2, req.RunID2)

	missing1 := errors.Is(err1, core.ErrObjectNotFound)
	missing2 := errors.Is(err2, core.ErrObjectNotFound)
	switch {
	case missing1 && missing2:
		return core.DiffResult{}, core.ErrBothContentNotFound
	case missing1:
		return core.DiffResult{}, core.ErrFirstContentNotFound
	case missing2:
		return core.DiffResult{}, core.ErrSecondContentNotFound
	case err1 != nil:
		return core.DiffResult{}, fmt.Errorf("fetch first content version: %w", err1)
	case err2 != nil:
		return core.DiffResult{}, fmt.Errorf("fetch second content version: %w", err2)
	}

	analysis, err := s.analyzer.Categorize(ctx, string(content1), string(content2))
	if err != nil {
		return core.DiffResult{}, fmt.Errorf("categorize changes: %w", err)
	}

	record := core.DiffRecord{
		URL:        req.URL,
		RunID1:     req.RunID1,
		RunID2:     req.RunID2,
		WeekNumber: week2, // the more recent run keys the row for range filtering
		Analysis:   analysis,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.diffs.InsertDiff(ctx, record); err != nil {
		return core.DiffResult{}, fmt.Errorf("insert diff record: %w", err)
	}

	s.logger.Info("diff recorded",
		zap.String("url", req.URL),
		zap.String("run_id1", req.RunID1),
		zap.String("run_id2", req.RunID2),
		zap.String("week_number", week2),
	)

	return core.DiffResult{
		Differences: analysis,
		Metadata: core.DiffMeta{
			URL:         req.URL,
			RunID1:      req.RunID1,
			RunID2:      req.RunID2,
			WeekNumber1: week1,
			WeekNumber2: week2,
			AnalyzedAt:  s.clock.Now(),
		},
	}, nil
}

// History returns stored diffs for a URL, newest first, bounded by the
// query's limit (DefaultHistoryLimit when unset).
func (s *Service) History(ctx context.Context, q core.DiffHistoryQuery) ([]core.DiffRecord, error) {
	if q.URL == "" {
		return nil, errors.New("url is required")
	}
	if q.FromRunID != "" && q.ToRunID != "" && q.FromRunID > q.ToRunID {
		return nil, errors.New("from_run_id must be earlier than or equal to to_run_id")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	records, err := s.diffs.DiffHistory(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query diff history: %w", err)
	}
	return records, nil
}
