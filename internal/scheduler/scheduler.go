// Package scheduler fans batch triggers out into queued workflow starts.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/metrics"
	"github.com/wizenheimer/wayback/internal/snapshot"
)

// Config controls paging and stagger behavior.
type Config struct {
	PageSize  int
	BaseDelay time.Duration
}

// Scheduler enumerates tracked URLs or competitors in pages and schedules
// one workflow-start message per item. Items within a page share a delay;
// successive pages are staggered by BaseDelay so downstream capture and
// analysis collaborators see a ramp instead of a burst.
type Scheduler struct {
	competitors core.CompetitorStore
	queue       core.Queue
	clock       core.Clock
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Scheduler.
func New(competitors core.CompetitorStore, queue core.Queue, clock core.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 30 * time.Second
	}
	return &Scheduler{
		competitors: competitors,
		queue:       queue,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// TriggerDiffBatch schedules a snapshot-then-diff workflow for every
// tracked URL, returning how many were scheduled. The loop stops at the
// first short page.
func (s *Scheduler) TriggerDiffBatch(ctx context.Context, runID, weekNumber string) (int, error) {
	if runID == "" {
		return 0, fmt.Errorf("run id is required")
	}
	if weekNumber == "" {
		weekNumber = snapshot.WeekNumber(s.clock.Now())
	}

	scheduled := 0
	for offset := 0; ; offset += s.cfg.PageSize {
		urls, err := s.competitors.ListURLs(ctx, s.cfg.PageSize, offset)
		if err != nil {
			return scheduled, fmt.Errorf("list urls at offset %d: %w", offset, err)
		}

		delay := s.pageDelay(offset)
		for _, pageURL := range urls {
			msg := core.QueueMessage{
				Kind:       core.WorkflowSnapshotDiff,
				URL:        pageURL,
				RunID:      runID,
				WeekNumber: weekNumber,
			}
			if err := s.queue.Send(ctx, msg, delay); err != nil {
				return scheduled, fmt.Errorf("schedule diff for %s: %w", pageURL, err)
			}
			metrics.IncScheduledMessage(string(core.WorkflowSnapshotDiff))
			scheduled++
		}

		if len(urls) < s.cfg.PageSize {
			break
		}
	}

	s.logger.Info("diff batch scheduled",
		zap.Int("count", scheduled),
		zap.String("run_id", runID),
		zap.String("week_number", weekNumber),
	)
	return scheduled, nil
}

// TriggerReportBatch schedules a competitor report workflow for every
// competitor, staggered the same way as diff batches.
func (s *Scheduler) TriggerReportBatch(ctx context.Context, runID1, runID2, weekNumber string) (int, error) {
	if weekNumber == "" {
		weekNumber = snapshot.WeekNumber(s.clock.Now())
	}

	scheduled := 0
	for offset := 0; ; offset += s.cfg.PageSize {
		competitors, err := s.competitors.ListCompetitors(ctx, s.cfg.PageSize, offset)
		if err != nil {
			return scheduled, fmt.Errorf("list competitors at offset %d: %w", offset, err)
		}

		delay := s.pageDelay(offset)
		for _, competitor := range competitors {
			msg := core.QueueMessage{
				Kind:         core.WorkflowCompetitorReport,
				CompetitorID: competitor.ID,
				RunID1:       runID1,
				RunID2:       runID2,
				WeekNumber:   weekNumber,
			}
			if err := s.queue.Send(ctx, msg, delay); err != nil {
				return scheduled, fmt.Errorf("schedule report for competitor %d: %w", competitor.ID, err)
			}
			metrics.IncScheduledMessage(string(core.WorkflowCompetitorReport))
			scheduled++
		}

		if len(competitors) < s.cfg.PageSize {
			break
		}
	}

	s.logger.Info("report batch scheduled",
		zap.Int("count", scheduled),
		zap.String("week_number", weekNumber),
	)
	return scheduled, nil
}

func (s *Scheduler) pageDelay(offset int) time.Duration {
	return s.cfg.BaseDelay * time.Duration(offset/s.cfg.PageSize)
}
