package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/workflow"
)

// Consumer drains the scheduling queue and starts the corresponding
// workflow for each message. The queue delivers at least once; a duplicate
// start is harmless because the workflow's step ledger skips work that
// already completed.
type Consumer struct {
	queue  core.Queue
	engine *workflow.Engine
	logger *zap.Logger
}

// NewConsumer constructs a Consumer.
func NewConsumer(queue core.Queue, engine *workflow.Engine, logger *zap.Logger) *Consumer {
	return &Consumer{
		queue:  queue,
		engine: engine,
		logger: logger,
	}
}

// Run blocks, consuming messages until the context finishes.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("queue receive failed", zap.Error(err))
			continue
		}
		c.startWorkflow(ctx, msg)
	}
}

func (c *Consumer) startWorkflow(ctx context.Context, msg core.QueueMessage) {
	switch msg.Kind {
	case core.WorkflowSnapshotDiff:
		id, err := c.engine.StartSnapshotDiff(ctx, workflow.SnapshotDiffParams{
			URL:        msg.URL,
			RunID:      msg.RunID,
			WeekNumber: msg.WeekNumber,
		})
		if err != nil {
			c.logger.Error("start snapshot diff workflow failed",
				zap.String("url", msg.URL),
				zap.Error(err),
			)
			return
		}
		c.logger.Debug("snapshot diff workflow started",
			zap.String("instance_id", id),
			zap.String("url", msg.URL),
		)
	case core.WorkflowCompetitorReport:
		id, err := c.engine.StartCompetitorReport(ctx, workflow.CompetitorReportParams{
			CompetitorID: msg.CompetitorID,
			RunID1:       msg.RunID1,
			RunID2:       msg.RunID2,
			WeekNumber:   msg.WeekNumber,
		})
		if err != nil {
			c.logger.Error("start competitor report workflow failed",
				zap.Int64("competitor_id", msg.CompetitorID),
				zap.Error(err),
			)
			return
		}
		c.logger.Debug("competitor report workflow started",
			zap.String("instance_id", id),
			zap.Int64("competitor_id", msg.CompetitorID),
		)
	default:
		c.logger.Warn("dropping message with unknown workflow kind",
			zap.String("kind", string(msg.Kind)),
		)
	}
}
