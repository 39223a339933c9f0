// Package workflow implements the durable, step-memoized orchestration
// layer and the two workflow types built on it.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/metrics"
)

// StepPolicy bounds one step's execution: per-attempt timeout plus an
// exponential retry budget starting at Delay.
type StepPolicy struct {
	Retries int
	Delay   time.Duration
	Timeout time.Duration
}

// Step scopes ledger lookups to one workflow instance.
type Step struct {
	engine     *Engine
	instanceID string
	workflow   string
}

// Engine runs workflow instances and persists their progress so that
// re-entry after a crash or retry skips completed steps.
type Engine struct {
	store  core.WorkflowStore
	clock  core.Clock
	ids    core.IDGenerator
	logger *zap.Logger

	snapshotDiff     *SnapshotDiffWorkflow
	competitorReport *CompetitorReportWorkflow
}

// NewEngine constructs an Engine over the two workflow definitions.
func NewEngine(
	store core.WorkflowStore,
	clock core.Clock,
	ids core.IDGenerator,
	snapshotDiff *SnapshotDiffWorkflow,
	competitorReport *CompetitorReportWorkflow,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:            store,
		clock:            clock,
		ids:              ids,
		snapshotDiff:     snapshotDiff,
		competitorReport: competitorReport,
		logger:           logger,
	}
}

// Do executes one named step under the instance's durable ledger. A step
// whose output is already recorded is skipped and its memoized output
// returned, which is what makes at-least-once delivery and crash re-entry
// safe around side-effecting steps. Errors marked with core.NonRetryable
// fail immediately; everything else retries with exponential backoff up to
// the policy's limit.
func Do[T any](ctx context.Context, s *Step, name string, policy StepPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	recorded, ok, err := s.engine.store.GetStepOutput(ctx, s.instanceID, name)
	if err != nil {
		return zero, fmt.Errorf("read step ledger for %q: %w", name, err)
	}
	if ok {
		var out T
		if err := json.Unmarshal(recorded, &out); err != nil {
			return zero, fmt.Errorf("decode memoized output of %q: %w", name, err)
		}
		s.engine.logger.Debug("step already completed, skipping",
			zap.String("instance_id", s.instanceID),
			zap.String("step", name),
		)
		return out, nil
	}

	delay := policy.Delay
	var lastErr error
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 {
			metrics.IncWorkflowStepRetry(s.workflow, name)
			s.engine.logger.Warn("retrying step",
				zap.String("instance_id", s.instanceID),
				zap.String("step", name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("step %q canceled: %w", name, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		attemptCtx := ctx
		cancel := func() {}
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		out, err := fn(attemptCtx)
		cancel()
		if err == nil {
			encoded, err := json.Marshal(out)
			if err != nil {
				return zero, fmt.Errorf("encode output of %q: %w", name, err)
			}
			if err := s.engine.store.PutStepOutput(ctx, s.instanceID, name, encoded); err != nil {
				return zero, fmt.Errorf("record output of %q: %w", name, err)
			}
			metrics.IncWorkflowStep(s.workflow, name, "success")
			return out, nil
		}

		lastErr = err
		if core.IsNonRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	metrics.IncWorkflowStep(s.workflow, name, "failure")
	return zero, fmt.Errorf("step %q: %w", name, lastErr)
}

// StartSnapshotDiff creates and launches a snapshot-then-diff instance,
// returning its ID immediately.
func (e *Engine) StartSnapshotDiff(ctx context.Context, params SnapshotDiffParams) (string, error) {
	return e.start(ctx, core.WorkflowSnapshotDiff, params)
}

// StartCompetitorReport creates and launches a competitor report instance,
// returning its ID immediately.
func (e *Engine) StartCompetitorReport(ctx context.Context, params CompetitorReportParams) (string, error) {
	return e.start(ctx, core.WorkflowCompetitorReport, params)
}

func (e *Engine) start(ctx context.Context, kind core.WorkflowKind, params any) (string, error) {
	id, err := e.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate instance id: %w", err)
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode workflow params: %w", err)
	}
	now := e.clock.Now()
	inst := core.WorkflowInstance{
		ID:        id,
		Kind:      kind,
		Params:    encoded,
		State:     core.WorkflowPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateInstance(ctx, inst); err != nil {
		return "", fmt.Errorf("create workflow instance: %w", err)
	}

	// The instance must outlive the request that started it.
	go e.execute(context.WithoutCancel(ctx), inst)
	return id, nil
}

// Resume re-runs an instance in place. Completed steps are skipped through
// the ledger, so resumption after a crash picks up at the first unfinished
// step.
func (e *Engine) Resume(ctx context.Context, id string) error {
	inst, err := e.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	if inst.State == core.WorkflowCompleted {
		return nil
	}
	go e.execute(context.WithoutCancel(ctx), inst)
	return nil
}

// Status returns the durable record of an instance.
func (e *Engine) Status(ctx context.Context, id string) (core.WorkflowInstance, error) {
	return e.store.GetInstance(ctx, id)
}

func (e *Engine) execute(ctx context.Context, inst core.WorkflowInstance) {
	if err := e.store.UpdateInstance(ctx, inst.ID, core.WorkflowRunning, "", nil); err != nil {
		e.logger.Error("mark workflow running failed", zap.String("instance_id", inst.ID), zap.Error(err))
		return
	}

	step := &Step{engine: e, instanceID: inst.ID, workflow: string(inst.Kind)}
	output, err := e.run(ctx, step, inst)
	if err != nil {
		metrics.IncWorkflowInstance(string(inst.Kind), string(core.WorkflowFailed))
		e.logger.Error("workflow failed",
			zap.String("instance_id", inst.ID),
			zap.String("kind", string(inst.Kind)),
			zap.Error(err),
		)
		if uerr := e.store.UpdateInstance(ctx, inst.ID, core.WorkflowFailed, err.Error(), nil); uerr != nil {
			e.logger.Error("mark workflow failed failed", zap.String("instance_id", inst.ID), zap.Error(uerr))
		}
		return
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		e.logger.Error("encode workflow output failed", zap.String("instance_id", inst.ID), zap.Error(err))
		encoded = nil
	}
	metrics.IncWorkflowInstance(string(inst.Kind), string(core.WorkflowCompleted))
	if err := e.store.UpdateInstance(ctx, inst.ID, core.WorkflowCompleted, "", encoded); err != nil {
		e.logger.Error("mark workflow completed failed", zap.String("instance_id", inst.ID), zap.Error(err))
	}
}

func (e *Engine) run(ctx context.Context, step *Step, inst core.WorkflowInstance) (any, error) {
	switch inst.Kind {
	case core.WorkflowSnapshotDiff:
		var params SnapshotDiffParams
		if err := json.Unmarshal(inst.Params, &params); err != nil {
			return nil, fmt.Errorf("decode snapshot diff params: %w", err)
		}
		return e.snapshotDiff.Run(ctx, step, params)
	case core.WorkflowCompetitorReport:
		var params CompetitorReportParams
		if err := json.Unmarshal(inst.Params, &params); err != nil {
			return nil, fmt.Errorf("decode competitor report params: %w", err)
		}
		return e.competitorReport.Run(ctx, step, params)
	default:
		return nil, fmt.Errorf("unknown workflow kind %q", inst.Kind)
	}
}
