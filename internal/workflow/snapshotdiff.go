package workflow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/diff"
	"github.com/wizenheimer/wayback/internal/metrics"
)

// SnapshotDiffParams start one snapshot-then-diff instance for a URL.
type SnapshotDiffParams struct {
	URL        string `json:"url"`
	RunID      string `json:"run_id"`
	WeekNumber string `json:"week_number"`
}

// SnapshotVersion identifies one captured version of a URL.
type SnapshotVersion struct {
	WeekNumber string             `json:"week_number"`
	RunID      string             `json:"run_id"`
	Paths      core.SnapshotPaths `json:"paths,omitempty"`
}

// SnapshotDiffOutput is the durable result of a snapshot-then-diff
// instance.
type SnapshotDiffOutput struct {
	CurrentVersion    SnapshotVersion `json:"current_version"`
	ComparisonVersion SnapshotVersion `json:"comparison_version"`
	Diff              core.DiffResult `json:"diff"`
}

// SnapshotDiffWorkflow captures a fresh snapshot of a URL and diffs it
// against the resolved comparison run.
type SnapshotDiffWorkflow struct {
	capturer core.Capturer
	diffs    *diff.Service
	logger   *zap.Logger
}

// NewSnapshotDiffWorkflow constructs the workflow definition.
func NewSnapshotDiffWorkflow(capturer core.Capturer, diffs *diff.Service, logger *zap.Logger) *SnapshotDiffWorkflow {
	return &SnapshotDiffWorkflow{
		capturer: capturer,
		diffs:    diffs,
		logger:   logger,
	}
}

// Run executes the two steps: capture, then diff against the comparison
// run picked by the resolver.
func (w *SnapshotDiffWorkflow) Run(ctx context.Context, step *Step, params SnapshotDiffParams) (SnapshotDiffOutput, error) {
	comparison := diff.Resolve(params.WeekNumber, params.RunID)

	w.logger.Info("starting snapshot diff workflow",
		zap.String("url", params.URL),
		zap.String("run_id", params.RunID),
		zap.String("week_number", params.WeekNumber),
		zap.String("comparison_week", comparison.WeekNumber),
		zap.String("comparison_run_id", comparison.RunID),
	)

	captureResult, err := Do(ctx, step, "take-screenshot", StepPolicy{
		Retries: 2,
		Delay:   3 * time.Second,
		Timeout: 2 * time.Minute,
	}, func(ctx context.Context) (core.CaptureResult, error) {
		result, err := w.capturer.Capture(ctx, core.CaptureRequest{
			URL:        params.URL,
			WeekNumber: params.WeekNumber,
			RunID:      params.RunID,
			Options:    core.DefaultCaptureOptions(),
		})
		if err != nil {
			metrics.IncCapture("failure")
			return core.CaptureResult{}, err
		}
		if result.Paths.Image == "" {
			metrics.IncCapture("failure")
			return core.CaptureResult{}, core.NonRetryablef("screenshot failed: no paths returned")
		}
		metrics.IncCapture("success")
		return result, nil
	})
	if err != nil {
		return SnapshotDiffOutput{}, err
	}

	diffResult, err := Do(ctx, step, "create-diff", StepPolicy{
		Retries: 2,
		Delay:   3 * time.Second,
		Timeout: 5 * time.Minute,
	}, func(ctx context.Context) (core.DiffResult, error) {
		result, err := w.diffs.CreateDiff(ctx, core.DiffRequest{
			URL:         params.URL,
			RunID1:      comparison.RunID,
			RunID2:      params.RunID,
			WeekNumber1: comparison.WeekNumber,
			WeekNumber2: params.WeekNumber,
		})
		if err != nil {
			return core.DiffResult{}, classifyDiffError(err)
		}
		return result, nil
	})
	if err != nil {
		return SnapshotDiffOutput{}, err
	}

	return SnapshotDiffOutput{
		CurrentVersion: SnapshotVersion{
			WeekNumber: params.WeekNumber,
			RunID:      params.RunID,
			Paths:      captureResult.Paths,
		},
		ComparisonVersion: SnapshotVersion{
			WeekNumber: comparison.WeekNumber,
			RunID:      comparison.RunID,
		},
		Diff: diffResult,
	}, nil
}

// classifyDiffError marks content-not-found and analyzer refusal as
// terminal: the content genuinely is not there yet (or the analyzer will
// keep refusing the same input), so retrying cannot help. Everything else
// is assumed transient.
func classifyDiffError(err error) error {
	switch {
	case errors.Is(err, core.ErrBothContentNotFound),
		errors.Is(err, core.ErrFirstContentNotFound),
		errors.Is(err, core.ErrSecondContentNotFound),
		errors.Is(err, core.ErrAnalyzerRefused):
		return core.NonRetryable(err)
	default:
		return err
	}
}
