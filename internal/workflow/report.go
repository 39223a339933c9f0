package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/notify"
	"github.com/wizenheimer/wayback/internal/report"
)

// CompetitorReportParams start one report instance for a competitor.
type CompetitorReportParams struct {
	CompetitorID int64  `json:"competitor_id"`
	RunID1       string `json:"run_id1"`
	RunID2       string `json:"run_id2"`
	WeekNumber   string `json:"week_number"`
}

// NotificationStats summarizes the dispatch step.
type NotificationStats struct {
	SubscriberCount         int `json:"subscriber_count"`
	SuccessfulNotifications int `json:"successful_notifications"`
	FailedNotifications     int `json:"failed_notifications"`
}

// CompetitorReportOutput is the durable result of a report instance.
type CompetitorReportOutput struct {
	Competitor    core.Competitor       `json:"competitor"`
	Report        core.AggregatedReport `json:"report"`
	Notifications *core.SendResult      `json:"notifications,omitempty"`
	Stats         NotificationStats     `json:"stats"`
	Message       string                `json:"message,omitempty"`
}

// CompetitorReportWorkflow builds, enriches, and dispatches one
// competitor's report. Steps are strictly sequential; each consumes the
// previous step's output.
type CompetitorReportWorkflow struct {
	competitors core.CompetitorStore
	aggregator  *report.Aggregator
	notifier    core.Notifier
	logger      *zap.Logger
}

// NewCompetitorReportWorkflow constructs the workflow definition.
func NewCompetitorReportWorkflow(
	competitors core.CompetitorStore,
	aggregator *report.Aggregator,
	notifier core.Notifier,
	logger *zap.Logger,
) *CompetitorReportWorkflow {
	return &CompetitorReportWorkflow{
		competitors: competitors,
		aggregator:  aggregator,
		notifier:    notifier,
		logger:      logger,
	}
}

// Run executes the five report steps: fetch competitor, fetch subscribers,
// aggregate, enrich, notify. A competitor with zero subscribers still
// completes successfully with a note that nothing was sent.
func (w *CompetitorReportWorkflow) Run(ctx context.Context, step *Step, params CompetitorReportParams) (CompetitorReportOutput, error) {
	competitor, err := Do(ctx, step, "fetch-competitor-details", StepPolicy{
		Retries: 3,
		Delay:   10 * time.Second,
		Timeout: 30 * time.Second,
	}, func(ctx context.Context) (core.Competitor, error) {
		competitor, err := w.competitors.GetCompetitor(ctx, params.CompetitorID)
		if errors.Is(err, core.ErrCompetitorNotFound) {
			// There is nothing to retry against a missing row.
			return core.Competitor{}, core.NonRetryablef("competitor with id %d not found", params.CompetitorID)
		}
		return competitor, err
	})
	if err != nil {
		return CompetitorReportOutput{}, err
	}

	subscribers, err := Do(ctx, step, "fetch-subscriber-details", StepPolicy{
		Retries: 3,
		Delay:   10 * time.Second,
		Timeout: 30 * time.Second,
	}, func(ctx context.Context) ([]string, error) {
		return w.competitors.Subscribers(ctx, params.CompetitorID)
	})
	if err != nil {
		return CompetitorReportOutput{}, err
	}

	rawReport, err := Do(ctx, step, "fetch-report", StepPolicy{
		Retries: 3,
		Delay:   30 * time.Second,
		Timeout: 5 * time.Minute,
	}, func(ctx context.Context) (core.AggregatedReport, error) {
		return w.aggregator.Generate(ctx, core.ReportRequest{
			URLs:       competitor.URLs,
			RunID1:     params.RunID1,
			RunID2:     params.RunID2,
			WeekNumber: params.WeekNumber,
			Competitor: competitor.Name,
		}), nil
	})
	if err != nil {
		return CompetitorReportOutput{}, err
	}

	enrichedReport, err := Do(ctx, step, "enrich-report", StepPolicy{
		Retries: 3,
		Delay:   30 * time.Second,
		Timeout: 5 * time.Minute,
	}, func(ctx context.Context) (core.AggregatedReport, error) {
		enriched := rawReport
		w.aggregator.Enrich(ctx, &enriched)
		return enriched, nil
	})
	if err != nil {
		return CompetitorReportOutput{}, err
	}

	if len(subscribers) == 0 {
		return CompetitorReportOutput{
			Competitor: competitor,
			Report:     enrichedReport,
			Stats:      NotificationStats{},
			Message:    "no subscribers found for this competitor",
		}, nil
	}

	sendResult, err := Do(ctx, step, "send-notifications", StepPolicy{
		Retries: 5,
		Delay:   time.Minute,
		Timeout: 10 * time.Minute,
	}, func(ctx context.Context) (core.SendResult, error) {
		msg, err := notify.Render(notify.DiffReport{
			Competitor: competitor.Name,
			WeekNumber: enrichedReport.Metadata.WeekNumber,
			Report:     enrichedReport,
		})
		if err != nil {
			return core.SendResult{}, core.NonRetryable(fmt.Errorf("render report email: %w", err))
		}
		return w.notifier.Send(ctx, msg, subscribers)
	})
	if err != nil {
		return CompetitorReportOutput{}, err
	}

	return CompetitorReportOutput{
		Competitor:    competitor,
		Report:        enrichedReport,
		Notifications: &sendResult,
		Stats: NotificationStats{
			SubscriberCount:         len(subscribers),
			SuccessfulNotifications: len(sendResult.Successful),
			FailedNotifications:     len(sendResult.Failed),
		},
	}, nil
}
