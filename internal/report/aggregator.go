// Package report aggregates per-URL diff history into competitor reports.
package report

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/metrics"
	"github.com/wizenheimer/wayback/internal/snapshot"
)

// Aggregator folds the latest diff of each tracked URL into one report.
type Aggregator struct {
	diffs    core.DiffStore
	analyzer core.Analyzer
	clock    core.Clock
	logger   *zap.Logger
}

// NewAggregator constructs an Aggregator.
func NewAggregator(diffs core.DiffStore, analyzer core.Analyzer, clock core.Clock, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		diffs:    diffs,
		analyzer: analyzer,
		clock:    clock,
		logger:   logger,
	}
}

// Generate builds a report over req.URLs. URLs are processed concurrently
// and independently: a URL with no diff in range is marked skipped, a URL
// whose fetch fails is marked failed, and neither blocks the others. The
// returned report is always valid; per-URL problems land in
// Metadata.Errors, never in the error return.
func (a *Aggregator) Generate(ctx context.Context, req core.ReportRequest) core.AggregatedReport {
	weekNumber := req.WeekNumber
	if weekNumber == "" {
		weekNumber = snapshot.WeekNumber(a.clock.Now())
	}

	rep := core.AggregatedReport{
		Categories: emptyCategories(),
		Metadata: core.ReportMeta{
			GeneratedAt: a.clock.Now(),
			WeekNumber:  weekNumber,
			RunRange: core.RunRange{
				FromRun: req.RunID1,
				ToRun:   req.RunID2,
			},
			Competitor: req.Competitor,
			URLCount:   len(req.URLs),
			ProcessedURLs: core.ProcessedURLs{
				Successful: []string{},
				Failed:     []string{},
				Skipped:    []string{},
			},
			ProcessingStats: core.ProcessingStats{TotalURLs: len(req.URLs)},
			Errors:          map[string]string{},
		},
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, pageURL := range req.URLs {
		wg.Add(1)
		go func(pageURL string) {
			defer wg.Done()

			records, err := a.diffs.DiffHistory(ctx, core.DiffHistoryQuery{
				URL:        pageURL,
				FromRunID:  req.RunID1,
				ToRunID:    req.RunID2,
				WeekNumber: weekNumber,
				Limit:      1,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				rep.Metadata.ProcessedURLs.Failed = append(rep.Metadata.ProcessedURLs.Failed, pageURL)
				rep.Metadata.ProcessingStats.FailureCount++
				rep.Metadata.Errors[pageURL] = err.Error()
				metrics.IncReportURL("failure")
			case len(records) == 0:
				rep.Metadata.ProcessedURLs.Skipped = append(rep.Metadata.ProcessedURLs.Skipped, pageURL)
				rep.Metadata.ProcessingStats.SkippedCount++
				rep.Metadata.Errors[pageURL] = "no diffs found in specified time range"
				metrics.IncReportURL("skipped")
			default:
				mergeRecord(&rep, pageURL, records[0])
				rep.Metadata.ProcessedURLs.Successful = append(rep.Metadata.ProcessedURLs.Successful, pageURL)
				rep.Metadata.ProcessingStats.SuccessCount++
				metrics.IncReportURL("success")
			}
		}(pageURL)
	}
	wg.Wait()

	// Canonical ordering so concurrent accumulation yields a stable result.
	for name, category := range rep.Categories {
		slices.Sort(category.Changes)
		rep.Categories[name] = category
	}
	slices.Sort(rep.Metadata.ProcessedURLs.Successful)
	slices.Sort(rep.Metadata.ProcessedURLs.Failed)
	slices.Sort(rep.Metadata.ProcessedURLs.Skipped)

	a.logger.Info("report generated",
		zap.String("competitor", req.Competitor),
		zap.String("week_number", weekNumber),
		zap.Int("urls", len(req.URLs)),
		zap.Int("successful", rep.Metadata.ProcessingStats.SuccessCount),
		zap.Int("failed", rep.Metadata.ProcessingStats.FailureCount),
		zap.Int("skipped", rep.Metadata.ProcessingStats.SkippedCount),
	)

	return rep
}

// Enrich attaches a short summary to every category that has at least one
// change. A failed enrichment degrades the report (recorded under the
// reserved "enrichment" error key) instead of failing it.
func (a *Aggregator) Enrich(ctx context.Context, rep *core.AggregatedReport) {
	summaries, err := a.analyzer.Summarize(ctx, *rep)
	if err != nil {
		a.logger.Warn("report enrichment failed", zap.Error(err))
		rep.Metadata.Errors[core.EnrichmentErrorKey] = fmt.Sprintf("enrichment failed: %v", err)
		return
	}
	for _, name := range core.CategoryNames {
		category := rep.Categories[name]
		if len(category.Changes) == 0 {
			continue
		}
		if summary, ok := summaries[name]; ok && summary != "" {
			category.Summary = summary
		} else {
			category.Summary = "No significant changes detected."
		}
		rep.Categories[name] = category
	}
	rep.Metadata.Enriched = true
}

func emptyCategories() map[string]core.ReportCategory {
	categories := make(map[string]core.ReportCategory, len(core.CategoryNames))
	for _, name := range core.CategoryNames {
		categories[name] = core.ReportCategory{
			Changes: []string{},
			URLs:    map[string][]string{},
		}
	}
	return categories
}

// mergeRecord folds one URL's diff into the report. Caller holds the lock.
func mergeRecord(rep *core.AggregatedReport, pageURL string, record core.DiffRecord) {
	for _, name := range core.CategoryNames {
		changes := record.Analysis.Category(name)
		if len(changes) == 0 {
			continue
		}
		category := rep.Categories[name]
		for _, change := range changes {
			if !slices.Contains(category.Changes, change) {
				category.Changes = append(category.Changes, change)
			}
			if !slices.Contains(category.URLs[pageURL], change) {
				category.URLs[pageURL] = append(category.URLs[pageURL], change)
			}
		}
		rep.Categories[name] = category
	}
}
