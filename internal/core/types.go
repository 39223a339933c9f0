// Package core defines shared types and collaborator interfaces for the
// snapshot/diff/report pipeline.
package core

import (
	"time"
)

// Category names in the order the analyzer reports them and reports render them.
const (
	CategoryBranding    = "branding"
	CategoryIntegration = "integration"
	CategoryPricing     = "pricing"
	CategoryProduct     = "product"
	CategoryPositioning = "positioning"
	CategoryPartnership = "partnership"
)

// DefaultHistoryLimit bounds diff history queries that omit a limit.
const DefaultHistoryLimit = 10

// CategoryNames lists the six fixed diff categories in render order.
var CategoryNames = []string{
	CategoryBranding,
	CategoryIntegration,
	CategoryPricing,
	CategoryProduct,
	CategoryPositioning,
	CategoryPartnership,
}

// Run identifiers for the two scheduled captures per week.
const (
	RunWeekStart = "1"
	RunWeekEnd   = "7"
)

// SnapshotRef addresses one logical capture (image blob + text blob).
// A given (URLHash, WeekNumber, RunID) triple always resolves to the same
// blob paths; blobs are written once and never mutated.
type SnapshotRef struct {
	URLHash    string `json:"url_hash"`
	WeekNumber string `json:"week_number"`
	RunID      string `json:"run_id"`
}

// SnapshotPaths carries the derived blob locations for one snapshot.
type SnapshotPaths struct {
	Image   string `json:"image"`
	Content string `json:"content"`
}

// SnapshotMeta captures metadata extracted from the capture collaborator's
// response headers.
type SnapshotMeta struct {
	SourceURL   string    `json:"source_url"`
	FetchedAt   time.Time `json:"fetched_at"`
	ImageWidth  int       `json:"image_width"`
	ImageHeight int       `json:"image_height"`
	PageTitle   string    `json:"page_title,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
}

// CaptureOptions are pass-through knobs for the external capture service.
type CaptureOptions struct {
	Format            string   `json:"format"`
	ImageQuality      int      `json:"image_quality"`
	FullPage          bool     `json:"full_page"`
	BlockAds          bool     `json:"block_ads"`
	BlockCookieBanner bool     `json:"block_cookie_banners"`
	BlockTrackers     bool     `json:"block_trackers"`
	BlockChats        bool     `json:"block_chats"`
	Delay             int      `json:"delay"`
	Timeout           int      `json:"timeout"`
	NavigationTimeout int      `json:"navigation_timeout"`
	WaitUntil         []string `json:"wait_until"`
	DarkMode          bool     `json:"dark_mode"`
	ReducedMotion     bool     `json:"reduced_motion"`
}

// DefaultCaptureOptions mirror the production capture profile.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		Format:            "png",
		ImageQuality:      80,
		FullPage:          true,
		BlockAds:          true,
		BlockCookieBanner: true,
		BlockTrackers:     true,
		BlockChats:        true,
		Timeout:           60,
		NavigationTimeout: 30,
		WaitUntil:         []string{"networkidle2", "networkidle0"},
		ReducedMotion:     true,
	}
}

// CaptureRequest asks the capture service for a fresh snapshot of a URL.
type CaptureRequest struct {
	URL        string         `json:"url"`
	WeekNumber string         `json:"week_number"`
	RunID      string         `json:"run_id"`
	Options    CaptureOptions `json:"options"`
}

// CaptureResult reports where the snapshot landed plus extracted metadata.
type CaptureResult struct {
	Paths    SnapshotPaths `json:"paths"`
	Metadata SnapshotMeta  `json:"metadata"`
}

// DiffAnalysis holds the categorized change descriptions between two
// snapshots, one string slice per fixed category.
type DiffAnalysis struct {
	Branding    []string `json:"branding"`
	Integration []string `json:"integration"`
	Pricing     []string `json:"pricing"`
	Product     []string `json:"product"`
	Positioning []string `json:"positioning"`
	Partnership []string `json:"partnership"`
}

// Category returns the change list for a named category. Unknown names
// return nil.
func (d DiffAnalysis) Category(name string) []string {
	switch name {
	case CategoryBranding:
		return d.Branding
	case CategoryIntegration:
		return d.Integration
	case CategoryPricing:
		return d.Pricing
	case CategoryProduct:
		return d.Product
	case CategoryPositioning:
		return d.Positioning
	case CategoryPartnership:
		return d.Partnership
	default:
		return nil
	}
}

// SetCategory replaces the change list for a named category. Unknown names
// are ignored.
func (d *DiffAnalysis) SetCategory(name string, changes []string) {
	switch name {
	case CategoryBranding:
		d.Branding = changes
	case CategoryIntegration:
		d.Integration = changes
	case CategoryPricing:
		d.Pricing = changes
	case CategoryProduct:
		d.Product = changes
	case CategoryPositioning:
		d.Positioning = changes
	case CategoryPartnership:
		d.Partnership = changes
	}
}

// Empty reports whether no category carries any change.
func (d DiffAnalysis) Empty() bool {
	for _, name := range CategoryNames {
		if len(d.Category(name)) > 0 {
			return false
		}
	}
	return true
}

// DiffRecord is one persisted comparison between two runs of a URL.
// History is append-only; re-diffing the same pair inserts a new row.
type DiffRecord struct {
	ID         int64        `json:"id"`
	URL        string       `json:"url"`
	RunID1     string       `json:"run_id1"`
	RunID2     string       `json:"run_id2"`
	WeekNumber string       `json:"week_number"`
	Analysis   DiffAnalysis `json:"analysis"`
	CreatedAt  time.Time    `json:"created_at"`
}

// DiffRequest asks the diff engine to compare two stored snapshots.
// Unset week numbers default to the current week.
type DiffRequest struct {
	URL         string `json:"url"`
	RunID1      string `json:"run_id1"`
	RunID2      string `json:"run_id2"`
	WeekNumber1 string `json:"week_number1,omitempty"`
	WeekNumber2 string `json:"week_number2,omitempty"`
}

// DiffResult is what CreateDiff returns to callers.
type DiffResult struct {
	Differences DiffAnalysis `json:"differences"`
	Metadata    DiffMeta     `json:"metadata"`
}

// DiffMeta describes which snapshots a diff covered and when it ran.
type DiffMeta struct {
	URL         string    `json:"url"`
	RunID1      string    `json:"run_id1"`
	RunID2      string    `json:"run_id2"`
	WeekNumber1 string    `json:"week_number1"`
	WeekNumber2 string    `json:"week_number2"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// DiffHistoryQuery filters stored diffs for one URL. Run bounds are
// inclusive and either may be open; WeekNumber is an exact match when set.
type DiffHistoryQuery struct {
	URL        string `json:"url"`
	FromRunID  string `json:"from_run_id,omitempty"`
	ToRunID    string `json:"to_run_id,omitempty"`
	WeekNumber string `json:"week_number,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// ReportRequest asks the aggregator to fold the latest diffs of many URLs
// into one competitor report.
type ReportRequest struct {
	URLs       []string `json:"urls"`
	RunID1     string   `json:"run_id1,omitempty"`
	RunID2     string   `json:"run_id2,omitempty"`
	WeekNumber string   `json:"week_number,omitempty"`
	Competitor string   `json:"competitor"`
	Enriched   bool     `json:"enriched"`
}

// ReportCategory aggregates one category across all URLs in a report.
// Changes is deduplicated across the whole report; every string in URLs[u]
// also appears in Changes. Summary is set only after enrichment and only
// when the category has at least one change.
type ReportCategory struct {
	Changes []string            `json:"changes"`
	URLs    map[string][]string `json:"urls"`
	Summary string              `json:"summary,omitempty"`
}

// RunRange bounds the run identifiers a report covered.
type RunRange struct {
	FromRun string `json:"from_run"`
	ToRun   string `json:"to_run"`
}

// ProcessedURLs partitions report input URLs by outcome. The three slices
// always cover the input URL set exactly once each.
type ProcessedURLs struct {
	Successful []string `json:"successful"`
	Failed     []string `json:"failed"`
	Skipped    []string `json:"skipped"`
}

// ProcessingStats counts report outcomes.
type ProcessingStats struct {
	TotalURLs    int `json:"total_urls"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	SkippedCount int `json:"skipped_count"`
}

// ReportMeta carries bookkeeping for one generated report.
// Both failed and skipped URLs get an entry in Errors; presence in Errors
// does not imply failure.
type ReportMeta struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	WeekNumber      string            `json:"week_number"`
	RunRange        RunRange          `json:"run_range"`
	Competitor      string            `json:"competitor"`
	URLCount        int               `json:"url_count"`
	ProcessedURLs   ProcessedURLs     `json:"processed_urls"`
	ProcessingStats ProcessingStats   `json:"processing_stats"`
	Errors          map[string]string `json:"errors"`
	Enriched        bool              `json:"enriched"`
}

// AggregatedReport is the merged view of the latest diffs across a
// competitor's tracked URLs. It has no persisted identity; it lives only as
// long as the report workflow that built it.
type AggregatedReport struct {
	Categories map[string]ReportCategory `json:"categories"`
	Metadata   ReportMeta                `json:"metadata"`
}

// EnrichmentErrorKey is the reserved Errors key recording a failed
// enrichment pass.
const EnrichmentErrorKey = "enrichment"

// Competitor is the read-only projection of a competitor row and its
// tracked URLs.
type Competitor struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	URLs []string `json:"urls"`
}

// EmailMessage is a rendered email ready for dispatch.
type EmailMessage struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// SendResult records per-recipient dispatch outcomes. Delivery is not
// all-or-nothing.
type SendResult struct {
	Successful []string `json:"successful"`
	Failed     []string `json:"failed"`
}

// WorkflowKind discriminates the two workflow types.
type WorkflowKind string

// Workflow kinds started by the scheduler and the API.
const (
	WorkflowSnapshotDiff     WorkflowKind = "snapshot_diff"
	WorkflowCompetitorReport WorkflowKind = "competitor_report"
)

// WorkflowState is the lifecycle state of one workflow instance.
type WorkflowState string

// Workflow instance states persisted in the workflow store.
const (
	WorkflowPending   WorkflowState = "pending"
	WorkflowRunning   WorkflowState = "running"
	WorkflowCompleted WorkflowState = "completed"
	WorkflowFailed    WorkflowState = "failed"
)

// WorkflowInstance is the durable record of one workflow execution.
type WorkflowInstance struct {
	ID        string        `json:"id"`
	Kind      WorkflowKind  `json:"kind"`
	Params    []byte        `json:"params"`
	State     WorkflowState `json:"state"`
	ErrorText string        `json:"error_text,omitempty"`
	Output    []byte        `json:"output,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// QueueMessage is one scheduled workflow start, delivered at least once.
// Deduplication happens at the workflow layer via step memoization, not in
// the queue.
type QueueMessage struct {
	Kind         WorkflowKind `json:"kind"`
	URL          string       `json:"url,omitempty"`
	CompetitorID int64        `json:"competitor_id,omitempty"`
	RunID        string       `json:"run_id,omitempty"`
	RunID1       string       `json:"run_id1,omitempty"`
	RunID2       string       `json:"run_id2,omitempty"`
	WeekNumber   string       `json:"week_number"`
}
