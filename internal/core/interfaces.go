package core

import (
	"context"
	"time"
)

// BlobStore reads and writes snapshot artifacts at scheme-derived paths.
// GetObject returns ErrObjectNotFound when nothing exists at the path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Capturer invokes the external capture collaborator and stores the
// resulting image and cleaned text through the path scheme.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
}

// DiffStore persists diff history rows. InsertDiff is append-only.
type DiffStore interface {
	InsertDiff(ctx context.Context, record DiffRecord) error
	DiffHistory(ctx context.Context, q DiffHistoryQuery) ([]DiffRecord, error)
}

// CompetitorStore is the read-only view of competitor/URL/subscription rows
// maintained by the CRUD surface outside this core.
type CompetitorStore interface {
	GetCompetitor(ctx context.Context, id int64) (Competitor, error)
	ListCompetitors(ctx context.Context, limit, offset int) ([]Competitor, error)
	ListURLs(ctx context.Context, limit, offset int) ([]string, error)
	Subscribers(ctx context.Context, competitorID int64) ([]string, error)
}

// Analyzer is the text-differencing collaborator. Categorize may refuse,
// surfaced as ErrAnalyzerRefused.
type Analyzer interface {
	Categorize(ctx context.Context, before, after string) (DiffAnalysis, error)
	Summarize(ctx context.Context, report AggregatedReport) (map[string]string, error)
}

// Notifier dispatches a rendered email to recipients with per-recipient
// partial failure.
type Notifier interface {
	Send(ctx context.Context, msg EmailMessage, recipients []string) (SendResult, error)
}

// Queue delivers workflow-start messages at least once, honoring a
// per-message delivery delay.
type Queue interface {
	Send(ctx context.Context, msg QueueMessage, delay time.Duration) error
	Receive(ctx context.Context) (QueueMessage, error)
}

// WorkflowStore persists workflow instances and the step-output ledger that
// makes re-entry skip completed steps.
type WorkflowStore interface {
	CreateInstance(ctx context.Context, inst WorkflowInstance) error
	UpdateInstance(ctx context.Context, id string, state WorkflowState, errText string, output []byte) error
	GetInstance(ctx context.Context, id string) (WorkflowInstance, error)

	GetStepOutput(ctx context.Context, instanceID, step string) ([]byte, bool, error)
	PutStepOutput(ctx context.Context, instanceID, step string, output []byte) error
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces workflow instance IDs.
type IDGenerator interface {
	NewID() (string, error)
}
