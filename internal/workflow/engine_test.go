package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/diff"
	"github.com/wizenheimer/wayback/internal/report"
	storememory "github.com/wizenheimer/wayback/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("instance-%d", s.n.Add(1)), nil
}

func newTestEngine(snapshotDiff *SnapshotDiffWorkflow, competitorReport *CompetitorReportWorkflow) *Engine {
	return NewEngine(
		storememory.NewWorkflowStore(),
		fixedClock{now: time.Unix(1700000000, 0).UTC()},
		&seqIDs{},
		snapshotDiff,
		competitorReport,
		zap.NewNop(),
	)
}

func newTestStep(t *testing.T, engine *Engine) *Step {
	t.Helper()
	inst := core.WorkflowInstance{
		ID:    "instance-under-test",
		Kind:  core.WorkflowSnapshotDiff,
		State: core.WorkflowPending,
	}
	require.NoError(t, engine.store.CreateInstance(context.Background(), inst))
	return &Step{engine: engine, instanceID: inst.ID, workflow: string(inst.Kind)}
}

func quickPolicy(retries int) StepPolicy {
	return StepPolicy{Retries: retries, Delay: time.Millisecond, Timeout: time.Second}
}

func TestDoMemoizesCompletedSteps(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(nil, nil)
	step := newTestStep(t, engine)

	var calls int
	fn := func(context.Context) (string, error) {
		calls++
		return fmt.Sprintf("result-%d", calls), nil
	}

	first, err := Do(context.Background(), step, "fetch", quickPolicy(0), fn)
	require.NoError(t, err)
	second, err := Do(context.Background(), step, "fetch", quickPolicy(0), fn)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(nil, nil)
	step := newTestStep(t, engine)

	var calls int
	out, err := Do(context.Background(), step, "flaky", quickPolicy(2), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient failure")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, out)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(nil, nil)
	step := newTestStep(t, engine)

	var calls int
	_, err := Do(context.Background(), step, "doomed", quickPolicy(2), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient failure")
	})
	require.ErrorContains(t, err, "transient failure")
	require.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(nil, nil)
	step := newTestStep(t, engine)

	var calls int
	_, err := Do(context.Background(), step, "terminal", quickPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, core.NonRetryablef("content missing")
	})
	require.ErrorContains(t, err, "content missing")
	require.Equal(t, 1, calls)
}

func TestDoDoesNotRecordFailedSteps(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(nil, nil)
	step := newTestStep(t, engine)

	_, err := Do(context.Background(), step, "fails-then-works", quickPolicy(0), func(context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)

	out, err := Do(context.Background(), step, "fails-then-works", quickPolicy(0), func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, out)
}

type fakeCapturer struct {
	result core.CaptureResult
	err    error
	calls  atomic.Int64
}

func (f *fakeCapturer) Capture(_ context.Context, _ core.CaptureRequest) (core.CaptureResult, error) {
	f.calls.Add(1)
	return f.result, f.err
}

type stubContents struct{ pages map[string][]byte }

func (s *stubContents) Content(_ context.Context, url, week, run string) ([]byte, error) {
	data, ok := s.pages[url+"|"+week+"|"+run]
	if !ok {
		return nil, core.ErrObjectNotFound
	}
	return data, nil
}

type stubDiffStore struct{ records []core.DiffRecord }

func (s *stubDiffStore) InsertDiff(_ context.Context, rec core.DiffRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *stubDiffStore) DiffHistory(_ context.Context, _ core.DiffHistoryQuery) ([]core.DiffRecord, error) {
	return s.records, nil
}

type stubAnalyzer struct {
	analysis  core.DiffAnalysis
	summaries map[string]string
}

func (s *stubAnalyzer) Categorize(_ context.Context, _, _ string) (core.DiffAnalysis, error) {
	return s.analysis, nil
}

func (s *stubAnalyzer) Summarize(_ context.Context, _ core.AggregatedReport) (map[string]string, error) {
	return s.summaries, nil
}

type stubNotifier struct {
	result core.SendResult
	calls  atomic.Int64
}

func (s *stubNotifier) Send(_ context.Context, _ core.EmailMessage, _ []string) (core.SendResult, error) {
	s.calls.Add(1)
	return s.result, nil
}

func waitForState(t *testing.T, engine *Engine, id string, want core.WorkflowState) core.WorkflowInstance {
	t.Helper()
	var inst core.WorkflowInstance
	require.Eventually(t, func() bool {
		got, err := engine.Status(context.Background(), id)
		if err != nil {
			return false
		}
		inst = got
		return got.State == want
	}, 5*time.Second, 10*time.Millisecond)
	return inst
}

func TestSnapshotDiffWorkflowCompletes(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	contents := &stubContents{pages: map[string][]byte{
		"https://example.com|12|1": []byte("old"),
		"https://example.com|12|7": []byte("new"),
	}}
	diffSvc := diff.NewService(contents, &stubDiffStore{}, &stubAnalyzer{
		analysis: core.DiffAnalysis{Pricing: []string{"Pro plan rose to $49"}},
	}, clock, zap.NewNop())
	capturer := &fakeCapturer{result: core.CaptureResult{
		Paths: core.SnapshotPaths{Image: "screenshot/x/12/7", Content: "content/x/12/7"},
	}}

	engine := newTestEngine(NewSnapshotDiffWorkflow(capturer, diffSvc, zap.NewNop()), nil)

	id, err := engine.StartSnapshotDiff(context.Background(), SnapshotDiffParams{
		URL:        "https://example.com",
		RunID:      "7",
		WeekNumber: "12",
	})
	require.NoError(t, err)

	inst := waitForState(t, engine, id, core.WorkflowCompleted)
	require.Empty(t, inst.ErrorText)
	require.Contains(t, string(inst.Output), `"week_number":"12"`)
	require.Contains(t, string(inst.Output), "Pro plan rose to $49")
	require.EqualValues(t, 1, capturer.calls.Load())
}

func TestSnapshotDiffWorkflowFailsTerminallyOnMissingContent(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	diffSvc := diff.NewService(&stubContents{pages: map[string][]byte{}}, &stubDiffStore{}, &stubAnalyzer{}, clock, zap.NewNop())
	capturer := &fakeCapturer{result: core.CaptureResult{
		Paths: core.SnapshotPaths{Image: "screenshot/x/12/7"},
	}}

	engine := newTestEngine(NewSnapshotDiffWorkflow(capturer, diffSvc, zap.NewNop()), nil)

	id, err := engine.StartSnapshotDiff(context.Background(), SnapshotDiffParams{
		URL:        "https://example.com",
		RunID:      "7",
		WeekNumber: "12",
	})
	require.NoError(t, err)

	inst := waitForState(t, engine, id, core.WorkflowFailed)
	require.Contains(t, inst.ErrorText, "content")
}

func TestReportWorkflowWithoutSubscribersSkipsDispatch(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	competitors := storememory.NewCompetitorStore()
	competitors.Add(core.Competitor{ID: 7, Name: "acme", URLs: []string{"https://acme.example.com"}})

	aggregator := report.NewAggregator(&stubDiffStore{}, &stubAnalyzer{}, clock, zap.NewNop())
	notifier := &stubNotifier{}

	engine := newTestEngine(nil, NewCompetitorReportWorkflow(competitors, aggregator, notifier, zap.NewNop()))

	id, err := engine.StartCompetitorReport(context.Background(), CompetitorReportParams{
		CompetitorID: 7,
		RunID1:       "1",
		RunID2:       "7",
		WeekNumber:   "12",
	})
	require.NoError(t, err)

	inst := waitForState(t, engine, id, core.WorkflowCompleted)
	require.Contains(t, string(inst.Output), "no subscribers found for this competitor")
	require.EqualValues(t, 0, notifier.calls.Load())
}

func TestReportWorkflowDispatchesToSubscribers(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	competitors := storememory.NewCompetitorStore()
	competitors.Add(core.Competitor{ID: 7, Name: "acme", URLs: []string{"https://acme.example.com"}})
	competitors.Subscribe(7, "analyst@example.com")

	diffs := &stubDiffStore{records: []core.DiffRecord{
		{URL: "https://acme.example.com", Analysis: core.DiffAnalysis{Pricing: []string{"New tier"}}},
	}}
	aggregator := report.NewAggregator(diffs, &stubAnalyzer{summaries: map[string]string{"pricing": "Pricing moved."}}, clock, zap.NewNop())
	notifier := &stubNotifier{result: core.SendResult{Successful: []string{"analyst@example.com"}}}

	engine := newTestEngine(nil, NewCompetitorReportWorkflow(competitors, aggregator, notifier, zap.NewNop()))

	id, err := engine.StartCompetitorReport(context.Background(), CompetitorReportParams{
		CompetitorID: 7,
		RunID1:       "1",
		RunID2:       "7",
		WeekNumber:   "12",
	})
	require.NoError(t, err)

	inst := waitForState(t, engine, id, core.WorkflowCompleted)
	require.EqualValues(t, 1, notifier.calls.Load())
	require.Contains(t, string(inst.Output), `"subscriber_count":1`)
}

func TestReportWorkflowFailsFastOnMissingCompetitor(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	aggregator := report.NewAggregator(&stubDiffStore{}, &stubAnalyzer{}, clock, zap.NewNop())

	engine := newTestEngine(nil, NewCompetitorReportWorkflow(storememory.NewCompetitorStore(), aggregator, &stubNotifier{}, zap.NewNop()))

	id, err := engine.StartCompetitorReport(context.Background(), CompetitorReportParams{CompetitorID: 404})
	require.NoError(t, err)

	inst := waitForState(t, engine, id, core.WorkflowFailed)
	require.Contains(t, inst.ErrorText, "competitor with id 404 not found")
}

func TestResumeSkipsCompletedWorkflow(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(nil, nil)
	inst := core.WorkflowInstance{
		ID:    "done",
		Kind:  core.WorkflowSnapshotDiff,
		State: core.WorkflowCompleted,
	}
	require.NoError(t, engine.store.CreateInstance(context.Background(), inst))

	require.NoError(t, engine.Resume(context.Background(), "done"))
	require.ErrorIs(t, engine.Resume(context.Background(), "missing"), core.ErrWorkflowNotFound)
}
