package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/diff"
	"github.com/wizenheimer/wayback/internal/report"
	"github.com/wizenheimer/wayback/internal/scheduler"
	"github.com/wizenheimer/wayback/internal/snapshot"
	storagememory "github.com/wizenheimer/wayback/internal/storage/memory"
	storememory "github.com/wizenheimer/wayback/internal/store/memory"
	"github.com/wizenheimer/wayback/internal/workflow"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("instance-%d", s.n), nil
}

type stubAnalyzer struct{ analysis core.DiffAnalysis }

func (s *stubAnalyzer) Categorize(context.Context, string, string) (core.DiffAnalysis, error) {
	return s.analysis, nil
}

func (s *stubAnalyzer) Summarize(context.Context, core.AggregatedReport) (map[string]string, error) {
	return map[string]string{}, nil
}

type recordingQueue struct{ sent []core.QueueMessage }

func (q *recordingQueue) Send(_ context.Context, msg core.QueueMessage, _ time.Duration) error {
	q.sent = append(q.sent, msg)
	return nil
}

func (q *recordingQueue) Receive(ctx context.Context) (core.QueueMessage, error) {
	<-ctx.Done()
	return core.QueueMessage{}, ctx.Err()
}

type testEnv struct {
	server      *httptest.Server
	blobs       *storagememory.BlobStore
	diffs       *storememory.DiffStore
	competitors *storememory.CompetitorStore
	queue       *recordingQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	logger := zap.NewNop()

	blobs := storagememory.NewBlobStore()
	diffStore := storememory.NewDiffStore()
	competitors := storememory.NewCompetitorStore()
	workflows := storememory.NewWorkflowStore()
	queue := &recordingQueue{}
	analyzer := &stubAnalyzer{}

	snapshots := snapshot.NewService(snapshot.Config{}, http.DefaultClient, blobs, clock, logger)
	diffSvc := diff.NewService(snapshots, diffStore, analyzer, clock, logger)
	aggregator := report.NewAggregator(diffStore, analyzer, clock, logger)

	engine := workflow.NewEngine(
		workflows, clock, &seqIDs{},
		workflow.NewSnapshotDiffWorkflow(nil, diffSvc, logger),
		workflow.NewCompetitorReportWorkflow(competitors, aggregator, nil, logger),
		logger,
	)
	sched := scheduler.New(competitors, queue, clock, scheduler.Config{PageSize: 10, BaseDelay: time.Second}, logger)

	server := httptest.NewServer(NewServer(engine, snapshots, diffSvc, aggregator, sched, logger).Handler())
	t.Cleanup(server.Close)

	return &testEnv{
		server:      server,
		blobs:       blobs,
		diffs:       diffStore,
		competitors: competitors,
		queue:       queue,
	}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(env.server.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestStartDiffWorkflowValidatesInput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/v1/workflow/diff", map[string]string{"url": "https://example.com"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Contains(t, body["error"], "run_id")
}

func TestWorkflowStatusNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/workflow/nope/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestStartReportWorkflowReturnsInstance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.competitors.Add(core.Competitor{ID: 7, Name: "acme", URLs: []string{"https://acme.example.com"}})

	resp := postJSON(t, env.server.URL+"/v1/workflow/report", map[string]any{
		"competitor_id": 7,
		"run_id1":       "1",
		"run_id2":       "7",
		"week_number":   "12",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	require.NotEmpty(t, body["instance_id"])

	statusURL := fmt.Sprintf("%s/v1/workflow/%s/status", env.server.URL, body["instance_id"])
	require.Eventually(t, func() bool {
		resp, err := http.Get(statusURL)
		if err != nil {
			return false
		}
		status := decodeBody(t, resp)
		return status["state"] == string(core.WorkflowCompleted)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCreateDiffMissingContentReturns404(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp := postJSON(t, env.server.URL+"/v1/diff", map[string]string{
		"url":          "https://example.com",
		"run_id1":      "1",
		"run_id2":      "7",
		"week_number1": "12",
		"week_number2": "12",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDiffHistoryRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.NoError(t, env.diffs.InsertDiff(context.Background(), core.DiffRecord{
		URL:        "https://example.com",
		RunID1:     "1",
		RunID2:     "7",
		WeekNumber: "12",
		Analysis:   core.DiffAnalysis{Pricing: []string{"Pro plan rose to $49"}},
	}))

	resp, err := http.Get(env.server.URL + "/v1/diff/history?url=https://example.com")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.EqualValues(t, 1, body["count"])

	resp, err = http.Get(env.server.URL + "/v1/diff/history")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGenerateReportAggregates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.NoError(t, env.diffs.InsertDiff(context.Background(), core.DiffRecord{
		URL:        "https://acme.example.com",
		RunID1:     "1",
		RunID2:     "7",
		WeekNumber: "12",
		Analysis:   core.DiffAnalysis{Pricing: []string{"Pro plan rose to $49"}},
	}))

	resp := postJSON(t, env.server.URL+"/v1/report", map[string]any{
		"urls":        []string{"https://acme.example.com"},
		"run_id1":     "1",
		"run_id2":     "7",
		"week_number": "12",
		"competitor":  "acme",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep core.AggregatedReport
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	require.Equal(t, []string{"Pro plan rose to $49"}, rep.Categories["pricing"].Changes)
	require.Equal(t, 1, rep.Metadata.ProcessingStats.SuccessCount)
}

func TestTriggerDiffBatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.competitors.Add(core.Competitor{ID: 1, Name: "acme", URLs: []string{"https://acme.example.com"}})

	resp := postJSON(t, env.server.URL+"/v1/batch/diff", map[string]string{"run_id": "7", "week_number": "12"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	require.EqualValues(t, 1, body["scheduled"])
	require.Len(t, env.queue.sent, 1)

	resp = postJSON(t, env.server.URL+"/v1/batch/diff", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSnapshotReadEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ref := snapshot.Locate("https://example.com", "12", "7")
	_, err := env.blobs.PutObject(context.Background(), snapshot.ContentPath(ref), "text/plain", []byte("stored text"))
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("%s/v1/content/%s/12/7", env.server.URL, ref.URLHash))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("%s/v1/screenshot/%s/12/7", env.server.URL, ref.URLHash))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
