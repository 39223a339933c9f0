// Package api exposes the HTTP interface for the snapshot pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/diff"
	"github.com/wizenheimer/wayback/internal/metrics"
	"github.com/wizenheimer/wayback/internal/report"
	"github.com/wizenheimer/wayback/internal/scheduler"
	"github.com/wizenheimer/wayback/internal/snapshot"
	"github.com/wizenheimer/wayback/internal/workflow"
)

// Server wires HTTP handlers to the workflow engine and services.
type Server struct {
	router     chi.Router
	engine     *workflow.Engine
	snapshots  *snapshot.Service
	diffs      *diff.Service
	aggregator *report.Aggregator
	scheduler  *scheduler.Scheduler
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	engine *workflow.Engine,
	snapshots *snapshot.Service,
	diffs *diff.Service,
	aggregator *report.Aggregator,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:     engine,
		snapshots:  snapshots,
		diffs:      diffs,
		aggregator: aggregator,
		scheduler:  sched,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(10 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/workflow", func(r chi.Router) {
			r.Post("/diff", s.startDiffWorkflow)
			r.Post("/report", s.startReportWorkflow)
			r.Get("/{instance_id}/status", s.workflowStatus)
			r.Post("/{instance_id}/resume", s.resumeWorkflow)
		})
		r.Post("/diff", s.createDiff)
		r.Get("/diff/history", s.diffHistory)
		r.Post("/report", s.generateReport)
		r.Route("/batch", func(r chi.Router) {
			r.Post("/diff", s.triggerDiffBatch)
			r.Post("/report", s.triggerReportBatch)
		})
		r.Get("/content/{hash}/{week}/{run}", s.getContent)
		r.Get("/screenshot/{hash}/{week}/{run}", s.getScreenshot)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startDiffWorkflow(w http.ResponseWriter, r *http.Request) {
	var params workflow.SnapshotDiffParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if params.URL == "" || params.RunID == "" {
		writeError(w, http.StatusBadRequest, "url and run_id are required")
		return
	}
	id, err := s.engine.StartSnapshotDiff(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"instance_id": id})
}

func (s *Server) startReportWorkflow(w http.ResponseWriter, r *http.Request) {
	var params workflow.CompetitorReportParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if params.CompetitorID == 0 {
		writeError(w, http.StatusBadRequest, "competitor_id is required")
		return
	}
	id, err := s.engine.StartCompetitorReport(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"instance_id": id})
}

func (s *Server) workflowStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instance_id")
	inst, err := s.engine.Status(r.Context(), id)
	if errors.Is(err, core.ErrWorkflowNotFound) {
		writeError(w, http.StatusNotFound, "workflow instance not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workflowStatusResponse(inst))
}

func (s *Server) resumeWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instance_id")
	err := s.engine.Resume(r.Context(), id)
	if errors.Is(err, core.ErrWorkflowNotFound) {
		writeError(w, http.StatusNotFound, "workflow instance not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"instance_id": id})
}

func (s *Server) createDiff(w http.ResponseWriter, r *http.Request) {
	var req core.DiffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" || req.RunID1 == "" || req.RunID2 == "" {
		writeError(w, http.StatusBadRequest, "url, run_id1 and run_id2 are required")
		return
	}
	result, err := s.diffs.CreateDiff(r.Context(), req)
	if err != nil {
		writeError(w, diffErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) diffHistory(w http.ResponseWriter, r *http.Request) {
	q := core.DiffHistoryQuery{
		URL:        r.URL.Query().Get("url"),
		FromRunID:  r.URL.Query().Get("from_run_id"),
		ToRunID:    r.URL.Query().Get("to_run_id"),
		WeekNumber: r.URL.Query().Get("week_number"),
	}
	if q.URL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}
	records, err := s.diffs.History(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if records == nil {
		records = []core.DiffRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records, "count": len(records)})
}

func (s *Server) generateReport(w http.ResponseWriter, r *http.Request) {
	var req core.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one url is required")
		return
	}
	rep := s.aggregator.Generate(r.Context(), req)
	if req.Enriched {
		s.aggregator.Enrich(r.Context(), &rep)
	}
	writeJSON(w, http.StatusOK, rep)
}

type batchRequest struct {
	RunID      string `json:"run_id"`
	RunID1     string `json:"run_id1"`
	RunID2     string `json:"run_id2"`
	WeekNumber string `json:"week_number"`
}

func (s *Server) triggerDiffBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RunID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	count, err := s.scheduler.TriggerDiffBatch(r.Context(), req.RunID, req.WeekNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": count})
}

func (s *Server) triggerReportBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	count, err := s.scheduler.TriggerReportBatch(r.Context(), req.RunID1, req.RunID2, req.WeekNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": count})
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	data, err := s.snapshots.ContentByHash(r.Context(),
		chi.URLParam(r, "hash"), chi.URLParam(r, "week"), chi.URLParam(r, "run"))
	if errors.Is(err, core.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "content not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write content response failed", zap.Error(err))
	}
}

func (s *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	data, err := s.snapshots.ImageByHash(r.Context(),
		chi.URLParam(r, "hash"), chi.URLParam(r, "week"), chi.URLParam(r, "run"))
	if errors.Is(err, core.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, "screenshot not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write screenshot response failed", zap.Error(err))
	}
}

// diffErrorStatus maps missing-snapshot sentinels to 404; everything else is
// a server error.
func diffErrorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrBothContentNotFound),
		errors.Is(err, core.ErrFirstContentNotFound),
		errors.Is(err, core.ErrSecondContentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func workflowStatusResponse(inst core.WorkflowInstance) map[string]any {
	resp := map[string]any{
		"instance_id": inst.ID,
		"kind":        inst.Kind,
		"state":       inst.State,
		"created_at":  inst.CreatedAt,
		"updated_at":  inst.UpdatedAt,
	}
	if inst.ErrorText != "" {
		resp["error"] = inst.ErrorText
	}
	if len(inst.Output) > 0 {
		resp["output"] = json.RawMessage(inst.Output)
	}
	return resp
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure here is unrecoverable.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
