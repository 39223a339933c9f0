// Package metrics exposes Prometheus collectors for the monitoring pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	workflowInstancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayback_workflow_instances_total",
		Help: "Workflow instances by kind and final state.",
	}, []string{"workflow", "state"})

	workflowStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayback_workflow_steps_total",
		Help: "Workflow step executions by result.",
	}, []string{"workflow", "step", "result"})

	workflowStepRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayback_workflow_step_retries_total",
		Help: "Workflow step retry attempts.",
	}, []string{"workflow", "step"})

	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayback_captures_total",
		Help: "Snapshot capture attempts by result.",
	}, []string{"result"})

	reportURLsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayback_report_urls_total",
		Help: "URLs processed during report aggregation by outcome.",
	}, []string{"outcome"})

	scheduledMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wayback_scheduled_messages_total",
		Help: "Workflow-start messages enqueued by the batch scheduler.",
	}, []string{"workflow"})
)

// IncWorkflowInstance records a workflow instance reaching a final state.
func IncWorkflowInstance(workflow, state string) {
	workflowInstancesTotal.WithLabelValues(workflow, state).Inc()
}

// IncWorkflowStep records one step execution outcome.
func IncWorkflowStep(workflow, step, result string) {
	workflowStepsTotal.WithLabelValues(workflow, step, result).Inc()
}

// IncWorkflowStepRetry records one step retry.
func IncWorkflowStepRetry(workflow, step string) {
	workflowStepRetriesTotal.WithLabelValues(workflow, step).Inc()
}

// IncCapture records a capture attempt outcome.
func IncCapture(result string) {
	capturesTotal.WithLabelValues(result).Inc()
}

// IncReportURL records one per-URL aggregation outcome.
func IncReportURL(outcome string) {
	reportURLsTotal.WithLabelValues(outcome).Inc()
}

// IncScheduledMessage records one batch-scheduled workflow start.
func IncScheduledMessage(workflow string) {
	scheduledMessagesTotal.WithLabelValues(workflow).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
