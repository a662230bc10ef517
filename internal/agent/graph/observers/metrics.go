package observers

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// Package-level metrics, auto-registered with the default registry.
var (
	llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hospital_rag",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of text-generation calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model", "status"},
	)

	llmErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hospital_rag",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Text-generation errors by type.",
		},
		[]string{"model", "error_type"},
	)

	llmCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hospital_rag",
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Estimated text-generation spend in USD.",
		},
		[]string{"model"},
	)

	toolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hospital_rag",
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "Tool invocations by outcome (evidence, empty, error).",
		},
		[]string{"tool", "outcome"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hospital_rag",
			Subsystem: "tool",
			Name:      "duration_seconds",
			Help:      "Duration of tool invocations in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"tool"},
	)

	queryValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hospital_rag",
			Subsystem: "query",
			Name:      "validations_total",
			Help:      "Generated queries by validation verdict.",
		},
		[]string{"verdict"},
	)

	embeddingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hospital_rag",
			Subsystem: "retrieval",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result.",
		},
		[]string{"result"},
	)

	answersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hospital_rag",
			Subsystem: "router",
			Name:      "answers_total",
			Help:      "Final answers by terminal state and grounding.",
		},
		[]string{"state", "grounded"},
	)

	routerSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hospital_rag",
			Subsystem: "router",
			Name:      "steps",
			Help:      "Tool steps taken per question.",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		},
	)
)

// RecordLLMCall records one text-generation call.
func RecordLLMCall(modelName string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		llmErrorsTotal.WithLabelValues(modelName, classifyError(err)).Inc()
	}
	llmCallDuration.WithLabelValues(modelName, status).Observe(d.Seconds())
}

func RecordLLMCost(modelName string, usd float64) {
	if usd > 0 {
		llmCostTotal.WithLabelValues(modelName).Add(usd)
	}
}

// RecordTool records one tool invocation and its outcome.
func RecordTool(obs model.ToolObservation) {
	outcome := "evidence"
	switch {
	case obs.Kind == model.ObservationError:
		outcome = "error"
	case obs.Empty():
		outcome = "empty"
	}
	toolInvocations.WithLabelValues(string(obs.Tool), outcome).Inc()
	toolDuration.WithLabelValues(string(obs.Tool)).Observe(obs.Duration.Seconds())
}

func RecordValidation(accepted bool) {
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	queryValidations.WithLabelValues(verdict).Inc()
}

// RecordCache records an embedding cache lookup: hit, miss or error.
func RecordCache(result string) {
	embeddingCache.WithLabelValues(result).Inc()
}

func RecordAnswer(a *model.FinalAnswer) {
	if a == nil {
		return
	}
	answersTotal.WithLabelValues(string(a.State), strconv.FormatBool(a.Grounded)).Inc()
	routerSteps.Observe(float64(a.Steps))
}

// classifyError maps an error to a label-safe type to keep cardinality low.
func classifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota"):
		return "rate_limit"
	case strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "api key") ||
		strings.Contains(msg, "permission"):
		return "auth"
	case strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "internal"):
		return "server"
	default:
		return "unknown"
	}
}
