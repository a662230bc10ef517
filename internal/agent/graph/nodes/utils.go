package nodes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

const (
	scratchpadRows      = 5
	scratchpadPassages  = 3
	scratchpadTextChars = 240
)

// ===== Small helpers to keep handlers simple/readable =====

// renderScratchpad writes the trace the way the router prompt expects it.
func renderScratchpad(steps []model.TraceStep) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "Step %d\n", s.Index)
		if s.Thought != "" {
			fmt.Fprintf(&b, "Thought: %s\n", s.Thought)
		}
		fmt.Fprintf(&b, "Action: %s(question=%q", s.Tool, s.Input.Question)
		if s.Input.Scope != "" {
			fmt.Fprintf(&b, ", scope=%q", s.Input.Scope)
		}
		b.WriteString(")\n")
		b.WriteString("Observation: ")
		writeObservation(&b, s.Observation)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeObservation(b *strings.Builder, obs model.ToolObservation) {
	switch obs.Kind {
	case model.ObservationRows:
		if obs.Result == nil || obs.Result.Empty() {
			b.WriteString("the query returned no rows\n")
			return
		}
		rows := obs.Result.Rows
		fmt.Fprintf(b, "%d row(s)\n", len(rows))
		for _, r := range rows[:min(len(rows), scratchpadRows)] {
			b.WriteString("  " + rowLine(obs.Result.Columns, r) + "\n")
		}
		if len(rows) > scratchpadRows {
			fmt.Fprintf(b, "  ... %d more\n", len(rows)-scratchpadRows)
		}
	case model.ObservationPassages:
		if len(obs.Passages) == 0 {
			b.WriteString("no matching reviews\n")
			return
		}
		fmt.Fprintf(b, "%d review passage(s)\n", len(obs.Passages))
		for _, p := range obs.Passages[:min(len(obs.Passages), scratchpadPassages)] {
			fmt.Fprintf(b, "  (%.2f) %s\n", p.Score, clip(oneLine(p.Text), scratchpadTextChars))
		}
	default:
		fmt.Fprintf(b, "the tool failed (%s)\n", failureLabel(obs.Err))
	}
}

func rowLine(columns []string, r model.Row) string {
	keys := columns
	if len(keys) == 0 {
		keys = make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, r[k]))
	}
	return strings.Join(parts, ", ")
}

// failureLabel keeps raw driver and provider text out of the prompt.
func failureLabel(err error) string {
	switch errx.KindOf(err) {
	case errx.KindSynthesisExhausted:
		return "no valid query could be written for this question"
	case errx.KindCanceled:
		return "canceled"
	case errx.KindExecutionFailed:
		return "the data source did not respond"
	default:
		return "unexpected error"
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// failureFrom converts an error into the failure object attached to an answer.
func failureFrom(err error, fallback errx.Kind) *model.Failure {
	kind := errx.KindOf(err)
	if kind == errx.KindUnknown {
		kind = fallback
	}
	return &model.Failure{Kind: kind, Message: err.Error()}
}
