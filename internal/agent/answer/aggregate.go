// Package answer merges tool observations into evidence and turns that
// evidence into one grounded answer.
package answer

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

const (
	digestMaxRows     = 10
	digestMaxPassages = 3
)

// EvidenceItem is one observation that produced rows or passages.
type EvidenceItem struct {
	Step     int
	Tool     model.ToolName
	Question string
	Result   *model.QueryResult
	Passages []model.Passage
}

// Evidence is everything an answer may draw on. Tools lists the contributing
// tools in first-use order.
type Evidence struct {
	Items []EvidenceItem
	Tools []model.ToolName
}

// Aggregate keeps the non-empty, non-error observations in invocation order.
func Aggregate(steps []model.TraceStep) Evidence {
	ev := Evidence{Tools: []model.ToolName{}}
	for _, s := range steps {
		obs := s.Observation
		if !obs.HasEvidence() {
			continue
		}
		ev.Items = append(ev.Items, EvidenceItem{
			Step:     s.Index,
			Tool:     s.Tool,
			Question: s.Input.Question,
			Result:   obs.Result,
			Passages: obs.Passages,
		})
		if !slices.Contains(ev.Tools, s.Tool) {
			ev.Tools = append(ev.Tools, s.Tool)
		}
	}
	return ev
}

func (e Evidence) Empty() bool { return len(e.Items) == 0 }

// Render formats the evidence for the answer prompt.
func (e Evidence) Render() string {
	var b strings.Builder
	for i, item := range e.Items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, sourceLabel(item.Tool), item.Question)
		if item.Result != nil {
			for _, row := range item.Result.Rows {
				b.WriteString("- " + formatRow(item.Result.Columns, row) + "\n")
			}
		}
		for _, p := range item.Passages {
			fmt.Fprintf(&b, "- (relevance %.2f)\n%s\n", p.Score, indent(p.Text))
		}
	}
	return b.String()
}

// Digest is a plain rendering of the evidence used when the answer model is
// unavailable. It only restates what the tools returned.
func (e Evidence) Digest() string {
	var b strings.Builder
	b.WriteString("Here is what I found:\n")
	for _, item := range e.Items {
		if item.Result != nil && len(item.Result.Rows) > 0 {
			b.WriteString("\nFrom the hospital records:\n")
			for i, row := range item.Result.Rows {
				if i == digestMaxRows {
					fmt.Fprintf(&b, "- and %d more\n", len(item.Result.Rows)-digestMaxRows)
					break
				}
				b.WriteString("- " + formatRow(item.Result.Columns, row) + "\n")
			}
		}
		if len(item.Passages) > 0 {
			b.WriteString("\nFrom patient reviews:\n")
			for i, p := range item.Passages {
				if i == digestMaxPassages {
					break
				}
				b.WriteString("- " + strings.ReplaceAll(p.Text, "\n", "; ") + "\n")
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func sourceLabel(tool model.ToolName) string {
	switch tool {
	case model.ToolStructured:
		return "hospital records"
	case model.ToolPassage:
		return "patient reviews"
	default:
		return string(tool)
	}
}

// formatRow renders "col: value" pairs in column order; rows without
// declared columns fall back to sorted keys.
func formatRow(columns []string, row model.Row) string {
	cols := columns
	if len(cols) == 0 {
		cols = make([]string, 0, len(row))
		for k := range row {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c+": "+formatValue(row[c]))
	}
	return strings.Join(parts, "; ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
