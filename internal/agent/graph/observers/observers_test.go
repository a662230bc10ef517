package observers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: context.DeadlineExceeded, want: "timeout"},
		{err: errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"), want: "rate_limit"},
		{err: errors.New("API key not valid"), want: "auth"},
		{err: errors.New("503 Service Unavailable"), want: "server"},
		{err: errors.New("boom"), want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestRecordTool_Outcomes(t *testing.T) {
	tool := string(model.ToolPassage)
	before := map[string]float64{
		"evidence": testutil.ToFloat64(toolInvocations.WithLabelValues(tool, "evidence")),
		"empty":    testutil.ToFloat64(toolInvocations.WithLabelValues(tool, "empty")),
		"error":    testutil.ToFloat64(toolInvocations.WithLabelValues(tool, "error")),
	}

	withPassages := model.PassagesObservation(model.ToolPassage, []model.Passage{{ID: "r1", Text: "great", Score: 0.9}})
	withPassages.Duration = 20 * time.Millisecond
	RecordTool(withPassages)
	RecordTool(model.PassagesObservation(model.ToolPassage, nil))
	RecordTool(model.ErrorObservation(model.ToolPassage, errors.New("index down")))

	assert.Equal(t, before["evidence"]+1, testutil.ToFloat64(toolInvocations.WithLabelValues(tool, "evidence")))
	assert.Equal(t, before["empty"]+1, testutil.ToFloat64(toolInvocations.WithLabelValues(tool, "empty")))
	assert.Equal(t, before["error"]+1, testutil.ToFloat64(toolInvocations.WithLabelValues(tool, "error")))
}

func TestRecordAnswer_NilIsIgnored(t *testing.T) {
	assert.NotPanics(t, func() { RecordAnswer(nil) })
}

func TestStartSpan_NoProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() { EndSpan(span, errors.New("x")) })
}
