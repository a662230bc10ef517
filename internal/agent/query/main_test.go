package query

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hospital-graph-rag/server/internal/agent/catalog"
	"github.com/hospital-graph-rag/server/internal/agent/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func hospitalSchema(t *testing.T) model.SchemaDescriptor {
	t.Helper()
	c, err := catalog.Load("")
	require.NoError(t, err)
	return c.Describe()
}

func mustPlan(t *testing.T, cypher string) ValidatedPlan {
	t.Helper()
	verdict := NewValidator(hospitalSchema(t)).Validate(model.QueryPlan{Cypher: cypher})
	plan, ok := verdict.Validated()
	require.True(t, ok, verdict.Reason)
	return plan
}
