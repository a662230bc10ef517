package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hospital-graph-rag/server/internal/agent/graph/observers"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// Store runs one read-only query and returns at most maxRows rows.
type Store interface {
	Run(ctx context.Context, cypher string, maxRows int) (columns []string, rows []model.Row, err error)
}

// Executor runs validated plans against the store with a timeout and a row cap.
type Executor struct {
	store   Store
	timeout time.Duration
	maxRows int
}

func NewExecutor(store Store, timeout time.Duration, maxRows int) *Executor {
	if maxRows <= 0 {
		maxRows = model.DefaultMaxRows
	}
	return &Executor{store: store, timeout: timeout, maxRows: maxRows}
}

var errUnvalidated = errors.New("plan was not produced by the validator")

// Execute runs plan. An empty result is a normal outcome; every failure is
// an ExecutionFailed (or Canceled) AppError.
func (e *Executor) Execute(ctx context.Context, plan ValidatedPlan) (model.QueryResult, error) {
	cypher := plan.Cypher()
	if cypher == "" {
		return model.QueryResult{}, errx.ExecutionFailed(errUnvalidated, "refusing to run query")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, span := observers.StartSpan(ctx, "query.Executor.Execute", attribute.Int("max_rows", e.maxRows))
	start := time.Now()
	columns, rows, err := e.store.Run(ctx, cypher, e.maxRows)
	observers.EndSpan(span, err)
	if err != nil {
		logx.Ctx(ctx).Warn().Err(err).Str("cypher", cypher).Msg("Query execution failed")
		return model.QueryResult{Cypher: cypher}, errx.WrapNeo4j(err)
	}

	if len(rows) > e.maxRows {
		rows = rows[:e.maxRows]
	}
	if rows == nil {
		rows = []model.Row{}
	}
	logx.Ctx(ctx).Debug().
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Query executed")
	return model.QueryResult{Cypher: cypher, Columns: columns, Rows: rows}, nil
}

// IsStatementError reports whether the store refused the query text itself,
// which a fresh synthesis may fix.
func IsStatementError(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && strings.HasPrefix(neoErr.Code, "Neo.ClientError.Statement")
}
