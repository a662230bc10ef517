package query

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// Neo4jStore runs queries in read transactions on pooled sessions.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ Store = (*Neo4jStore)(nil)

func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database}
}

type storeResult struct {
	columns []string
	rows    []model.Row
}

func (s *Neo4jStore) Run(ctx context.Context, cypher string, maxRows int) ([]string, []model.Row, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	// the session must go back to the pool even when ctx is done
	defer session.Close(context.WithoutCancel(ctx))

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}
		keys, err := result.Keys()
		if err != nil {
			return nil, err
		}

		rows := make([]model.Row, 0)
		for len(rows) < maxRows && result.Next(ctx) {
			rec := result.Record()
			row := make(model.Row, len(rec.Keys))
			for i, k := range rec.Keys {
				row[k] = toScalar(rec.Values[i])
			}
			rows = append(rows, row)
		}
		if err := result.Err(); err != nil {
			return nil, err
		}
		// discard anything past the row cap
		if _, err := result.Consume(ctx); err != nil {
			return nil, err
		}
		return storeResult{columns: keys, rows: rows}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	res := out.(storeResult)
	return res.columns, res.rows, nil
}

// embeddingProperty holds review vectors on the graph; it never reaches rows.
const embeddingProperty = "embedding"

// toScalar converts driver values into plain Go values that render and
// marshal cleanly. Nodes and relationships become their property maps
// without the embedding vector.
func toScalar(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x
	case neo4j.Node:
		return entityProps(x.Props)
	case neo4j.Relationship:
		return entityProps(x.Props)
	case neo4j.Path:
		return fmt.Sprintf("path of %d nodes", len(x.Nodes))
	case neo4j.Date:
		return x.Time().Format(time.DateOnly)
	case neo4j.LocalDateTime:
		return x.Time().Format("2006-01-02T15:04:05")
	case neo4j.LocalTime:
		return x.Time().Format(time.TimeOnly)
	case neo4j.Time:
		return x.Time().Format("15:04:05Z07:00")
	case time.Time:
		return x.Format(time.RFC3339)
	case neo4j.Duration:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toScalar(e)
		}
		return out
	case map[string]any:
		return toScalarMap(x)
	default:
		return fmt.Sprint(x)
	}
}

func toScalarMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = toScalar(v)
	}
	return out
}

func entityProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == embeddingProperty {
			continue
		}
		out[k] = toScalar(v)
	}
	return out
}
