package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// reviewFields are the node properties composed into passage text.
var reviewFields = []string{"physician_name", "patient_name", "text", "hospital_name"}

// scopeFields are the properties a scope filter matches against.
var scopeFields = []string{"physician_name", "patient_name", "hospital_name"}

const scopedOversample = 5

const vectorSearchCypher = `
CALL db.index.vector.queryNodes($index, $candidates, $embedding) YIELD node, score
WHERE $scope = ''
   OR toLower(coalesce(node.physician_name, '')) CONTAINS $scope
   OR toLower(coalesce(node.patient_name, '')) CONTAINS $scope
   OR toLower(coalesce(node.hospital_name, '')) CONTAINS $scope
RETURN elementId(node) AS id,
       node.physician_name AS physician_name,
       node.patient_name AS patient_name,
       node.text AS text,
       node.hospital_name AS hospital_name,
       score
ORDER BY score DESC
LIMIT $k`

// Neo4jIndex searches a Neo4j vector index over Review nodes.
type Neo4jIndex struct {
	driver   neo4j.DriverWithContext
	database string
	index    string
}

var _ Index = (*Neo4jIndex)(nil)

func NewNeo4jIndex(driver neo4j.DriverWithContext, database, index string) *Neo4jIndex {
	return &Neo4jIndex{driver: driver, database: database, index: index}
}

func (x *Neo4jIndex) Search(ctx context.Context, vector []float32, k int, scope string) ([]model.Passage, error) {
	candidates := k
	if scope != "" {
		// the scope filter runs after the nearest-neighbour cut
		candidates = k * scopedOversample
	}
	embedding := make([]float64, len(vector))
	for i, f := range vector {
		embedding[i] = float64(f)
	}
	params := map[string]any{
		"index":      x.index,
		"candidates": candidates,
		"k":          k,
		"embedding":  embedding,
		"scope":      strings.ToLower(scope),
	}

	session := x.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: x.database,
	})
	defer session.Close(context.WithoutCancel(ctx))

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, vectorSearchCypher, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}

		passages := make([]model.Passage, 0, len(records))
		for _, rec := range records {
			props := make(map[string]any, len(reviewFields))
			for _, f := range reviewFields {
				if v, ok := rec.Get(f); ok && v != nil {
					props[f] = v
				}
			}
			id, _ := rec.Get("id")
			score, _ := rec.Get("score")
			passages = append(passages, reviewPassage(fmt.Sprint(id), props, toFloat(score), "neo4j:"+x.index))
		}
		return passages, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]model.Passage), nil
}

// reviewPassage composes the passage text from the review's fields in a
// fixed order, one "field: value" line each.
func reviewPassage(id string, props map[string]any, score float64, source string) model.Passage {
	var b strings.Builder
	meta := make(map[string]any, len(scopeFields))
	for _, f := range reviewFields {
		v, ok := props[f]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f + ": " + s)
		if f != "text" {
			meta[f] = s
		}
	}
	return model.Passage{ID: id, Text: b.String(), Score: score, Source: source, Metadata: meta}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
