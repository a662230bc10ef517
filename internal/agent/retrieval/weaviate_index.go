package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/hospital-graph-rag/server/internal/agent/model"
)

// WeaviateIndex searches review objects stored in a Weaviate class.
type WeaviateIndex struct {
	client *weaviate.Client
	class  string
}

var _ Index = (*WeaviateIndex)(nil)

// NewWeaviateIndex builds a client from the retrieval config. An empty API
// key connects anonymously.
func NewWeaviateIndex(cfg model.RetrievalConfig) (*WeaviateIndex, error) {
	wcfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	if cfg.WeaviateAPIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.WeaviateAPIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateIndex{client: client, class: cfg.WeaviateClass}, nil
}

func (x *WeaviateIndex) Search(ctx context.Context, vector []float32, k int, scope string) ([]model.Passage, error) {
	fields := make([]graphql.Field, 0, len(reviewFields)+1)
	for _, f := range reviewFields {
		fields = append(fields, graphql.Field{Name: f})
	}
	fields = append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}})

	gql := x.client.GraphQL()
	query := gql.Get().
		WithClassName(x.class).
		WithFields(fields...).
		WithNearVector(gql.NearVectorArgBuilder().WithVector(vector)).
		WithLimit(k)
	if scope != "" {
		query = query.WithWhere(scopeFilter(scope))
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query: %w", err)
	}
	if err := graphQLError(res.Errors); err != nil {
		return nil, err
	}
	return x.decode(res.Data), nil
}

func scopeFilter(scope string) *filters.WhereBuilder {
	operands := make([]*filters.WhereBuilder, 0, len(scopeFields))
	for _, f := range scopeFields {
		operands = append(operands, filters.Where().
			WithPath([]string{f}).
			WithOperator(filters.Like).
			WithValueText("*"+scope+"*"))
	}
	return filters.Where().WithOperator(filters.Or).WithOperands(operands)
}

func graphQLError(errs []*models.GraphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Message)
		}
	}
	return fmt.Errorf("weaviate query: %s", strings.Join(msgs, "; "))
}

// decode walks data.Get.<class>[] and converts hits to passages; Weaviate
// reports cosine distance, so the score is 1 - distance.
func (x *WeaviateIndex) decode(data map[string]models.JSONObject) []model.Passage {
	get, _ := data["Get"].(map[string]any)
	objects, _ := get[x.class].([]any)

	passages := make([]model.Passage, 0, len(objects))
	for _, o := range objects {
		obj, ok := o.(map[string]any)
		if !ok {
			continue
		}
		var id string
		var distance float64
		if add, ok := obj["_additional"].(map[string]any); ok {
			id, _ = add["id"].(string)
			distance = toFloat(add["distance"])
		}
		passages = append(passages, reviewPassage(id, obj, 1-distance, "weaviate:"+x.class))
	}
	return passages
}
