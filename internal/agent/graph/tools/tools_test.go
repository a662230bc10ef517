package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital-graph-rag/server/internal/agent/catalog"
	"github.com/hospital-graph-rag/server/internal/agent/mock"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	"github.com/hospital-graph-rag/server/internal/agent/query"
	"github.com/hospital-graph-rag/server/internal/agent/retrieval"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

const roomQuery = "MATCH (v:Visit)-[:AT]->(h:Hospital) WHERE v.room_number = 387 RETURN h.name AS hospital"

func newStructured(t *testing.T, chat *mock.ChatModel, store *mock.Store) *StructuredTool {
	t.Helper()
	c, err := catalog.Load("")
	require.NoError(t, err)
	s := c.Describe()
	return NewStructuredTool(
		query.NewSynthesizer(chat, query.NewValidator(s), s, 3, nil),
		query.NewExecutor(store, time.Second, 50),
	)
}

func TestGetToolInfos(t *testing.T) {
	infos := GetToolInfos(&StructuredTool{}, &PassageTool{})
	require.Len(t, infos, 3)
	assert.Equal(t, string(model.ToolStructured), infos[0].Name)
	assert.Equal(t, string(model.ToolPassage), infos[1].Name)
	assert.Equal(t, string(model.ToolFinish), infos[2].Name)
	for _, info := range infos {
		assert.NotEmpty(t, info.Desc)
		assert.NotNil(t, info.ParamsOneOf)
	}
}

func TestStructuredTool_ReturnsRows(t *testing.T) {
	chat := mock.NewChatModel(mock.Replies(mock.Text(roomQuery)))
	store := &mock.Store{RunFunc: func(context.Context, string, int) ([]string, []model.Row, error) {
		return []string{"hospital"}, []model.Row{{"hospital": "Richardson-Powell"}}, nil
	}}

	obs := newStructured(t, chat, store).Invoke(context.Background(), model.ToolInput{Question: "Which hospital has room 387?"}, nil)
	require.Equal(t, model.ObservationRows, obs.Kind, "%v", obs.Err)
	assert.Equal(t, model.ToolStructured, obs.Tool)
	assert.Equal(t, []model.Row{{"hospital": "Richardson-Powell"}}, obs.Result.Rows)
	assert.Equal(t, []string{roomQuery}, store.Queries())
	assert.True(t, obs.HasEvidence())
}

func TestStructuredTool_InvalidQueriesNeverReachStore(t *testing.T) {
	chat := mock.NewChatModel(mock.Replies(mock.Text("MATCH (p:Patient) DETACH DELETE p RETURN 1")))
	store := &mock.Store{}

	obs := newStructured(t, chat, store).Invoke(context.Background(), model.ToolInput{Question: "Remove every patient"}, nil)
	assert.Equal(t, model.ObservationError, obs.Kind)
	assert.Equal(t, errx.KindSynthesisExhausted, errx.KindOf(obs.Err))
	assert.Equal(t, 3, chat.CallCount())
	assert.Empty(t, store.Queries())
}

func TestStructuredTool_ResynthesizesOnStatementError(t *testing.T) {
	chat := mock.NewChatModel(mock.Replies(
		mock.Text("MATCH (h:Hospital) RETURN h.name AS name, toFloat(h.name) AS broken"),
		mock.Text("MATCH (h:Hospital) RETURN h.name AS name"),
	))
	store := &mock.Store{RunFunc: func(_ context.Context, cypher string, _ int) ([]string, []model.Row, error) {
		if strings.Contains(cypher, "broken") {
			return nil, nil, &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.TypeError", Msg: "expected a number"}
		}
		return []string{"name"}, []model.Row{{"name": "Burke, Griffin and Cooper"}}, nil
	}}

	obs := newStructured(t, chat, store).Invoke(context.Background(), model.ToolInput{Question: "List hospitals"}, nil)
	require.Equal(t, model.ObservationRows, obs.Kind, "%v", obs.Err)
	assert.Len(t, store.Queries(), 2)

	inputs := chat.Inputs()
	require.Len(t, inputs, 2)
	retry := inputs[1]
	require.GreaterOrEqual(t, len(retry), 2)
	assert.Contains(t, retry[len(retry)-2].Content, "toFloat(h.name)")
	assert.Contains(t, retry[len(retry)-1].Content, "the database could not run it")
}

func TestStructuredTool_StoreFailureIsAnObservation(t *testing.T) {
	chat := mock.NewChatModel(mock.Replies(mock.Text(roomQuery)))
	store := &mock.Store{RunFunc: func(context.Context, string, int) ([]string, []model.Row, error) {
		return nil, nil, &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable"}
	}}

	obs := newStructured(t, chat, store).Invoke(context.Background(), model.ToolInput{Question: "Which hospital has room 387?"}, nil)
	assert.Equal(t, model.ObservationError, obs.Kind)
	assert.Equal(t, errx.KindExecutionFailed, errx.KindOf(obs.Err))
	assert.Equal(t, 1, chat.CallCount())
	assert.Len(t, store.Queries(), 1)
}

func TestPassageTool(t *testing.T) {
	index := &mock.Index{SearchFunc: func(_ context.Context, _ []float32, k int, _ string) ([]model.Passage, error) {
		return []model.Passage{
			{ID: "r1", Text: "text: slow discharge", Score: 0.4},
			{ID: "r2", Text: "text: Dr. Smith was thorough", Score: 0.9},
		}, nil
	}}
	tool := NewPassageTool(retrieval.NewRetriever(&mock.Embedder{}, index, 12, time.Second), 0)

	obs := tool.Invoke(context.Background(), model.ToolInput{Question: "What do patients say about Dr. Smith?", Scope: "Dr. Smith"}, nil)
	require.Equal(t, model.ObservationPassages, obs.Kind, "%v", obs.Err)
	assert.Equal(t, model.ToolPassage, obs.Tool)
	require.Len(t, obs.Passages, 2)
	assert.Equal(t, "r2", obs.Passages[0].ID)
	assert.Equal(t, []string{"Dr. Smith"}, index.Scopes())
}

func TestPassageTool_IndexFailure(t *testing.T) {
	index := &mock.Index{SearchFunc: func(context.Context, []float32, int, string) ([]model.Passage, error) {
		return nil, errors.New("connection refused")
	}}
	tool := NewPassageTool(retrieval.NewRetriever(&mock.Embedder{}, index, 12, time.Second), 0)

	obs := tool.Invoke(context.Background(), model.ToolInput{Question: "reviews"}, nil)
	assert.Equal(t, model.ObservationError, obs.Kind)
	assert.Equal(t, errx.KindExecutionFailed, errx.KindOf(obs.Err))
	assert.False(t, obs.HasEvidence())
}
