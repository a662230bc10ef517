package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospital-graph-rag/server/internal/agent/catalog"
	"github.com/hospital-graph-rag/server/internal/agent/mock"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

const roomQuery = "MATCH (v:Visit)-[:AT]->(h:Hospital) WHERE v.room_number = 387 RETURN h.name AS hospital"

type fixture struct {
	router   *mock.ChatModel
	query    *mock.ChatModel
	answer   *mock.ChatModel
	store    *mock.Store
	index    *mock.Index
	embedder *mock.Embedder
	engine   model.EngineConfig
}

func newFixture(routerReplies ...*schema.Message) *fixture {
	return &fixture{
		router:   mock.NewChatModel(mock.Replies(routerReplies...)),
		query:    mock.NewChatModel(mock.Replies(mock.Text(roomQuery))),
		answer:   mock.NewChatModel(mock.Replies(mock.Text("grounded answer"))),
		store:    &mock.Store{},
		index:    &mock.Index{},
		embedder: &mock.Embedder{},
		engine: model.EngineConfig{
			StoreTimeout:     time.Second,
			RetrieverTimeout: time.Second,
		},
	}
}

func (f *fixture) runner(t *testing.T) Runner {
	t.Helper()
	c, err := catalog.Load("")
	require.NoError(t, err)

	r, err := BuildRunner(context.Background(), Config{Engine: f.engine, TopK: 12}, Deps{
		RouterModel: f.router,
		QueryModel:  f.query,
		AnswerModel: f.answer,
		Schema:      c.Describe(),
		Store:       f.store,
		Embedder:    f.embedder,
		Index:       f.index,
	})
	require.NoError(t, err)
	return r
}

func callStructured(question string) *schema.Message {
	return mock.ToolCall(string(model.ToolStructured), `{"question":"`+question+`"}`)
}

func callPassage(question, scope string) *schema.Message {
	return mock.ToolCall(string(model.ToolPassage), `{"question":"`+question+`","scope":"`+scope+`"}`)
}

func callFinish() *schema.Message {
	return mock.ToolCall(string(model.ToolFinish), `{"reason":"the observations answer the question"}`)
}

func roomRows(context.Context, string, int) ([]string, []model.Row, error) {
	return []string{"hospital"}, []model.Row{{"hospital": "Richardson-Powell"}}, nil
}

func smithReviews(context.Context, []float32, int, string) ([]model.Passage, error) {
	return []model.Passage{
		{ID: "r1", Text: "physician_name: Dr. Smith\ntext: Dr. Smith explained everything", Score: 0.91},
		{ID: "r2", Text: "physician_name: Dr. Smith\ntext: long wait before the visit", Score: 0.74},
	}, nil
}

func ask(t *testing.T, r Runner, question string) *model.FinalAnswer {
	t.Helper()
	fa := r.Ask(context.Background(), model.QueryInput{Question: question})
	require.NotNil(t, fa)
	return fa
}

func TestAsk_StructuredQuestion(t *testing.T) {
	f := newFixture(callStructured("Which hospital has room 387?"), callFinish())
	f.store.RunFunc = roomRows
	f.answer = mock.NewChatModel(mock.Replies(mock.Text("Room 387 is at Richardson-Powell.")))

	fa := ask(t, f.runner(t), "Which hospital is room 387 in?")
	assert.Equal(t, model.StateFinalized, fa.State)
	assert.Equal(t, "Room 387 is at Richardson-Powell.", fa.Answer)
	assert.True(t, fa.Grounded)
	assert.Equal(t, []model.ToolName{model.ToolStructured}, fa.Tools)
	assert.Equal(t, 1, fa.Steps)
	assert.Nil(t, fa.Failure)
	assert.NotEmpty(t, fa.RequestID)

	assert.Equal(t, []string{roomQuery}, f.store.Queries())
	assert.Equal(t, 2, f.router.CallCount())
	assert.Equal(t, 1, f.answer.CallCount())
	assert.Contains(t, f.answer.Inputs()[0][0].Content, "Richardson-Powell")
}

func TestAsk_ReviewQuestion(t *testing.T) {
	f := newFixture(callPassage("What do patients say about Dr. Smith?", "Dr. Smith"), callFinish())
	f.index.SearchFunc = smithReviews

	fa := ask(t, f.runner(t), "What have patients said about Dr. Smith?")
	assert.Equal(t, model.StateFinalized, fa.State)
	assert.True(t, fa.Grounded)
	assert.Equal(t, []model.ToolName{model.ToolPassage}, fa.Tools)
	assert.Equal(t, []string{"Dr. Smith"}, f.index.Scopes())
	assert.Zero(t, f.query.CallCount())
	assert.Empty(t, f.store.Queries())
}

// echoEvidence answers with the evidence section of the answer prompt, so the
// final answer holds exactly what the model was shown.
func echoEvidence(_ context.Context, msgs []*schema.Message) (*schema.Message, error) {
	system := msgs[0].Content
	if i := strings.Index(system, "Evidence:"); i >= 0 {
		system = system[i+len("Evidence:"):]
	}
	return schema.AssistantMessage(strings.TrimSpace(system), nil), nil
}

func TestAsk_MostVisitsCarriesNameAndCount(t *testing.T) {
	const mostVisits = `MATCH (h:Hospital)<-[:AT]-(v:Visit)
WITH h, count(v) AS visit_count
RETURN h.name AS hospital_name, visit_count
ORDER BY visit_count DESC
LIMIT 1`
	f := newFixture(callStructured("Which hospital has the most visits?"), callFinish())
	f.query = mock.NewChatModel(mock.Replies(mock.Text(mostVisits)))
	f.store.RunFunc = func(context.Context, string, int) ([]string, []model.Row, error) {
		return []string{"name", "count"}, []model.Row{{"name": "Richardson-Powell", "count": int64(387)}}, nil
	}
	f.answer = mock.NewChatModel(echoEvidence)

	fa := ask(t, f.runner(t), "Which hospital has the most visits?")
	assert.Equal(t, model.StateFinalized, fa.State)
	assert.True(t, fa.Grounded)
	assert.Equal(t, []model.ToolName{model.ToolStructured}, fa.Tools)
	assert.Contains(t, fa.Answer, "Richardson-Powell")
	assert.Contains(t, fa.Answer, "387")
	assert.Nil(t, fa.Failure)
}

func TestAsk_EmptyRowsThenReviews(t *testing.T) {
	f := newFixture(
		callStructured("What do patients say about Dr. Smith?"),
		callPassage("What do patients say about Dr. Smith?", "Dr. Smith"),
		callFinish(),
	)
	f.store.RunFunc = func(context.Context, string, int) ([]string, []model.Row, error) {
		return []string{"hospital"}, nil, nil
	}
	f.index.SearchFunc = func(context.Context, []float32, int, string) ([]model.Passage, error) {
		return []model.Passage{
			{ID: "r1", Text: "physician_name: Dr. Smith\ntext: Dr. Smith was patient and kind", Score: 0.93},
			{ID: "r2", Text: "physician_name: Dr. Smith\ntext: Dr. Smith rushed the appointment", Score: 0.81},
			{ID: "r3", Text: "physician_name: Dr. Smith\ntext: Dr. Smith followed up by phone", Score: 0.77},
		}, nil
	}
	f.answer = mock.NewChatModel(echoEvidence)

	fa := ask(t, f.runner(t), "What do patients say about Dr. Smith?")
	assert.Equal(t, model.StateFinalized, fa.State)
	assert.True(t, fa.Grounded)
	assert.Equal(t, []model.ToolName{model.ToolPassage}, fa.Tools)
	assert.Equal(t, 2, fa.Steps)
	assert.Len(t, f.store.Queries(), 1)
	for _, text := range []string{"patient and kind", "rushed the appointment", "followed up by phone"} {
		assert.Contains(t, fa.Answer, text)
	}
}

func TestAsk_BothToolsFeedOneAnswer(t *testing.T) {
	f := newFixture(
		callStructured("Which hospital has room 387?"),
		callPassage("reviews of Richardson-Powell", "Richardson-Powell"),
		callFinish(),
	)
	f.store.RunFunc = roomRows
	f.index.SearchFunc = smithReviews

	fa := ask(t, f.runner(t), "Which hospital has room 387 and what do patients think of it?")
	assert.Equal(t, []model.ToolName{model.ToolStructured, model.ToolPassage}, fa.Tools)
	assert.Equal(t, 2, fa.Steps)
	require.Equal(t, 1, f.answer.CallCount())
	system := f.answer.Inputs()[0][0].Content
	assert.Contains(t, system, "Richardson-Powell")
	assert.Contains(t, system, "explained everything")
}

func TestAsk_NoEvidenceFromEitherTool(t *testing.T) {
	f := newFixture(
		callStructured("Which hospital has room 9999?"),
		callPassage("reviews mentioning room 9999", ""),
		callFinish(),
	)

	fa := ask(t, f.runner(t), "What happened in room 9999?")
	assert.Equal(t, model.StateFinalized, fa.State)
	assert.Equal(t, model.InsufficientEvidenceAnswer, fa.Answer)
	assert.False(t, fa.Grounded)
	assert.Empty(t, fa.Tools)
	assert.Equal(t, 2, fa.Steps)
	assert.Zero(t, f.answer.CallCount())
	require.NotNil(t, fa.Failure)
	assert.Equal(t, errx.KindNoEvidence, fa.Failure.Kind)
}

func TestAsk_StepBudget(t *testing.T) {
	f := newFixture(callStructured("Which hospital has room 387?"))
	f.store.RunFunc = roomRows

	fa := ask(t, f.runner(t), "Which hospital is room 387 in?")
	assert.Equal(t, model.DefaultMaxSteps, fa.Steps)
	assert.Len(t, f.store.Queries(), model.DefaultMaxSteps)
	assert.Equal(t, model.DefaultMaxSteps+1, f.router.CallCount())

	assert.Equal(t, model.StateFailed, fa.State)
	require.NotNil(t, fa.Failure)
	assert.Equal(t, errx.KindRoutingExhausted, fa.Failure.Kind)
	assert.Equal(t, model.UnableToAnswer, fa.Answer)
	assert.False(t, fa.Grounded)
	assert.Empty(t, fa.Tools)
	assert.Zero(t, f.answer.CallCount(), "rows gathered before the budget ran out never become a partial answer")
}

func TestAsk_CustomStepBudget(t *testing.T) {
	f := newFixture(callPassage("reviews", ""))
	f.index.SearchFunc = smithReviews
	f.engine.MaxSteps = 2

	fa := ask(t, f.runner(t), "Tell me about the reviews")
	assert.Equal(t, 2, fa.Steps)
	assert.Equal(t, model.StateFailed, fa.State)
}

func TestAsk_IsDeterministic(t *testing.T) {
	run := func() *model.FinalAnswer {
		f := newFixture(
			callStructured("Which hospital has room 387?"),
			callPassage("reviews of Richardson-Powell", "Richardson-Powell"),
			callFinish(),
		)
		f.store.RunFunc = roomRows
		f.index.SearchFunc = smithReviews
		return f.runner(t).Ask(context.Background(), model.QueryInput{RequestID: "req-1", Question: "Room 387?"})
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Fatalf("answers differ (-first +second):\n%s", diff)
	}
}

func TestAsk_MalformedDecisionIsReaskedOnce(t *testing.T) {
	f := newFixture(mock.Text("I would look at the visits first."), callStructured("Which hospital has room 387?"), callFinish())
	f.store.RunFunc = roomRows

	fa := ask(t, f.runner(t), "Which hospital is room 387 in?")
	assert.Equal(t, model.StateFinalized, fa.State)
	assert.Equal(t, 1, fa.Steps)
	assert.Equal(t, 3, f.router.CallCount())
}

func TestAsk_MalformedTwiceFails(t *testing.T) {
	f := newFixture(mock.Text("Let me think about it."))

	fa := ask(t, f.runner(t), "Which hospital is room 387 in?")
	assert.Equal(t, model.StateFailed, fa.State)
	assert.Equal(t, model.UnableToAnswer, fa.Answer)
	assert.False(t, fa.Grounded)
	assert.Empty(t, fa.Tools)
	require.NotNil(t, fa.Failure)
	assert.Equal(t, errx.KindRoutingExhausted, fa.Failure.Kind)
	assert.Equal(t, 2, f.router.CallCount())
	assert.Zero(t, fa.Steps)
}

func TestAsk_MalformedAfterEvidenceStillFails(t *testing.T) {
	f := newFixture(callPassage("reviews of Dr. Smith", "Dr. Smith"), mock.Text("not a decision"))
	f.index.SearchFunc = smithReviews

	fa := ask(t, f.runner(t), "What do patients say about Dr. Smith?")
	assert.Equal(t, model.StateFailed, fa.State)
	assert.False(t, fa.Grounded)
	assert.Equal(t, model.UnableToAnswer, fa.Answer)
	assert.Empty(t, fa.Tools)
	assert.Equal(t, 1, fa.Steps)
	require.NotNil(t, fa.Failure)
	assert.Equal(t, errx.KindRoutingExhausted, fa.Failure.Kind)
	assert.Zero(t, f.answer.CallCount())
}

func TestAsk_RouterModelDown(t *testing.T) {
	f := newFixture()
	f.router = mock.NewChatModel(func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, errx.WrapLLM(errors.New("503 unavailable"))
	})

	fa := ask(t, f.runner(t), "Which hospital is room 387 in?")
	assert.Equal(t, model.StateFailed, fa.State)
	assert.Equal(t, model.UnableToAnswer, fa.Answer)
	require.NotNil(t, fa.Failure)
	assert.Equal(t, errx.KindExecutionFailed, fa.Failure.Kind)
	assert.Equal(t, 2, f.router.CallCount())
}

func TestAsk_ToolFailureBudget(t *testing.T) {
	f := newFixture(callStructured("Which hospital has room 387?"))
	f.store.RunFunc = func(context.Context, string, int) ([]string, []model.Row, error) {
		return nil, nil, &neo4j.Neo4jError{Code: "Neo.TransientError.General.DatabaseUnavailable"}
	}

	fa := ask(t, f.runner(t), "Which hospital is room 387 in?")
	assert.Equal(t, model.StateFailed, fa.State)
	assert.Equal(t, model.DefaultMaxToolFailures, fa.Steps)
	assert.Len(t, f.store.Queries(), model.DefaultMaxToolFailures)
	require.NotNil(t, fa.Failure)
	assert.Equal(t, errx.KindExecutionFailed, fa.Failure.Kind)
	assert.Contains(t, fa.Failure.Message, string(model.ToolStructured))
	assert.False(t, fa.Grounded)
}

func TestAsk_FailureStreakResetsOnEvidence(t *testing.T) {
	f := newFixture(
		callStructured("Which hospital has room 387?"),
		callPassage("reviews about room 387", ""),
		callStructured("Which hospital has room 387?"),
		callFinish(),
	)
	f.store.RunFunc = func(context.Context, string, int) ([]string, []model.Row, error) {
		return nil, nil, errors.New("connection reset")
	}
	f.index.SearchFunc = smithReviews

	fa := ask(t, f.runner(t), "Which hospital is room 387 in?")
	assert.Equal(t, model.StateFinalized, fa.State)
	assert.Equal(t, 3, fa.Steps)
	assert.True(t, fa.Grounded)
	assert.Equal(t, []model.ToolName{model.ToolPassage}, fa.Tools)
}

func TestAsk_CancellationStopsTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(callStructured("Which hospital has room 387?"))
	f.store.RunFunc = func(ctx context.Context, _ string, _ int) ([]string, []model.Row, error) {
		cancel()
		return nil, nil, ctx.Err()
	}

	fa := f.runner(t).Ask(ctx, model.QueryInput{Question: "Which hospital is room 387 in?"})
	require.NotNil(t, fa)
	assert.Equal(t, model.StateFailed, fa.State)
	assert.Equal(t, model.UnableToAnswer, fa.Answer)
	assert.NotNil(t, fa.Failure)
	assert.Len(t, f.store.Queries(), 1)
	assert.Equal(t, 1, f.router.CallCount())
}

func TestAsk_InvalidInput(t *testing.T) {
	tooMany := make([]model.Turn, 21)
	for i := range tooMany {
		tooMany[i] = model.Turn{Role: "user", Content: "hi"}
	}

	tests := []struct {
		name string
		in   model.QueryInput
	}{
		{"empty question", model.QueryInput{}},
		{"blank question", model.QueryInput{Question: "   "}},
		{"too long", model.QueryInput{Question: strings.Repeat("a", 4001)}},
		{"bad role", model.QueryInput{Question: "q", PriorTurns: []model.Turn{{Role: "system", Content: "x"}}}},
		{"too many turns", model.QueryInput{Question: "q", PriorTurns: tooMany}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(callFinish())
			fa := f.runner(t).Ask(context.Background(), tt.in)
			require.NotNil(t, fa)
			assert.Equal(t, model.StateFailed, fa.State)
			require.NotNil(t, fa.Failure)
			assert.Equal(t, errx.KindInvalidInput, fa.Failure.Kind)
			assert.Zero(t, f.router.CallCount())
		})
	}
}

func TestAsk_PriorTurnsReachTheRouter(t *testing.T) {
	f := newFixture(callFinish())

	f.runner(t).Ask(context.Background(), model.QueryInput{
		Question: "And what about its reviews?",
		PriorTurns: []model.Turn{
			{Role: "user", Content: "Which hospital has room 387?"},
			{Role: "assistant", Content: "Richardson-Powell."},
		},
	})

	require.Equal(t, 1, f.router.CallCount())
	msgs := f.router.Inputs()[0]
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "Richardson-Powell.")
	assert.Equal(t, "And what about its reviews?", msgs[len(msgs)-1].Content)
}

func TestBuildRunner_RequiresDeps(t *testing.T) {
	_, err := BuildRunner(context.Background(), Config{}, Deps{})
	require.Error(t, err)
	assert.Equal(t, errx.KindConfiguration, errx.KindOf(err))
}
