package graph

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hospital-graph-rag/server/internal/agent/answer"
	"github.com/hospital-graph-rag/server/internal/agent/graph/conversations"
	"github.com/hospital-graph-rag/server/internal/agent/graph/nodes"
	"github.com/hospital-graph-rag/server/internal/agent/graph/observers"
	"github.com/hospital-graph-rag/server/internal/agent/graph/tools"
	"github.com/hospital-graph-rag/server/internal/agent/llm"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	"github.com/hospital-graph-rag/server/internal/agent/query"
	"github.com/hospital-graph-rag/server/internal/agent/retrieval"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// Runner answers one question end to end. Ask never returns an error: every
// outcome, failures included, is a FinalAnswer.
type Runner interface {
	Ask(ctx context.Context, in model.QueryInput) *model.FinalAnswer
}

// Deps are the external capabilities the engine is built on. Production
// wires Gemini, Neo4j and Weaviate or Neo4j vectors; tests wire mocks.
type Deps struct {
	RouterModel einomodel.BaseChatModel
	QueryModel  einomodel.BaseChatModel
	AnswerModel einomodel.BaseChatModel
	Schema      model.SchemaDescriptor
	Store       query.Store
	Embedder    retrieval.Embedder
	Index       retrieval.Index
}

// Config holds everything needed to compose the engine end-to-end.
type Config struct {
	Engine  model.EngineConfig
	TopK    int
	Verbose bool
}

// GraphConfig holds the built components the graph nodes close over.
type GraphConfig struct {
	Decider    *nodes.Decider
	Structured tools.Tool
	Passage    tools.Tool
	Answerer   *answer.Synthesizer
	Engine     model.EngineConfig
}

// GraphBuilder handles the construction of the router graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *model.FinalAnswer]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.FinalAnswer]
	validate *validator.Validate
	verbose  bool
}

// BuildRunner composes the query, retrieval and answer components, builds
// the graph, and returns a Runner.
func BuildRunner(ctx context.Context, cfg Config, deps Deps) (Runner, error) {
	if deps.RouterModel == nil || deps.QueryModel == nil || deps.AnswerModel == nil {
		return nil, errx.Configuration(nil, "chat models are not properly initialized")
	}
	if deps.Store == nil {
		return nil, errx.Configuration(nil, "graph store is nil")
	}
	if deps.Embedder == nil || deps.Index == nil {
		return nil, errx.Configuration(nil, "passage retrieval is not configured")
	}
	engine := cfg.Engine.Normalized()
	history := conversations.NewHistory(engine.PriorTurns)

	synth := query.NewSynthesizer(deps.QueryModel, query.NewValidator(deps.Schema), deps.Schema, engine.MaxSynthesisAttempts, history)
	executor := query.NewExecutor(deps.Store, engine.StoreTimeout, engine.MaxRows)
	retriever := retrieval.NewRetriever(deps.Embedder, deps.Index, cfg.TopK, engine.RetrieverTimeout)

	structured := tools.NewStructuredTool(synth, executor)
	passage := tools.NewPassageTool(retriever, 0)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Decider:    nodes.NewDecider(deps.RouterModel, tools.GetToolInfos(structured, passage), history),
		Structured: structured,
		Passage:    passage,
		Answerer:   answer.NewSynthesizer(deps.AnswerModel, history),
		Engine:     engine,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Int("max_steps", engine.MaxSteps).Msg("Router graph built successfully")
	return &graphRunner{runnable: runnable, validate: validator.New(), verbose: cfg.Verbose}, nil
}

// BuildGraph constructs and returns the compiled router graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *model.FinalAnswer], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Decider == nil || config.Answerer == nil {
		return nil, fmt.Errorf("router components are not properly initialized")
	}
	if config.Structured == nil || config.Passage == nil {
		return nil, fmt.Errorf("tools are not properly initialized")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.FinalAnswer](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	engine := b.config.Engine
	add := func(key string, node *compose.Lambda, opts ...compose.GraphAddNodeOpt) error {
		if err := b.graph.AddLambdaNode(key, node, opts...); err != nil {
			logx.Error().Err(err).Str("node", key).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", key, err)
		}
		return nil
	}

	if err := add(nodes.NodeInput, nodes.NewInputNode(),
		compose.WithStatePreHandler(nodes.NewInputPreHandler(engine.MaxSteps)),
	); err != nil {
		return err
	}
	if err := add(nodes.NodeThink, nodes.NewThinkNode(b.config.Decider)); err != nil {
		return err
	}
	if err := add(nodes.NodeActStructured, nodes.NewActNode(b.config.Structured),
		compose.WithStatePreHandler(nodes.NewActPreHandler(model.StateActingStructured)),
		compose.WithStatePostHandler(nodes.NewObservePostHandler(engine.MaxToolFailures)),
	); err != nil {
		return err
	}
	if err := add(nodes.NodeActPassage, nodes.NewActNode(b.config.Passage),
		compose.WithStatePreHandler(nodes.NewActPreHandler(model.StateActingPassage)),
		compose.WithStatePostHandler(nodes.NewObservePostHandler(engine.MaxToolFailures)),
	); err != nil {
		return err
	}
	if err := add(nodes.NodeFinalize, nodes.NewFinalizeNode(b.config.Answerer)); err != nil {
		return err
	}
	return add(nodes.NodeFail, nodes.NewFailNode())
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInput},
		{nodes.NodeInput, nodes.NodeThink},
		{nodes.NodeActStructured, nodes.NodeThink},
		{nodes.NodeActPassage, nodes.NodeThink},
		{nodes.NodeFinalize, compose.END},
		{nodes.NodeFail, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates the routing branch out of the think node
func (b *GraphBuilder) addBranches() error {
	routeBranch := compose.NewGraphBranch(
		nodes.NewRouteCondition(),
		map[string]bool{
			nodes.NodeActStructured: true,
			nodes.NodeActPassage:    true,
			nodes.NodeFinalize:      true,
			nodes.NodeFail:          true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeThink, routeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding route branch")
		return fmt.Errorf("error adding route branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.FinalAnswer], error) {
	// input, a think and an act per step, the closing think, the terminal node
	maxSteps := 2*b.config.Engine.MaxSteps + 10

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

func (r *graphRunner) Ask(ctx context.Context, in model.QueryInput) (fa *model.FinalAnswer) {
	if strings.TrimSpace(in.RequestID) == "" {
		in.RequestID = uuid.NewString()
	}
	ctx = logx.WithRequest(ctx, in.RequestID)
	ctx, usage := llm.WithUsage(ctx)
	ctx, span := observers.StartSpan(ctx, "graph.Runner.Ask", attribute.String("request_id", in.RequestID))
	log := logx.Ctx(ctx)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Router panicked")
			fa = model.Unanswerable(in.RequestID, errx.KindExecutionFailed, "internal error")
		}

		var spanErr error
		if fa.Failure != nil {
			spanErr = errx.WithKind(fa.Failure.Kind, nil, fa.Failure.Message)
		}
		observers.EndSpan(span, spanErr)
		observers.RecordAnswer(fa)

		calls, tokens, cost := usage.Totals()
		log.Info().
			Str("state", string(fa.State)).
			Bool("grounded", fa.Grounded).
			Int("steps", fa.Steps).
			Int("llm_calls", calls).
			Int("total_tokens", tokens).
			Float64("total_cost_usd", cost).
			Dur("elapsed", time.Since(start)).
			Msg("Question answered")
	}()

	if err := r.validate.Struct(in); err != nil {
		log.Warn().Err(err).Msg("Rejected invalid question")
		return model.Unanswerable(in.RequestID, errx.KindInvalidInput, errx.InvalidInput(err).Error())
	}
	if strings.TrimSpace(in.Question) == "" {
		return model.Unanswerable(in.RequestID, errx.KindInvalidInput, "invalid question: blank")
	}

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks(r.verbose)))
	if err != nil {
		kind := errx.KindOf(err)
		if kind == errx.KindUnknown {
			kind = errx.KindExecutionFailed
		}
		log.Error().Err(err).Str("kind", string(kind)).Msg("Router graph failed")
		return model.Unanswerable(in.RequestID, kind, "the question could not be processed")
	}
	if out == nil {
		return model.Unanswerable(in.RequestID, errx.KindExecutionFailed, "the question could not be processed")
	}
	return out
}
