package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hospital-graph-rag/server/internal/agent/catalog"
	"github.com/hospital-graph-rag/server/internal/agent/graph"
	"github.com/hospital-graph-rag/server/internal/agent/graph/nodes"
	"github.com/hospital-graph-rag/server/internal/agent/llm"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	"github.com/hospital-graph-rag/server/internal/agent/query"
	"github.com/hospital-graph-rag/server/internal/agent/repo"
	"github.com/hospital-graph-rag/server/internal/agent/retrieval"
	"github.com/hospital-graph-rag/server/internal/core"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
	pkgneo4j "github.com/hospital-graph-rag/server/pkg/neo4j"
	pkgredis "github.com/hospital-graph-rag/server/pkg/redis"
	"github.com/hospital-graph-rag/server/pkg/telemetry"
)

// AppConfig defines all configurable parameters of the engine, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Neo4j     pkgneo4j.Config
	Redis     pkgredis.Config
	Telemetry telemetry.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Engine configs
	Router    model.RouterModelConfig
	Query     model.QueryModelConfig
	Answer    model.AnswerModelConfig
	Embedding model.EmbeddingConfig
	Retrieval model.RetrievalConfig
	Engine    model.EngineConfig
}

func loadConfig() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errx.Configuration(err, "process environment config")
	}
	return &cfg, nil
}

// engine owns the runner and every resource opened to build it.
type engine struct {
	runner  graph.Runner
	closers []func(context.Context) error
}

func (e *engine) onClose(fn func(context.Context) error) {
	e.closers = append(e.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close(ctx context.Context) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			logx.Warn().Err(err).Msg("Error releasing resource")
		}
	}
	e.closers = nil
}

// newEngine wires the catalog, stores, models and router graph. Any failure
// is a configuration error and releases what was already opened.
func newEngine(ctx context.Context, cfg *AppConfig) (_ *engine, err error) {
	e := &engine{}
	defer func() {
		if err != nil {
			e.Close(context.Background())
		}
	}()

	shutdown, err := cfg.Telemetry.Setup(ctx)
	if err != nil {
		return nil, errx.Configuration(err, "set up tracing")
	}
	e.onClose(shutdown)

	cat, err := catalog.Load(cfg.Engine.SchemaPath)
	if err != nil {
		return nil, err
	}

	driver, err := cfg.Neo4j.New(ctx)
	if err != nil {
		return nil, errx.Configuration(errx.WrapNeo4j(err), "connect to neo4j")
	}
	e.onClose(driver.Close)
	logx.Info().Str("uri", cfg.Neo4j.URI).Str("database", cfg.Neo4j.Database).Msg("Connected to Neo4j")

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		RouterConfig: &cfg.Router,
		QueryConfig:  &cfg.Query,
		AnswerConfig: &cfg.Answer,
		Timeout:      cfg.Engine.LLMTimeout,
		Limiter:      llm.NewLimiter(cfg.Engine.LLMRatePerSecond, cfg.Engine.LLMBurst),
	})
	if err != nil {
		return nil, errx.Configuration(err, "create chat models")
	}

	var embedder retrieval.Embedder = retrieval.NewGenAIEmbedder(models.Client, cfg.Embedding)
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New()
		if err != nil {
			return nil, errx.Configuration(errx.WrapRedis(err), "connect to redis")
		}
		e.onClose(func(context.Context) error { return rdb.Close() })
		embedder = retrieval.NewCachedEmbedder(embedder, repo.NewRedisEmbeddingCache(rdb, cfg.Redis.CacheTTL), cfg.Embedding.Model)
		logx.Info().Dur("ttl", cfg.Redis.CacheTTL).Msg("Embedding cache enabled")
	}

	var index retrieval.Index
	switch backend := strings.ToLower(cfg.Retrieval.Backend); backend {
	case "neo4j", "":
		index = retrieval.NewNeo4jIndex(driver, cfg.Neo4j.Database, cfg.Retrieval.IndexName)
	case "weaviate":
		index, err = retrieval.NewWeaviateIndex(cfg.Retrieval)
		if err != nil {
			return nil, errx.Configuration(err, "create weaviate index")
		}
	default:
		return nil, errx.Configuration(nil, "unknown retrieval backend "+backend)
	}

	e.runner, err = graph.BuildRunner(ctx, graph.Config{
		Engine:  cfg.Engine,
		TopK:    cfg.Retrieval.TopK,
		Verbose: verbose || core.ParseEnvironment(cfg.Environment).Verbose(),
	}, graph.Deps{
		RouterModel: models.Router,
		QueryModel:  models.Query,
		AnswerModel: models.Answer,
		Schema:      cat.Describe(),
		Store:       query.NewNeo4jStore(driver, cfg.Neo4j.Database),
		Embedder:    embedder,
		Index:       index,
	})
	if err != nil {
		return nil, err
	}

	if metricsAddr != "" {
		e.onClose(serveMetrics(metricsAddr))
	}
	return e, nil
}

// serveMetrics exposes the default Prometheus registry until the returned
// func shuts the listener down.
func serveMetrics(addr string) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logx.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()
	return srv.Shutdown
}
