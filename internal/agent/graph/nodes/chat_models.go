package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/hospital-graph-rag/server/internal/agent/llm"
	"github.com/hospital-graph-rag/server/internal/agent/model"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey       string
	BaseURL      string
	RouterConfig *model.RouterModelConfig
	QueryConfig  *model.QueryModelConfig
	AnswerConfig *model.AnswerModelConfig
	Timeout      time.Duration
	Limiter      *rate.Limiter
}

// ChatModels holds the router, query and answer models, all sharing one
// Gemini client and one rate limiter.
type ChatModels struct {
	Client *genai.Client
	Router *llm.ChatModel
	Query  *llm.ChatModel
	Answer *llm.ChatModel
}

// NewChatModels creates the three chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.RouterConfig == nil || config.QueryConfig == nil || config.AnswerConfig == nil {
		return nil, fmt.Errorf("chat model configs are not set")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// The router reasons before it picks a function; its thoughts become the
	// trace's Thought field.
	router, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RouterConfig.Model,
		Temperature: &config.RouterConfig.Temperature,
		MaxTokens:   &config.RouterConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	query, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.QueryConfig.Model,
		Temperature: &config.QueryConfig.Temperature,
		MaxTokens:   &config.QueryConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating query model")
		return nil, fmt.Errorf("error creating query model: %w", err)
	}

	answer, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.AnswerConfig.Model,
		Temperature: &config.AnswerConfig.Temperature,
		MaxTokens:   &config.AnswerConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating answer model")
		return nil, fmt.Errorf("error creating answer model: %w", err)
	}

	return &ChatModels{
		Client: client,
		Router: llm.Wrap(router, config.RouterConfig.Model, config.Limiter, config.Timeout),
		Query:  llm.Wrap(query, config.QueryConfig.Model, config.Limiter, config.Timeout),
		Answer: llm.Wrap(answer, config.AnswerConfig.Model, config.Limiter, config.Timeout),
	}, nil
}
