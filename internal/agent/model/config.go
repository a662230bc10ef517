package model

import "time"

// ================ Config ================
// Each struct is populated once at startup by envconfig and passed by value
// into constructors; nothing reads the environment after that.

type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0"`
}

type QueryModelConfig struct {
	Model       string  `envconfig:"QUERY_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"QUERY_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"QUERY_TEMPERATURE" default:"0"`
}

type AnswerModelConfig struct {
	Model       string  `envconfig:"ANSWER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ANSWER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"ANSWER_TEMPERATURE" default:"0.2"`
}

type EmbeddingConfig struct {
	Model    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	TaskType string `envconfig:"EMBEDDING_TASK_TYPE" default:"RETRIEVAL_QUERY"`
}

type RetrievalConfig struct {
	Backend   string `envconfig:"RETRIEVAL_BACKEND" default:"neo4j"`
	TopK      int    `envconfig:"RETRIEVAL_TOP_K" default:"12"`
	IndexName string `envconfig:"RETRIEVAL_INDEX" default:"reviews"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateClass  string `envconfig:"WEAVIATE_CLASS" default:"Review"`
	WeaviateAPIKey string `envconfig:"WEAVIATE_API_KEY"`
}

type EngineConfig struct {
	SchemaPath           string        `envconfig:"ENGINE_SCHEMA_PATH"`
	MaxSteps             int           `envconfig:"ENGINE_MAX_STEPS" default:"6"`
	MaxSynthesisAttempts int           `envconfig:"ENGINE_MAX_SYNTHESIS_ATTEMPTS" default:"3"`
	MaxToolFailures      int           `envconfig:"ENGINE_MAX_TOOL_FAILURES" default:"2"`
	MaxRows              int           `envconfig:"ENGINE_MAX_ROWS" default:"50"`
	PriorTurns           int           `envconfig:"ENGINE_PRIOR_TURNS" default:"6"`
	LLMTimeout           time.Duration `envconfig:"ENGINE_LLM_TIMEOUT" default:"30s"`
	StoreTimeout         time.Duration `envconfig:"ENGINE_STORE_TIMEOUT" default:"15s"`
	RetrieverTimeout     time.Duration `envconfig:"ENGINE_RETRIEVER_TIMEOUT" default:"15s"`
	LLMRatePerSecond     float64       `envconfig:"ENGINE_LLM_RATE_PER_SECOND" default:"5"`
	LLMBurst             int           `envconfig:"ENGINE_LLM_BURST" default:"5"`
}

const (
	DefaultMaxSteps             = 6
	DefaultMaxSynthesisAttempts = 3
	DefaultMaxToolFailures      = 2
	DefaultTopK                 = 12
	DefaultMaxRows              = 50
)

// Normalized returns a copy with zero or negative limits replaced by defaults.
func (c EngineConfig) Normalized() EngineConfig {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxSynthesisAttempts <= 0 {
		c.MaxSynthesisAttempts = DefaultMaxSynthesisAttempts
	}
	if c.MaxToolFailures <= 0 {
		c.MaxToolFailures = DefaultMaxToolFailures
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	return c
}
