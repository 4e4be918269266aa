// Package config loads service configuration from the environment.
// The knob set is closed; anything not listed here is not configurable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Conversation memory strategies.
const (
	MemoryStrategySimple = "simple"
	MemoryStrategyTiered = "tiered"
)

// Config holds the full runtime configuration.
type Config struct {
	HTTPPort string

	// LLM provider settings
	LLMProvider             string  // openai | ollama
	Model                   string
	Temperature             float32
	OrchestratorTemperature float32 // classifier + routing calls
	MaxOutputTokens         int
	OpenAIAPIKey            string
	OpenAIBaseURL           string // optional override
	OllamaBaseURL           string

	// Conversation handling
	MaxConversationMessages    int
	ConversationMemoryStrategy string // simple | tiered
	ConversationDBPath         string
	ConversationTTL            time.Duration
	CleanupInterval            time.Duration

	// Follow-up query-result memory
	QueryResultMemorySize    int
	FollowupDetectionEnabled bool
	FollowupMaxContextTokens int

	// Backends
	EnableSQLAgent      bool
	EnableRAGAgent      bool
	SQLAgentMaxIterations int
	MaxQueryRows        int
	BackendTimeout      time.Duration

	// External collaborators
	JoinGraphPath string
	DatabaseURL   string // business database (read-only queries)
	RedisAddr     string
	RedisIndex    string
	RAGTopK       int
}

// LoadFromEnv reads configuration from environment variables, applying
// defaults, and validates the result.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		LLMProvider:             getEnv("LLM_PROVIDER", ProviderOpenAI),
		Model:                   getEnv("LLM_MODEL", "gpt-4o-mini"),
		Temperature:             getEnvFloat("LLM_TEMPERATURE", 0.2),
		OrchestratorTemperature: getEnvFloat("ORCHESTRATOR_TEMPERATURE", 0.0),
		MaxOutputTokens:         getEnvInt("MAX_OUTPUT_TOKENS", 2048),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:           os.Getenv("OPENAI_BASE_URL"),
		OllamaBaseURL:           getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),

		MaxConversationMessages:    getEnvInt("MAX_CONVERSATION_MESSAGES", 20),
		ConversationMemoryStrategy: getEnv("CONVERSATION_MEMORY_STRATEGY", MemoryStrategySimple),
		ConversationDBPath:         getEnv("CONVERSATION_DB_PATH", "./data/conversations.db"),
		ConversationTTL:            getEnvDuration("CONVERSATION_TTL", 24*time.Hour),
		CleanupInterval:            getEnvDuration("CLEANUP_INTERVAL", time.Hour),

		QueryResultMemorySize:    getEnvInt("QUERY_RESULT_MEMORY_SIZE", 5),
		FollowupDetectionEnabled: getEnvBool("FOLLOWUP_DETECTION_ENABLED", true),
		FollowupMaxContextTokens: getEnvInt("FOLLOWUP_MAX_CONTEXT_TOKENS", 600),

		EnableSQLAgent:        getEnvBool("ENABLE_SQL_AGENT", true),
		EnableRAGAgent:        getEnvBool("ENABLE_RAG_AGENT", true),
		SQLAgentMaxIterations: getEnvInt("SQL_AGENT_MAX_ITERATIONS", 3),
		MaxQueryRows:          getEnvInt("MAX_QUERY_ROWS", 100),
		BackendTimeout:        getEnvDuration("BACKEND_TIMEOUT", 60*time.Second),

		JoinGraphPath: getEnv("JOIN_GRAPH_PATH", "./data/join_graph.json"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisIndex:    getEnv("REDIS_INDEX", "answerhub:docs"),
		RAGTopK:       getEnvInt("RAG_TOP_K", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and enumerations.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q (expected %s or %s)",
			c.LLMProvider, ProviderOpenAI, ProviderOllama)
	}
	switch c.ConversationMemoryStrategy {
	case MemoryStrategySimple, MemoryStrategyTiered:
	default:
		return fmt.Errorf("invalid CONVERSATION_MEMORY_STRATEGY %q (expected %s or %s)",
			c.ConversationMemoryStrategy, MemoryStrategySimple, MemoryStrategyTiered)
	}
	if c.LLMProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	if c.EnableSQLAgent && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_SQL_AGENT=true")
	}
	if c.MaxConversationMessages < 2 {
		return fmt.Errorf("MAX_CONVERSATION_MESSAGES must be at least 2, got %d", c.MaxConversationMessages)
	}
	if c.QueryResultMemorySize < 1 {
		return fmt.Errorf("QUERY_RESULT_MEMORY_SIZE must be at least 1, got %d", c.QueryResultMemorySize)
	}
	if c.SQLAgentMaxIterations < 1 {
		return fmt.Errorf("SQL_AGENT_MAX_ITERATIONS must be at least 1, got %d", c.SQLAgentMaxIterations)
	}
	if c.MaxQueryRows < 1 {
		return fmt.Errorf("MAX_QUERY_ROWS must be at least 1, got %d", c.MaxQueryRows)
	}
	if c.ConversationTTL <= 0 {
		return fmt.Errorf("CONVERSATION_TTL must be positive, got %v", c.ConversationTTL)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float32) float32 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 32); err == nil {
			return float32(f)
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
