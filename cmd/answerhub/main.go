// answerhub server — routes natural-language questions to the SQL, RAG,
// or general LLM backend and streams typed events back over SSE.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldworks/answerhub/pkg/agent"
	"github.com/fieldworks/answerhub/pkg/api"
	"github.com/fieldworks/answerhub/pkg/classifier"
	"github.com/fieldworks/answerhub/pkg/cleanup"
	"github.com/fieldworks/answerhub/pkg/config"
	"github.com/fieldworks/answerhub/pkg/graph"
	"github.com/fieldworks/answerhub/pkg/llm"
	"github.com/fieldworks/answerhub/pkg/rag"
	"github.com/fieldworks/answerhub/pkg/store"
	"github.com/fieldworks/answerhub/pkg/workflow"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting answerhub",
		"http_port", cfg.HTTPPort,
		"llm_provider", cfg.LLMProvider,
		"model", cfg.Model,
		"sql_agent", cfg.EnableSQLAgent,
		"rag_agent", cfg.EnableRAGAgent)

	// 2. Conversation store
	st, err := store.Open(ctx, cfg.ConversationDBPath)
	if err != nil {
		slog.Error("Failed to open conversation store", "path", cfg.ConversationDBPath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing conversation store", "error", err)
		}
	}()
	slog.Info("Conversation store ready", "path", cfg.ConversationDBPath)

	// 3. Join graph and vocabulary
	joinGraph, err := graph.Load(cfg.JoinGraphPath)
	if err != nil {
		slog.Error("Failed to load join graph", "path", cfg.JoinGraphPath, "error", err)
		os.Exit(1)
	}
	vocab := graph.NewVocabulary(joinGraph, 0)
	slog.Info("Join graph loaded", "tables", len(joinGraph.Tables), "relationships", len(joinGraph.Relationships))

	// 4. LLM provider
	provider, err := llm.NewFromConfig(cfg)
	if err != nil {
		slog.Error("Failed to build LLM provider", "provider", cfg.LLMProvider, "error", err)
		os.Exit(1)
	}

	// 5. Backend adapters
	var sqlAgent *agent.SQLAgent
	if cfg.EnableSQLAgent {
		querier, err := agent.NewPgxQuerier(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to business database", "error", err)
			os.Exit(1)
		}
		defer querier.Close()
		sqlAgent = agent.NewSQLAgent(provider, querier, joinGraph, vocab, agent.SQLAgentOptions{
			MaxIterations:   cfg.SQLAgentMaxIterations,
			MaxRows:         cfg.MaxQueryRows,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
		slog.Info("SQL agent ready", "max_iterations", cfg.SQLAgentMaxIterations, "max_rows", cfg.MaxQueryRows)
	} else {
		sqlAgent = agent.NewSQLAgent(provider, nil, joinGraph, vocab, agent.SQLAgentOptions{})
	}

	var retriever *rag.RedisRetriever
	if cfg.EnableRAGAgent {
		retriever = rag.NewRedisRetriever(cfg.RedisAddr, cfg.RedisIndex)
		if err := retriever.Health(ctx); err != nil {
			slog.Error("Failed to reach Redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := retriever.Close(); err != nil {
				slog.Error("Error closing Redis client", "error", err)
			}
		}()
		slog.Info("RAG retriever ready", "addr", cfg.RedisAddr, "index", cfg.RedisIndex)
	}
	ragAgent := agent.NewRAGAgent(provider, retriever, cfg.RAGTopK, cfg.Temperature, cfg.MaxOutputTokens)
	generalAgent := agent.NewGeneralAgent(provider, cfg.Temperature, cfg.MaxOutputTokens)

	// 6. Classifier and workflow engine
	router := classifier.New(provider, vocab, cfg.OrchestratorTemperature)
	engine := workflow.New(st, router, sqlAgent, ragAgent, generalAgent, workflow.Options{
		MaxConversationMessages:  cfg.MaxConversationMessages,
		MemoryStrategy:           cfg.ConversationMemoryStrategy,
		QueryResultMemorySize:    cfg.QueryResultMemorySize,
		FollowupDetectionEnabled: cfg.FollowupDetectionEnabled,
		FollowupMaxContextTokens: cfg.FollowupMaxContextTokens,
		EnableSQLAgent:           cfg.EnableSQLAgent,
		EnableRAGAgent:           cfg.EnableRAGAgent,
		BackendTimeout:           cfg.BackendTimeout,
	})

	// 7. Background conversation cleanup
	cleaner := cleanup.NewService(st, cfg.ConversationTTL, cfg.CleanupInterval)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// 8. HTTP server
	server := api.NewServer(engine, st)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 9. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("answerhub stopped")
}
