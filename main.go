package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"google.golang.org/genai"

	"github.com/tokyo-trip-assistant/server/internal/agent/graph"
	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	"github.com/tokyo-trip-assistant/server/internal/agent/repo"
	"github.com/tokyo-trip-assistant/server/internal/core"
	"github.com/tokyo-trip-assistant/server/internal/retrieval"
	"github.com/tokyo-trip-assistant/server/internal/server"
	"github.com/tokyo-trip-assistant/server/internal/weather"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
	pkgredis "github.com/tokyo-trip-assistant/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis  pkgredis.Config
	Server server.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Pipeline configs
	Classifier   model.ClassifierModelConfig
	Response     model.ResponseModelConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
	Retrieval    retrieval.Config
	Weather      weather.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()
	logx.Info().Msg("Connected to Redis successfully")

	clientCfg := &genai.ClientConfig{
		APIKey:  envCfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if envCfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = envCfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	// Knowledge index and retriever
	index, err := retrieval.LoadIndex(envCfg.Retrieval.IndexPath)
	if err != nil {
		logx.Fatal().Err(err).Str("path", envCfg.Retrieval.IndexPath).Msg("Failed to load knowledge index")
	}
	embedder := retrieval.NewGenAIEmbedder(client, envCfg.Retrieval.EmbeddingModel)
	retriever := retrieval.NewRetriever(embedder, index, envCfg.Retrieval)
	logx.Info().Int("documents", index.Len()).Msg("Knowledge index loaded")

	weatherClient := weather.NewClient(envCfg.Weather)

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Str("ttl", envCfg.Conversation.TTL).Err(err).Msg("Invalid CONVERSATION_TTL")
	}
	conversationRepo := repo.NewRedisConversationRepository(rdb, ttl, envCfg.Conversation.MaxStoredTurns)

	runner, err := graph.BuildResponseGraph(ctx, graph.Config{
		Client:           client,
		Classifier:       envCfg.Classifier,
		ResponseModel:    envCfg.Response,
		ResponsePrompt:   envCfg.Prompt,
		Conversation:     envCfg.Conversation,
		ConversationRepo: conversationRepo,
		Retriever:        retriever,
		Weather:          weatherClient,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build graph")
	}

	ready := func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}

	srv := server.New(envCfg.Server, runner, conversationRepo, ready)
	if err := srv.Run(ctx); err != nil {
		logx.Fatal().Err(err).Msg("Server exited with error")
	}
	logx.Info().Msg("Server stopped")
}
