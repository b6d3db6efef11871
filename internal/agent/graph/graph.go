package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/tokyo-trip-assistant/server/internal/agent/graph/conversations"
	"github.com/tokyo-trip-assistant/server/internal/agent/graph/nodes"
	"github.com/tokyo-trip-assistant/server/internal/agent/graph/observers"
	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
	"github.com/tokyo-trip-assistant/server/pkg/tokens"
)

var (
	// ErrGenerationUnavailable indicates the response model call failed.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrGenerationEmpty indicates the response model returned no content.
	ErrGenerationEmpty = errors.New("generation empty")
)

// Runner is a thin wrapper to execute the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error)
}

// Config holds everything needed to compose the full response graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs ChatModels and HistoryManager.
type Config struct {
	Client           *genai.Client
	Classifier       model.ClassifierModelConfig
	ResponseModel    model.ResponseModelConfig
	ResponsePrompt   model.ResponsePromptConfig
	Conversation     model.ConversationConfig
	ConversationRepo model.ConversationRepository
	Retriever        nodes.KnowledgeSearcher
	Weather          nodes.ForecastProvider
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels           *nodes.ChatModels
	HistoryManager       *conversations.HistoryManager
	ClassifierConfig     *model.ClassifierModelConfig
	ResponsePromptConfig *model.ResponsePromptConfig
	ConversationConfig   *model.ConversationConfig
	Retriever            nodes.KnowledgeSearcher
	Weather              nodes.ForecastProvider
	Counter              tokens.Counter
}

// GraphBuilder handles the construction of the conversation graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("session_id", in.SessionID).Msg("graph invocation failed")
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return nil, ErrGenerationEmpty
	}

	result := &model.TurnResult{Reply: out.Content}
	if intent, ok := out.Extra["intent"].(model.IntentResult); ok {
		result.Intent = intent
	} else {
		result.Intent = model.FallbackIntent()
	}
	if cost, ok := out.Extra["usage_cost_total_usd"].(float64); ok {
		result.CostUSD = cost
	}
	return result, nil
}

// BuildResponseGraph composes ChatModels, HistoryManager, builds the graph, and returns a Runner.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		Client:     cfg.Client,
		ClsConfig:  &cfg.Classifier,
		RespConfig: &cfg.ResponseModel,
	})
	if err != nil {
		return nil, err
	}

	hm := conversations.NewHistoryManager(cfg.ConversationRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:           cms,
		HistoryManager:       hm,
		ClassifierConfig:     &cfg.Classifier,
		ResponsePromptConfig: &cfg.ResponsePrompt,
		ConversationConfig:   &cfg.Conversation,
		Retriever:            cfg.Retriever,
		Weather:              cfg.Weather,
		Counter:              tokens.NewCounter(),
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Response graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled conversation graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Basic config validation
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Classifier == nil || config.ChatModels.Response == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.HistoryManager == nil {
		return nil, fmt.Errorf("history manager is nil")
	}
	if config.ClassifierConfig == nil || config.ResponsePromptConfig == nil || config.ConversationConfig == nil {
		return nil, fmt.Errorf("model prompt/config is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.HistoryManager, b.config.ClassifierConfig),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeClassifierModel,
		nodes.NewClassifierModelNode(b.config.ChatModels.Classifier),
		compose.WithStatePostHandler(nodes.NewClassifierModelPostHandler(b.config.ChatModels.ClassifierModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeIntentParser,
		nodes.NewIntentParserNode(b.config.ClassifierConfig.ConfidenceThreshold),
		compose.WithStatePostHandler(nodes.NewIntentParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeSourceFetch,
		nodes.NewSourceFetchNode(b.config.Retriever, b.config.Weather),
	)

	b.graph.AddLambdaNode(nodes.NodeContextAssembler,
		nodes.NewContextAssemblerNode(
			b.config.HistoryManager,
			b.config.ResponsePromptConfig,
			b.config.ConversationConfig,
			b.config.Counter,
		),
	)

	b.graph.AddChatModelNode(nodes.NodeResponseChatModel,
		nodes.NewResponseChatModelNode(b.config.ChatModels.Response),
		compose.WithStatePostHandler(nodes.NewResponseChatModelPostHandler(b.config.HistoryManager, b.config.ChatModels.ResponseModelName)),
	)
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeClassifierModel},
		{nodes.NodeClassifierModel, nodes.NodeIntentParser},
		{nodes.NodeSourceFetch, nodes.NodeContextAssembler},
		{nodes.NodeContextAssembler, nodes.NodeResponseChatModel},
		{nodes.NodeResponseChatModel, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	sourceBranch := compose.NewGraphBranch(
		nodes.NewSourceFetchCondition(),
		map[string]bool{
			nodes.NodeSourceFetch:      true,
			nodes.NodeContextAssembler: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeIntentParser, sourceBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding source fetch branch")
		return fmt.Errorf("error adding source fetch branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
