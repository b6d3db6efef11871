package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tokyo-trip-assistant/server/internal/agent/graph/conversations"
	"github.com/tokyo-trip-assistant/server/internal/agent/graph/parsers"
	"github.com/tokyo-trip-assistant/server/internal/agent/graph/prompts"
	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
	"github.com/tokyo-trip-assistant/server/pkg/tokens"
)

// Node name constants
const (
	NodeInputConverter    = "input_converter"
	NodeClassifierModel   = "classifier_model"
	NodeIntentParser      = "intent_parser"
	NodeSourceFetch       = "source_fetch"
	NodeContextAssembler  = "context_assembler"
	NodeResponseChatModel = "response_chat_model"
)

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.SessionID = in.SessionID
		s.Query = in.Query
		// Reset per-query state
		s.Intent = nil
		s.Snippets = nil
		s.Weather = nil
		s.WeatherRequested = false
		s.WeatherFailed = false
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode creates the InputConverter node that prepares the
// classifier messages from the query and the recent conversation.
func NewInputConverterNode(
	hm *conversations.HistoryManager,
	clsCfg *model.ClassifierModelConfig,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		conversationCtx := hm.ClassifierContext(ctx, input.SessionID, input.Query)

		// Generate system prompt via Eino prompt component (enables prompt callbacks)
		systemPrompt, err := prompts.RenderClassifierSystem(ctx, clsCfg)
		if err != nil {
			return nil, fmt.Errorf("render classifier system prompt: %w", err)
		}

		messages := []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(conversationCtx),
		}
		return messages, nil
	})
}

// NewClassifierModelNode wraps the classifier chat model in a lambda so a
// provider failure degrades to an empty message instead of failing the turn;
// the parser then falls back to small talk.
func NewClassifierModelNode(cm einomodel.BaseChatModel) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
		out, err := cm.Generate(ctx, in)
		if err != nil {
			logx.Warn().Err(err).Msg("classifier model call failed, falling back to small talk")
			return schema.AssistantMessage("", nil), nil
		}
		if out == nil {
			return schema.AssistantMessage("", nil), nil
		}
		return out, nil
	})
}

// NewClassifierModelPostHandler computes and logs usage cost for the classifier model.
func NewClassifierModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		logModelUsage(out, state, NodeClassifierModel, modelName)
		return out, nil
	}
}

// NewIntentParserNode creates the parser node turning the classifier output
// into an IntentResult. It never fails: malformed or empty output falls back
// to a keyword scan over the raw query, then to small talk.
func NewIntentParserNode(threshold float64) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.IntentResult, error) {
		content := ""
		if resp != nil {
			content = resp.Content
		}
		result, ok := parsers.ParseIntentResponse(content, threshold)
		if ok {
			return result, nil
		}

		var query string
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			return nil
		})
		fallback := parsers.KeywordFallback(query)
		logx.Debug().Str("primary", string(fallback.Primary())).Msg("classifier output unusable, using keyword fallback")
		return fallback, nil
	})
}

// NewIntentParserPostHandler creates the post-handler for the parser node
func NewIntentParserPostHandler() func(context.Context, model.IntentResult, *model.AppState) (model.IntentResult, error) {
	return func(ctx context.Context, out model.IntentResult, state *model.AppState) (model.IntentResult, error) {
		state.Intent = &out
		logx.Debug().
			Str("session_id", state.SessionID).
			Str("primary_intent", string(out.Primary())).
			Int("categories", len(out.Scores)).
			Msg("intent classified")
		return out, nil
	}
}

// NewSourceFetchCondition routes small-talk-only turns straight to the
// assembler, skipping the source fan-out.
func NewSourceFetchCondition() func(context.Context, model.IntentResult) (string, error) {
	return func(ctx context.Context, input model.IntentResult) (string, error) {
		if input.IsSmallTalkOnly() {
			logx.Debug().Msg("small talk only, skipping source fetch")
			return NodeContextAssembler, nil
		}
		return NodeSourceFetch, nil
	}
}

// NewContextAssemblerNode creates the node that builds the final response
// prompt from state: system instruction, knowledge, weather, history, query.
func NewContextAssemblerNode(
	hm *conversations.HistoryManager,
	responsePromptConfig *model.ResponsePromptConfig,
	conversationConfig *model.ConversationConfig,
	counter tokens.Counter,
) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, intent model.IntentResult) ([]*schema.Message, error) {
		var snapshot model.AppState
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			snapshot = *state
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		respSysPrompt, err := prompts.RenderResponseSystem(ctx, *responsePromptConfig, intent)
		if err != nil {
			return nil, fmt.Errorf("generate response prompt: %w", err)
		}

		history, err := hm.History(ctx, snapshot.SessionID)
		if err != nil {
			logx.Warn().Err(err).Str("session_id", snapshot.SessionID).Msg("failed to load history, continuing without it")
			history = nil
		}

		pc := conversations.BuildPromptContext(conversations.BuildInput{
			SystemPrompt:     respSysPrompt,
			Snippets:         snapshot.Snippets,
			Weather:          snapshot.Weather,
			WeatherRequested: snapshot.WeatherRequested,
			WeatherFailed:    snapshot.WeatherFailed,
			History:          history,
			Utterance:        snapshot.Query,
			Budget:           conversationConfig.TokenBudget,
			Counter:          counter,
		})
		logx.Debug().
			Str("session_id", snapshot.SessionID).
			Int("total_tokens", pc.TotalTokens).
			Int("snippets_kept", pc.SnippetsKept).
			Int("snippets_dropped", pc.SnippetsDropped).
			Int("turns_dropped", pc.TurnsDropped).
			Msg("prompt context assembled")

		return pc.ToMessages(), nil
	})
}

// NewResponseChatModelPostHandler creates the post-handler for ResponseChatModel node
func NewResponseChatModelPostHandler(
	hm *conversations.HistoryManager,
	modelName string,
) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		logModelUsage(out, state, NodeResponseChatModel, modelName)

		if out != nil && out.Content != "" {
			hm.SaveExchange(ctx, state.SessionID, state.Query, out.Content)
		}

		// Expose the classified intent and accumulated cost to the runner
		if out != nil {
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			if state.Intent != nil {
				out.Extra["intent"] = *state.Intent
			}
			out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
		}

		logx.Debug().Str("session_id", state.SessionID).Msg("AI response ready")
		return out, nil
	}
}

// logModelUsage computes token cost for one model call, logs it, and
// accumulates the running total into state.
func logModelUsage(out *schema.Message, state *model.AppState, node, modelName string) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	logx.Debug().
		Str("session_id", state.SessionID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	state.TotalCostUSD += totalC
}
