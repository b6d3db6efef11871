package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
)

//go:embed template/response_prompt.txt
var coreSystemPrompt string

// RenderResponseSystem renders the dynamic response system prompt and
// triggers prompt callbacks. The detected intent categories are passed to the
// template as hints so the model knows which concerns the user raised.
func RenderResponseSystem(ctx context.Context, config model.ResponsePromptConfig, intent model.IntentResult) (string, error) {
	categories := make([]string, 0, len(intent.Scores))
	for _, s := range intent.Scores {
		categories = append(categories, string(s.Category))
	}
	if len(categories) == 0 {
		categories = append(categories, string(model.IntentSmallTalk))
	}

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	vars := map[string]any{
		"AssistantName":    config.AssistantName,
		"City":             config.City,
		"IntentCategories": strings.Join(categories, ", "),
		"PrimaryIntent":    string(intent.Primary()),
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("response prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("response prompt render: empty result")
	}
	return msgs[0].Content, nil
}
