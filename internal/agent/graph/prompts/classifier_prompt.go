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

//go:embed template/classifier_prompt.txt
var classifierSystemPrompt string

// RenderClassifierSystem renders the classifier system prompt via the Eino
// prompt component. This triggers Prompt callbacks and returns the final
// system prompt string.
func RenderClassifierSystem(ctx context.Context, clsConfig *model.ClassifierModelConfig) (string, error) {
	if clsConfig == nil {
		return "", fmt.Errorf("classifier config is nil")
	}

	// Safely render known tokens only to avoid interfering with braces in the template
	content := strings.NewReplacer(
		"{TD}", "<||>",
		"{RD}", "##",
		"{CD}", "<|COMPLETE|>",
		"{categories}", categoryList(),
	).Replace(classifierSystemPrompt)

	// Wrap via Eino prompt component using a messages placeholder to emit callbacks
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("classifier prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("classifier prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}

func categoryList() string {
	return strings.Join([]string{
		string(model.IntentSightseeing),
		string(model.IntentWeather),
		string(model.IntentMixed),
		string(model.IntentSmallTalk),
	}, ", ")
}
