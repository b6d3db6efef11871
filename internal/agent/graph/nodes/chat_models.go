package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation. The genai
// client is shared with the embedding path, so it is created by the caller.
type ChatModelConfig struct {
	Client     *genai.Client
	ClsConfig  *model.ClassifierModelConfig
	RespConfig *model.ResponseModelConfig
}

// ChatModels holds both classifier and response chat models
type ChatModels struct {
	Classifier          *gemini.ChatModel
	Response            *gemini.ChatModel
	ClassifierModelName string
	ResponseModelName   string
}

// NewChatModels creates both classifier and response chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("genai client is nil")
	}

	chatModelClassifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.ClsConfig.Model,
		Temperature: &config.ClsConfig.Temperature,
		MaxTokens:   &config.ClsConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	chatModelResponse, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.RespConfig.Model,
		Temperature: &config.RespConfig.Temperature,
		MaxTokens:   &config.RespConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	return &ChatModels{
		Classifier:          chatModelClassifier,
		Response:            chatModelResponse,
		ClassifierModelName: config.ClsConfig.Model,
		ResponseModelName:   config.RespConfig.Model,
	}, nil
}

// NewResponseChatModelNode creates a wrapper for the response chat model to be used as a node
func NewResponseChatModelNode(chatModel *gemini.ChatModel) *gemini.ChatModel {
	return chatModel
}
