package model

// ================ Config ================

type ConversationConfig struct {
	// TTL is the idle window after which a session is evicted.
	TTL string `envconfig:"CONVERSATION_TTL" default:"30m"`
	// MaxStoredTurns caps the per-session history length in the store.
	MaxStoredTurns int `envconfig:"CONVERSATION_MAX_STORED_TURNS" default:"100"`
	// HistoryMaxTurns bounds how many trailing turns feed the prompt.
	HistoryMaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"20"`
	// TokenBudget is the total prompt budget enforced by the assembler.
	TokenBudget int `envconfig:"CONVERSATION_TOKEN_BUDGET" default:"3000"`
	Classifier  struct {
		// MaxTurns bounds how much history the classifier sees.
		MaxTurns int `envconfig:"CONVERSATION_CLASSIFIER_MAX_TURNS" default:"5"`
	}
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"200"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.0"`
	// ConfidenceThreshold below which a category is discarded in favor of the
	// small-talk fallback.
	ConfidenceThreshold float64 `envconfig:"CLASSIFIER_CONFIDENCE_THRESHOLD" default:"0.3"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type ResponsePromptConfig struct {
	AssistantName string `envconfig:"PROMPT_ASSISTANT_NAME" default:"Tokyo Trip Assistant"`
	City          string `envconfig:"PROMPT_CITY" default:"Tokyo"`
}
