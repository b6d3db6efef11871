package conversations

import (
	"context"
	"strings"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

// HistoryManager mediates between the graph nodes and the session store. A
// store failure never aborts a turn: reads degrade to an empty history and
// writes are logged and dropped.
type HistoryManager struct {
	conversationRepo   model.ConversationRepository
	classifierMaxTurns int
	historyMaxTurns    int
}

func NewHistoryManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *HistoryManager {
	return &HistoryManager{
		conversationRepo:   conversationRepo,
		classifierMaxTurns: config.Classifier.MaxTurns,
		historyMaxTurns:    config.HistoryMaxTurns,
	}
}

// =========== Function for intent classification ===========

// ClassifierContext builds the classifier user message: a short tail of the
// conversation plus the message under analysis.
func (hm *HistoryManager) ClassifierContext(ctx context.Context, sessionID string, query string) string {
	var turns []model.Turn
	history, err := hm.conversationRepo.History(ctx, sessionID, hm.classifierMaxTurns)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("failed to load history for classifier, continuing without it")
	} else {
		turns = history.Turns
	}

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		switch t.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + t.Content + ")\n")
		case model.RoleAssistant:
			b.WriteString("AssistantMessage(" + t.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>\n")
	b.WriteString("<current_message_to_analyze>\n")
	b.WriteString("UserMessage(" + query + ")\n")
	b.WriteString("</current_message_to_analyze>")
	return b.String()
}

// =========== Function for response assembly ===========

// History returns the trailing turns that may feed the response prompt. The
// in-flight utterance is not stored yet, so it never appears here.
func (hm *HistoryManager) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	history, err := hm.conversationRepo.History(ctx, sessionID, hm.historyMaxTurns)
	if err != nil {
		return nil, err
	}
	return history.Turns, nil
}

// SaveExchange persists the completed user/assistant exchange in a single
// append, so a store failure never leaves a user turn without its reply.
// Failures are logged and swallowed so a store outage cannot fail a turn that
// already produced a reply.
func (hm *HistoryManager) SaveExchange(ctx context.Context, sessionID string, query string, reply string) {
	err := hm.conversationRepo.AppendTurns(ctx, sessionID,
		model.NewTurn(model.RoleUser, query),
		model.NewTurn(model.RoleAssistant, reply),
	)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to save exchange")
	}
}

// Evict drops the whole session from the store.
func (hm *HistoryManager) Evict(ctx context.Context, sessionID string) error {
	return hm.conversationRepo.Evict(ctx, sessionID)
}
