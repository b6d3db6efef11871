package model

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable message within a session. Turns are strictly
// append-ordered; the store never reorders or rewrites them.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// NewTurn stamps a turn with the current UTC time.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// Message converts a turn into the chat-model message schema.
func (t Turn) Message() *schema.Message {
	if t.Role == RoleAssistant {
		return schema.AssistantMessage(t.Content, nil)
	}
	return schema.UserMessage(t.Content)
}

// ConversationRepository is the session store: per-session ordered turn
// history with bounded size and idle eviction.
type ConversationRepository interface {
	// AppendTurns appends turns to the session in order, creating it if
	// absent, and refreshes the idle-eviction window. All turns of one call
	// land together; a failure stores none of them.
	AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error

	// History returns the most recent maxTurns turns in chronological order.
	// maxTurns <= 0 means no limit. Unknown sessions yield an empty history.
	History(ctx context.Context, sessionID string, maxTurns int) (*ConversationHistory, error)

	// Evict removes the session and its history.
	Evict(ctx context.Context, sessionID string) error

	// TurnCount returns the number of stored turns for the session.
	TurnCount(ctx context.Context, sessionID string) (int, error)
}

// ConversationHistory is the loaded slice of a session.
type ConversationHistory struct {
	SessionID string
	Turns     []Turn
}
