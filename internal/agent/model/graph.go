package model

import (
	"github.com/tokyo-trip-assistant/server/internal/retrieval"
	"github.com/tokyo-trip-assistant/server/internal/weather"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Do not access AppState directly from outside handlers. For persistence,
//     use repositories/services (e.g., HistoryManager).
type AppState struct {
	SessionID string
	Query     string

	Intent *IntentResult // set by parser post-handler, read downstream

	// Source-fetch results. Snippets stays nil when retrieval was skipped or
	// failed; WeatherFailed records a requested-but-failed lookup so the
	// assembler can surface an unavailability note.
	Snippets         []retrieval.Snippet
	Weather          *weather.Summary
	WeatherRequested bool
	WeatherFailed    bool

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// TurnResult is what one full pipeline run hands back to the transport layer.
type TurnResult struct {
	Reply   string       `json:"reply"`
	Intent  IntentResult `json:"intent"`
	CostUSD float64      `json:"cost_usd,omitempty"`
}
