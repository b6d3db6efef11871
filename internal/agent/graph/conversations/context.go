package conversations

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	"github.com/tokyo-trip-assistant/server/internal/retrieval"
	"github.com/tokyo-trip-assistant/server/internal/weather"
	"github.com/tokyo-trip-assistant/server/pkg/tokens"
)

// WeatherUnavailableNote is injected when a weather lookup was requested but
// failed, so the response model can acknowledge the gap instead of guessing.
const WeatherUnavailableNote = "Weather information is currently unavailable."

// BuildInput carries everything the prompt assembler needs. The assembler
// itself is pure: same input, same output, no I/O.
type BuildInput struct {
	SystemPrompt string
	// Snippets must arrive ordered by descending score; the lowest-scoring
	// ones are shed first under budget pressure.
	Snippets         []retrieval.Snippet
	Weather          *weather.Summary
	WeatherRequested bool
	WeatherFailed    bool
	// History is in chronological order and never contains the in-flight
	// utterance.
	History   []model.Turn
	Utterance string
	// Budget is the total token allowance; <= 0 disables enforcement.
	Budget  int
	Counter tokens.Counter
}

// PromptContext is the assembled, budget-compliant prompt.
type PromptContext struct {
	System          string
	History         []model.Turn
	Utterance       string
	TotalTokens     int
	SnippetsKept    int
	SnippetsDropped int
	TurnsDropped    int
}

// ToMessages renders the context in model-call order: one system message,
// then the retained history, then the current utterance.
func (pc *PromptContext) ToMessages() []*schema.Message {
	messages := make([]*schema.Message, 0, len(pc.History)+2)
	messages = append(messages, schema.SystemMessage(pc.System))
	for _, t := range pc.History {
		messages = append(messages, t.Message())
	}
	messages = append(messages, schema.UserMessage(pc.Utterance))
	return messages
}

// BuildPromptContext assembles the final prompt under the token budget.
// Ordering is fixed: system instruction, knowledge snippets, weather block,
// trailing history, current utterance. When over budget the oldest history
// turns are dropped first, then the lowest-scoring snippets, then the weather
// block; an oversized utterance is truncated to whatever remains after the
// system instruction. The system instruction and a (possibly truncated)
// utterance are always retained.
func BuildPromptContext(in BuildInput) PromptContext {
	counter := in.Counter
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}

	systemTokens := counter.Count(in.SystemPrompt)

	utterance := in.Utterance
	utteranceTokens := counter.Count(utterance)
	if in.Budget > 0 && systemTokens+utteranceTokens > in.Budget {
		utterance = truncateToFit(utterance, in.Budget-systemTokens, counter)
		utteranceTokens = counter.Count(utterance)
	}

	weatherBlock := renderWeatherBlock(in)
	weatherTokens := 0
	if weatherBlock != "" {
		weatherTokens = counter.Count(weatherBlock)
		if in.Budget > 0 && systemTokens+utteranceTokens+weatherTokens > in.Budget {
			weatherBlock, weatherTokens = "", 0
		}
	}

	baseTokens := systemTokens + utteranceTokens + weatherTokens

	snippets := make([]retrieval.Snippet, len(in.Snippets))
	copy(snippets, in.Snippets)

	snippetLines := make([]string, len(snippets))
	snippetTokens := make([]int, len(snippets))
	snippetTotal := 0
	for i, s := range snippets {
		snippetLines[i] = renderSnippet(s)
		snippetTokens[i] = counter.Count(snippetLines[i])
		snippetTotal += snippetTokens[i]
	}

	// Shed the lowest-scoring snippets (the tail of the score-ordered list)
	// until the prompt can fit with no history at all.
	kept := len(snippets)
	if in.Budget > 0 {
		for kept > 0 && baseTokens+snippetTotal > in.Budget {
			kept--
			snippetTotal -= snippetTokens[kept]
		}
	}

	total := baseTokens + snippetTotal

	// Fit history newest-first into whatever budget remains, then restore
	// chronological order.
	var keptTurns []model.Turn
	for i := len(in.History) - 1; i >= 0; i-- {
		t := in.History[i]
		cost := counter.Count(t.Content)
		if in.Budget > 0 && total+cost > in.Budget {
			break
		}
		total += cost
		keptTurns = append(keptTurns, t)
	}
	for i, j := 0, len(keptTurns)-1; i < j; i, j = i+1, j-1 {
		keptTurns[i], keptTurns[j] = keptTurns[j], keptTurns[i]
	}

	return PromptContext{
		System:          renderSystem(in.SystemPrompt, snippetLines[:kept], weatherBlock),
		History:         keptTurns,
		Utterance:       utterance,
		TotalTokens:     total,
		SnippetsKept:    kept,
		SnippetsDropped: len(snippets) - kept,
		TurnsDropped:    len(in.History) - len(keptTurns),
	}
}

func renderSystem(systemPrompt string, snippetLines []string, weatherBlock string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	if len(snippetLines) > 0 {
		b.WriteString("\n\n<knowledge>\n")
		for _, line := range snippetLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("</knowledge>")
	}
	if weatherBlock != "" {
		b.WriteString("\n\n<weather>\n")
		b.WriteString(weatherBlock)
		b.WriteString("\n</weather>")
	}
	return b.String()
}

// truncateToFit returns the longest rune-boundary prefix of s that counts at
// most budget tokens.
func truncateToFit(s string, budget int, counter tokens.Counter) string {
	if budget <= 0 {
		return ""
	}
	if counter.Count(s) <= budget {
		return s
	}
	runes := []rune(s)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.Count(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

func renderSnippet(s retrieval.Snippet) string {
	return fmt.Sprintf("- [%s] (%s) %s (source: %s)", s.Title, s.Category, s.Text, s.Source)
}

func renderWeatherBlock(in BuildInput) string {
	if !in.WeatherRequested {
		return ""
	}
	if in.WeatherFailed || in.Weather == nil {
		return WeatherUnavailableNote
	}
	w := in.Weather
	return fmt.Sprintf("%s on %s: %.1f C, %s, %.0f%% chance of precipitation.",
		w.Location, w.Date.Format("2006-01-02"), w.TempC, w.Condition, w.PrecipChance*100)
}
