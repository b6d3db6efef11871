package parsers

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

const (
	recDelim = "##"
	tupDelim = "<||>"
	endDelim = "<|COMPLETE|>"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 32 * 1024 // 32KB
	maxRecords    = 50
	maxTupleLen   = 1024
)

// ParseIntentResponse parses the classifier output into an IntentResult.
// Expected format: records separated by "##", each a tuple
// (intent<||>category<||>confidence), terminated by <|COMPLETE|>.
// Malformed records are skipped; categories below the confidence threshold
// are discarded. The function never returns an empty result: when nothing
// usable survives, the small-talk fallback is returned with ok=false.
func ParseIntentResponse(content string, threshold float64) (result model.IntentResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "intent_parser").Msgf("panic recovered: %v", r)
			result = model.FallbackIntent()
			ok = false
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "intent_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if idx := strings.Index(content, endDelim); idx >= 0 {
		content = content[:idx]
	}

	seen := map[model.IntentCategory]float64{}
	records := strings.Split(content, recDelim)
	processed := 0
	for _, rec := range records {
		if processed >= maxRecords {
			logx.Warn().Str("component", "intent_parser").Int("max_records", maxRecords).Msg("record processing capped")
			break
		}
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		processed++

		cat, conf, err := parseIntentTuple(rec)
		if err != nil {
			logx.Debug().Str("component", "intent_parser").Str("record", safeSnippet(rec)).Msg("skipping malformed record")
			continue
		}
		if conf < threshold {
			continue
		}
		// keep the highest confidence per category
		if prev, dup := seen[cat]; !dup || conf > prev {
			seen[cat] = conf
		}
	}

	if len(seen) == 0 {
		return model.FallbackIntent(), false
	}

	scores := make([]model.CategoryScore, 0, len(seen))
	for cat, conf := range seen {
		scores = append(scores, model.CategoryScore{Category: cat, Confidence: conf})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Confidence != scores[j].Confidence {
			return scores[i].Confidence > scores[j].Confidence
		}
		return scores[i].Category < scores[j].Category
	})
	return model.IntentResult{Scores: scores}, true
}

func parseIntentTuple(s string) (model.IntentCategory, float64, error) {
	if len(s) > maxTupleLen {
		return "", 0, fmt.Errorf("tuple too large")
	}
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return "", 0, fmt.Errorf("invalid tuple parens")
	}
	parts := strings.SplitN(s[1:len(s)-1], tupDelim, 3)
	if len(parts) != 3 || strings.TrimSpace(parts[0]) != "intent" {
		return "", 0, fmt.Errorf("invalid tuple parts")
	}

	raw := strings.ToLower(strings.TrimSpace(parts[1]))
	if !utf8.ValidString(raw) {
		return "", 0, fmt.Errorf("category invalid utf8")
	}
	cat, known := model.ParseIntentCategory(raw)
	if !known {
		return "", 0, fmt.Errorf("unknown category %q", raw)
	}

	conf, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("confidence parse: %w", err)
	}
	if math.IsNaN(conf) || math.IsInf(conf, 0) || conf < 0 || conf > 1 {
		return "", 0, fmt.Errorf("confidence out of range")
	}
	return cat, conf, nil
}

// KeywordFallback is the last line of defense when the classifier produced
// nothing parseable: a coarse keyword scan over the raw utterance. Matches
// carry a low fixed confidence; no match yields the small-talk fallback.
func KeywordFallback(query string) model.IntentResult {
	const fallbackConfidence = 0.35

	q := strings.ToLower(query)
	wantsWeather := containsAny(q, "weather", "rain", "raining", "umbrella", "forecast", "temperature", "sunny", "snow")
	wantsSights := containsAny(q, "see", "visit", "temple", "shrine", "museum", "sight", "attraction", "view", "neighborhood", "do in")

	switch {
	case wantsWeather && wantsSights:
		return model.IntentResult{Scores: []model.CategoryScore{{Category: model.IntentMixed, Confidence: fallbackConfidence}}}
	case wantsWeather:
		return model.IntentResult{Scores: []model.CategoryScore{{Category: model.IntentWeather, Confidence: fallbackConfidence}}}
	case wantsSights:
		return model.IntentResult{Scores: []model.CategoryScore{{Category: model.IntentSightseeing, Confidence: fallbackConfidence}}}
	}
	return model.FallbackIntent()
}

// --- helpers ---

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func safeSnippet(s string) string {
	const maxErrSnippet = 200
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
