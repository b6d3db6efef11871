package model

// IntentCategory is the closed set of intents the classifier may emit.
type IntentCategory string

const (
	IntentSightseeing IntentCategory = "sightseeing"
	IntentWeather     IntentCategory = "weather"
	IntentMixed       IntentCategory = "mixed"
	IntentSmallTalk   IntentCategory = "small_talk"
)

// ParseIntentCategory maps a raw label to a known category. The second return
// value reports whether the label was recognized.
func ParseIntentCategory(raw string) (IntentCategory, bool) {
	switch IntentCategory(raw) {
	case IntentSightseeing, IntentWeather, IntentMixed, IntentSmallTalk:
		return IntentCategory(raw), true
	}
	return "", false
}

// CategoryScore is one classified category with its confidence in [0, 1].
type CategoryScore struct {
	Category   IntentCategory `json:"category"`
	Confidence float64        `json:"confidence"`
}

// IntentResult is the classifier output. It always carries at least one
// category; classification failures collapse to a zero-confidence small_talk.
type IntentResult struct {
	Scores []CategoryScore `json:"scores"`
}

// FallbackIntent is the result used whenever classification fails or produces
// nothing usable.
func FallbackIntent() IntentResult {
	return IntentResult{Scores: []CategoryScore{{Category: IntentSmallTalk, Confidence: 0}}}
}

// Primary returns the highest-confidence category, small_talk when empty.
func (r IntentResult) Primary() IntentCategory {
	best := IntentSmallTalk
	bestConf := -1.0
	for _, s := range r.Scores {
		if s.Confidence > bestConf {
			best = s.Category
			bestConf = s.Confidence
		}
	}
	return best
}

// Has reports whether the result contains the given category.
func (r IntentResult) Has(cat IntentCategory) bool {
	for _, s := range r.Scores {
		if s.Category == cat {
			return true
		}
	}
	return false
}

// SourceSet declares which external sources a category requires.
type SourceSet struct {
	Retrieval bool
	Weather   bool
}

// sourcePlan is the declarative mapping from intent category to the source
// calls it requires; the pipeline unions the sets across all categories.
var sourcePlan = map[IntentCategory]SourceSet{
	IntentSightseeing: {Retrieval: true},
	IntentWeather:     {Weather: true},
	IntentMixed:       {Retrieval: true, Weather: true},
	IntentSmallTalk:   {},
}

// Sources returns the union of required source calls for every category in
// the result.
func (r IntentResult) Sources() SourceSet {
	var out SourceSet
	for _, s := range r.Scores {
		plan := sourcePlan[s.Category]
		out.Retrieval = out.Retrieval || plan.Retrieval
		out.Weather = out.Weather || plan.Weather
	}
	return out
}

// IsSmallTalkOnly reports whether no source lookups are required at all.
func (r IntentResult) IsSmallTalkOnly() bool {
	src := r.Sources()
	return !src.Retrieval && !src.Weather
}
