package nodes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	"github.com/tokyo-trip-assistant/server/internal/retrieval"
	"github.com/tokyo-trip-assistant/server/internal/weather"
)

type fakeSearcher struct {
	snippets []retrieval.Snippet
	err      error
	failures int
	calls    int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topK int) ([]retrieval.Snippet, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, retrieval.ErrUnavailable
	}
	return f.snippets, f.err
}

type fakeForecaster struct {
	summary *weather.Summary
	err     error
	calls   int
}

func (f *fakeForecaster) Forecast(ctx context.Context, location string, when time.Time) (*weather.Summary, error) {
	f.calls++
	return f.summary, f.err
}

// runSourceFetch executes the node inside a minimal graph so ProcessState works.
func runSourceFetch(t *testing.T, query string, intent model.IntentResult, searcher KnowledgeSearcher, forecaster ForecastProvider) *model.AppState {
	t.Helper()
	ctx := context.Background()

	var captured model.AppState
	g := compose.NewGraph[model.IntentResult, model.IntentResult](
		compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
			return &model.AppState{Query: query}
		}),
	)
	require.NoError(t, g.AddLambdaNode(NodeSourceFetch, NewSourceFetchNode(searcher, forecaster),
		compose.WithStatePostHandler(func(_ context.Context, out model.IntentResult, state *model.AppState) (model.IntentResult, error) {
			captured = *state
			return out, nil
		}),
	))
	require.NoError(t, g.AddEdge(compose.START, NodeSourceFetch))
	require.NoError(t, g.AddEdge(NodeSourceFetch, compose.END))

	runnable, err := g.Compile(ctx)
	require.NoError(t, err)

	_, err = runnable.Invoke(ctx, intent)
	require.NoError(t, err)
	return &captured
}

func sightseeingIntent() model.IntentResult {
	return model.IntentResult{Scores: []model.CategoryScore{{Category: model.IntentSightseeing, Confidence: 0.9}}}
}

func mixedIntent() model.IntentResult {
	return model.IntentResult{Scores: []model.CategoryScore{{Category: model.IntentMixed, Confidence: 0.8}}}
}

func TestSourceFetchRetrievalOnly(t *testing.T) {
	searcher := &fakeSearcher{snippets: []retrieval.Snippet{{Title: "Senso-ji", Score: 0.9}}}
	forecaster := &fakeForecaster{}

	state := runSourceFetch(t, "temples in Asakusa", sightseeingIntent(), searcher, forecaster)

	require.Len(t, state.Snippets, 1)
	assert.False(t, state.WeatherRequested)
	assert.Zero(t, forecaster.calls)
}

func TestSourceFetchMixedFansOutToBoth(t *testing.T) {
	searcher := &fakeSearcher{snippets: []retrieval.Snippet{{Title: "Meiji Shrine", Score: 0.8}}}
	forecaster := &fakeForecaster{summary: &weather.Summary{Location: "Tokyo", Condition: "clear sky"}}

	state := runSourceFetch(t, "outdoor plans tomorrow?", mixedIntent(), searcher, forecaster)

	require.Len(t, state.Snippets, 1)
	require.NotNil(t, state.Weather)
	assert.True(t, state.WeatherRequested)
	assert.False(t, state.WeatherFailed)
}

func TestSourceFetchRetrievalFailureDegrades(t *testing.T) {
	searcher := &fakeSearcher{err: retrieval.ErrUnavailable}
	forecaster := &fakeForecaster{summary: &weather.Summary{Location: "Tokyo"}}

	state := runSourceFetch(t, "anything fun?", mixedIntent(), searcher, forecaster)

	assert.Empty(t, state.Snippets)
	require.NotNil(t, state.Weather)
	// a second attempt happened before giving up
	assert.Equal(t, 2, searcher.calls)
}

func TestSourceFetchRetrySucceedsOnSecondAttempt(t *testing.T) {
	searcher := &fakeSearcher{failures: 1, snippets: []retrieval.Snippet{{Title: "Ueno Park", Score: 0.7}}}

	state := runSourceFetch(t, "parks?", sightseeingIntent(), searcher, nil)

	require.Len(t, state.Snippets, 1)
	assert.Equal(t, 2, searcher.calls)
}

func TestSourceFetchWeatherFailureSetsFlag(t *testing.T) {
	forecaster := &fakeForecaster{err: fmt.Errorf("%w: boom", weather.ErrUnavailable)}
	weatherIntent := model.IntentResult{Scores: []model.CategoryScore{{Category: model.IntentWeather, Confidence: 0.9}}}

	state := runSourceFetch(t, "rain tomorrow?", weatherIntent, nil, forecaster)

	assert.True(t, state.WeatherRequested)
	assert.True(t, state.WeatherFailed)
	assert.Nil(t, state.Weather)
	// unavailable errors are retried once
	assert.Equal(t, 2, forecaster.calls)
}

func TestSourceFetchLocationUnresolvedNotRetried(t *testing.T) {
	forecaster := &fakeForecaster{err: fmt.Errorf("%w: %q", weather.ErrLocationUnresolved, "Atlantis")}
	weatherIntent := model.IntentResult{Scores: []model.CategoryScore{{Category: model.IntentWeather, Confidence: 0.9}}}

	state := runSourceFetch(t, "weather in Atlantis", weatherIntent, nil, forecaster)

	assert.True(t, state.WeatherFailed)
	assert.Equal(t, 1, forecaster.calls)
}

func TestWithOneRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := withOneRetry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, weather.ErrLocationUnresolved
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, weather.ErrLocationUnresolved))
	assert.Equal(t, 1, calls)
}
