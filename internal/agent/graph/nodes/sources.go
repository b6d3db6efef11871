package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	"github.com/tokyo-trip-assistant/server/internal/retrieval"
	"github.com/tokyo-trip-assistant/server/internal/weather"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

// retryBackoff is the delay before the single retry of a failed source call.
const retryBackoff = 200 * time.Millisecond

// KnowledgeSearcher is the retrieval dependency of the source-fetch node.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Snippet, error)
}

// ForecastProvider is the weather dependency of the source-fetch node.
type ForecastProvider interface {
	Forecast(ctx context.Context, location string, when time.Time) (*weather.Summary, error)
}

// NewSourceFetchNode creates the node that fans out to the knowledge index
// and the weather provider, as declared by the intent categories. The two
// calls run concurrently; each gets one retry. Source failures never fail the
// node: retrieval degrades to zero snippets and weather degrades to a flag
// the assembler turns into an unavailability note.
func NewSourceFetchNode(searcher KnowledgeSearcher, forecaster ForecastProvider) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, intent model.IntentResult) (model.IntentResult, error) {
		var query string
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			query = state.Query
			return nil
		})
		if err != nil {
			return intent, err
		}

		src := intent.Sources()

		var (
			snippets      []retrieval.Snippet
			summary       *weather.Summary
			weatherFailed bool
		)

		g, gctx := errgroup.WithContext(ctx)

		if src.Retrieval && searcher != nil {
			g.Go(func() error {
				result, rerr := withOneRetry(gctx, func(ctx context.Context) ([]retrieval.Snippet, error) {
					return searcher.Search(ctx, query, 0)
				})
				if rerr != nil {
					// treated as zero snippets, the turn proceeds
					logx.Warn().Err(rerr).Msg("knowledge retrieval failed, continuing without snippets")
					return nil
				}
				snippets = result
				return nil
			})
		}

		if src.Weather && forecaster != nil {
			g.Go(func() error {
				result, werr := withOneRetry(gctx, func(ctx context.Context) (*weather.Summary, error) {
					return forecaster.Forecast(ctx, "", time.Time{})
				})
				if werr != nil {
					weatherFailed = true
					if errors.Is(werr, weather.ErrLocationUnresolved) {
						logx.Warn().Err(werr).Msg("weather location unresolved, continuing without forecast")
					} else {
						logx.Warn().Err(werr).Msg("weather lookup failed, continuing without forecast")
					}
					return nil
				}
				summary = result
				return nil
			})
		}

		// workers only return nil, Wait is for synchronization
		_ = g.Wait()

		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Snippets = snippets
			state.Weather = summary
			state.WeatherRequested = src.Weather
			state.WeatherFailed = weatherFailed
			return nil
		})
		if err != nil {
			return intent, err
		}

		logx.Debug().
			Bool("retrieval", src.Retrieval).
			Bool("weather", src.Weather).
			Int("snippets", len(snippets)).
			Bool("weather_failed", weatherFailed).
			Msg("source fetch completed")
		return intent, nil
	})
}

// withOneRetry runs fn and retries it once after a short backoff. Location
// resolution failures are permanent and not retried.
func withOneRetry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(retryBackoff)), func(ctx context.Context) error {
		result, err := fn(ctx)
		if err != nil {
			if errors.Is(err, weather.ErrLocationUnresolved) {
				return err
			}
			return retry.RetryableError(err)
		}
		out = result
		return nil
	})
	return out, err
}
