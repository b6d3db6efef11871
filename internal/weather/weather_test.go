package weather

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forecastPayload(now time.Time) map[string]any {
	slot := func(offset time.Duration, temp float64, desc string, pop float64) map[string]any {
		return map[string]any{
			"dt":      now.Add(offset).Unix(),
			"main":    map[string]any{"temp": temp},
			"weather": []map[string]any{{"main": "Rain", "description": desc}},
			"pop":     pop,
		}
	}
	return map[string]any{
		"cod": "200",
		"list": []map[string]any{
			slot(3*time.Hour, 18.5, "light rain", 0.6),
			slot(27*time.Hour, 22.0, "scattered clouds", 0.1),
			slot(51*time.Hour, 25.5, "clear sky", 0.0),
		},
		"city": map[string]any{"name": "Tokyo"},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c := NewClient(Config{
		APIKey:          "test-key",
		BaseURL:         ts.URL,
		Units:           "metric",
		TimeoutSeconds:  2,
		DefaultLocation: "Tokyo",
	})
	return c, ts
}

func TestForecastPicksNearestSlot(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Hour)
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		json.NewEncoder(w).Encode(forecastPayload(now))
	})

	// target tomorrow, close to the 27h slot
	summary, err := c.Forecast(context.Background(), "Tokyo", now.Add(26*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", gotQuery)
	assert.Equal(t, "Tokyo", summary.Location)
	assert.InDelta(t, 22.0, summary.TempC, 1e-9)
	assert.Equal(t, "scattered clouds", summary.Condition)
	assert.InDelta(t, 0.1, summary.PrecipChance, 1e-9)
}

func TestForecastDefaultsLocationAndTime(t *testing.T) {
	now := time.Now().UTC()
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		json.NewEncoder(w).Encode(forecastPayload(now))
	})

	summary, err := c.Forecast(context.Background(), "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", gotQuery)
	// zero target resolves to now, nearest slot is the 3h one
	assert.Equal(t, "light rain", summary.Condition)
	assert.False(t, summary.FetchedAt.IsZero())
}

func TestForecastLocationUnresolvedOn404(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Forecast(context.Background(), "Atlantis", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocationUnresolved))
}

func TestForecastLocationUnresolvedOnCod404(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"cod": "404", "message": "city not found"})
	})

	_, err := c.Forecast(context.Background(), "Nowhere", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocationUnresolved))
}

func TestForecastServerErrorIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Forecast(context.Background(), "Tokyo", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestForecastTimeoutIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(forecastPayload(time.Now()))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Forecast(ctx, "Tokyo", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestForecastEmptyListIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"cod": "200", "list": []any{}})
	})

	_, err := c.Forecast(context.Background(), "Tokyo", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
