// Package weather fetches forecasts from the OpenWeather 5-day forecast API
// and normalizes them into a compact summary for prompt assembly.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

var (
	// ErrUnavailable indicates a provider timeout, network failure or 5xx.
	ErrUnavailable = errors.New("weather unavailable")
	// ErrLocationUnresolved indicates the provider does not know the location.
	ErrLocationUnresolved = errors.New("location unresolved")
)

// Summary is a normalized forecast for one location and date.
type Summary struct {
	Location     string    `json:"location"`
	Date         time.Time `json:"date"`
	TempC        float64   `json:"temp_c"`
	Condition    string    `json:"condition"`
	PrecipChance float64   `json:"precip_chance"` // 0..1
	FetchedAt    time.Time `json:"fetched_at"`
}

// Config holds the weather provider settings, sourced from environment variables.
type Config struct {
	APIKey          string `envconfig:"OPENWEATHER_API_KEY" required:"true"`
	BaseURL         string `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org/data/2.5/forecast"`
	Units           string `envconfig:"OPENWEATHER_UNITS" default:"metric"`
	TimeoutSeconds  int    `envconfig:"OPENWEATHER_TIMEOUT_SECONDS" default:"5"`
	DefaultLocation string `envconfig:"OPENWEATHER_DEFAULT_LOCATION" default:"Tokyo"`
}

// Client talks to the OpenWeather forecast endpoint.
type Client struct {
	httpClient *http.Client
	cfg        Config
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		now:        time.Now,
	}
}

// forecastResponse mirrors the subset of the OpenWeather payload we consume.
// The cod field is a string on this endpoint ("200", "404").
type forecastResponse struct {
	Cod  string `json:"cod"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Pop float64 `json:"pop"`
	} `json:"list"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
}

// Forecast returns a summary for the location. When the optional target time
// is zero the nearest upcoming forecast slot is used; otherwise the slot
// closest to the target is picked from the provider's 3-hourly list.
func (c *Client) Forecast(ctx context.Context, location string, when time.Time) (*Summary, error) {
	if location == "" {
		location = c.cfg.DefaultLocation
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", c.cfg.Units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logx.Error().Err(err).Str("location", location).Msg("weather provider request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %q", ErrLocationUnresolved, location)
	case resp.StatusCode != http.StatusOK:
		logx.Error().Int("status", resp.StatusCode).Str("location", location).Msg("weather provider returned error status")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if payload.Cod == "404" {
		return nil, fmt.Errorf("%w: %q", ErrLocationUnresolved, location)
	}
	if len(payload.List) == 0 {
		return nil, fmt.Errorf("%w: empty forecast list", ErrUnavailable)
	}

	target := when
	if target.IsZero() {
		target = c.now()
	}

	best := payload.List[0]
	bestDelta := absDuration(time.Unix(best.Dt, 0).Sub(target))
	for _, entry := range payload.List[1:] {
		delta := absDuration(time.Unix(entry.Dt, 0).Sub(target))
		if delta < bestDelta {
			best = entry
			bestDelta = delta
		}
	}

	condition := "unknown"
	if len(best.Weather) > 0 {
		if best.Weather[0].Description != "" {
			condition = best.Weather[0].Description
		} else {
			condition = best.Weather[0].Main
		}
	}

	name := payload.City.Name
	if name == "" {
		name = location
	}

	return &Summary{
		Location:     name,
		Date:         time.Unix(best.Dt, 0).UTC(),
		TempC:        best.Main.Temp,
		Condition:    condition,
		PrecipChance: best.Pop,
		FetchedAt:    c.now().UTC(),
	}, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
