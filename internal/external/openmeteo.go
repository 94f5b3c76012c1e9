package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gardenwatch/internal/types"
)

// openMeteoAPIBase is the public Open-Meteo forecast endpoint host.
const openMeteoAPIBase = "https://api.open-meteo.com"

// DefaultForecastDays covers the alert rules' look-ahead plus a margin for the
// snapshot record.
const DefaultForecastDays = 7

// OpenMeteoConfig holds the configuration for creating an OpenMeteoClient.
type OpenMeteoConfig struct {
	BaseURL      string // defaults to openMeteoAPIBase
	ForecastDays int
	Timeout      time.Duration
	Backoff      Backoff // zero means two retries between 500ms and 5s
	Logger       *slog.Logger
}

// OpenMeteoClient fetches daily aggregate forecasts. It satisfies the daily
// batch's weather collaborator: FetchDailyForecast never returns an error,
// failures are carried in Forecast.Error.
type OpenMeteoClient struct {
	api          *upstream
	baseURL      string
	forecastDays int
	logger       *slog.Logger
}

// NewOpenMeteoClient creates an OpenMeteoClient with its own circuit breaker.
func NewOpenMeteoClient(cfg OpenMeteoConfig) *OpenMeteoClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = Backoff{Retries: 2, Min: 500 * time.Millisecond, Max: 5 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openMeteoAPIBase
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = DefaultForecastDays
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenMeteoClient{
		api:          newUpstream("open-meteo", cfg.Timeout, cfg.Backoff),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		forecastDays: cfg.ForecastDays,
		logger:       cfg.Logger,
	}
}

// openMeteoResponse is the subset of the /v1/forecast payload we read. The
// daily block is column-oriented; nulls appear for days the model has no value.
type openMeteoResponse struct {
	Daily struct {
		Time             []string   `json:"time"`
		TemperatureMax   []*float64 `json:"temperature_2m_max"`
		TemperatureMin   []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// FetchDailyForecast returns the daily forecast starting today in the
// location's own timezone.
func (c *OpenMeteoClient) FetchDailyForecast(ctx context.Context, lat, lon float64) *types.Forecast {
	var body openMeteoResponse
	if err := c.api.getJSON(ctx, c.forecastURL(lat, lon), types.ErrCodeUpstreamWeather, &body); err != nil {
		c.logger.WarnContext(ctx, "weather fetch failed",
			"latitude", lat,
			"longitude", lon,
			"error", err,
		)
		return &types.Forecast{Error: err.Error()}
	}
	if body.Error {
		return &types.Forecast{Error: "open-meteo: " + body.Reason}
	}

	daily, err := zipDaily(body)
	if err != nil {
		return &types.Forecast{Error: err.Error()}
	}
	return &types.Forecast{Daily: daily}
}

// Breaker exposes the client's breaker state for diagnostics.
func (c *OpenMeteoClient) Breaker() string {
	return c.api.breakerState()
}

func (c *OpenMeteoClient) forecastURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(c.forecastDays))
	return c.baseURL + "/v1/forecast?" + q.Encode()
}

func zipDaily(body openMeteoResponse) ([]types.DailyForecast, error) {
	d := body.Daily
	n := len(d.Time)
	if len(d.TemperatureMax) != n || len(d.TemperatureMin) != n || len(d.PrecipitationSum) != n {
		return nil, fmt.Errorf("open-meteo: mismatched daily columns (time=%d max=%d min=%d rain=%d)",
			n, len(d.TemperatureMax), len(d.TemperatureMin), len(d.PrecipitationSum))
	}
	out := make([]types.DailyForecast, n)
	for i := 0; i < n; i++ {
		out[i] = types.DailyForecast{
			Date:             d.Time[i],
			TemperatureMax:   d.TemperatureMax[i],
			TemperatureMin:   d.TemperatureMin[i],
			PrecipitationSum: d.PrecipitationSum[i],
		}
	}
	return out, nil
}

