// Package external fetches public holidays and weather forecasts for the
// calendar view. Lookups never fail: holidays fall back to a static list and
// weather to an empty forecast.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"lifelog/internal/cache"
	"lifelog/internal/log"
	"lifelog/internal/metrics"
)

const (
	DefaultHolidaysBaseURL = "https://date.nager.at"
	DefaultWeatherBaseURL  = "https://api.open-meteo.com"
	DefaultCountry         = "IN"
	DefaultLatitude        = 13.0827
	DefaultLongitude       = 80.2707

	defaultTimeout   = 10 * time.Second
	defaultCacheTTL  = 6 * time.Hour
	defaultCacheSize = 64
	maxBodyBytes     = 1 << 20
)

const (
	SourceHolidays = "holidays"
	SourceWeather  = "weather"
)

// Lookup outcomes recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

type Config struct {
	HolidaysBaseURL string
	WeatherBaseURL  string
	Timeout         time.Duration
	CacheTTL        time.Duration
	HTTPClient      *http.Client
}

type Client struct {
	http        *http.Client
	holidaysURL string
	weatherURL  string
	logger      *log.Logger
	metrics     *metrics.Metrics

	holidays *cache.LRUCache[[]Holiday]
	weather  *cache.LRUCache[[]DayWeather]
}

func NewClient(cfg Config, logger *log.Logger, m *metrics.Metrics) *Client {
	if cfg.HolidaysBaseURL == "" {
		cfg.HolidaysBaseURL = DefaultHolidaysBaseURL
	}
	if cfg.WeatherBaseURL == "" {
		cfg.WeatherBaseURL = DefaultWeatherBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:        httpClient,
		holidaysURL: cfg.HolidaysBaseURL,
		weatherURL:  cfg.WeatherBaseURL,
		logger:      logger.OrDefault(log.ComponentExternal),
		metrics:     m,
		holidays:    cache.NewLRUCache[[]Holiday](defaultCacheSize, cfg.CacheTTL),
		weather:     cache.NewLRUCache[[]DayWeather](defaultCacheSize, cfg.CacheTTL),
	}
}

// Caches exposes the lookup caches so they can join a cleanup manager.
func (c *Client) Caches() []cache.Cleaner {
	return []cache.Cleaner{c.holidays, c.weather}
}

// CalendarView is what the calendar page needs from outside.
type CalendarView struct {
	Holidays []Holiday    `json:"holidays"`
	Weather  []DayWeather `json:"weather"`
}

// Calendar fetches holidays and weather concurrently.
func (c *Client) Calendar(ctx context.Context, year int, country string, lat, lon float64) CalendarView {
	var view CalendarView
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.Holidays = c.Holidays(ctx, year, country)
		return nil
	})
	g.Go(func() error {
		view.Weather = c.Weather(ctx, lat, lon)
		return nil
	})
	_ = g.Wait()
	return view
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, strconv.Itoa(resp.StatusCode))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
