package external

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"lifelog/internal/log"
)

const forecastDays = 7

var errMalformedForecast = errors.New("malformed forecast")

type DayWeather struct {
	Date        string `json:"date"`
	TempMax     int    `json:"tempMax"`
	TempMin     int    `json:"tempMin"`
	WeatherCode int    `json:"weatherCode"`
	Description string `json:"description"`
}

type openMeteoResponse struct {
	Daily struct {
		Time        []string  `json:"time"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		WeatherCode []int     `json:"weathercode"`
	} `json:"daily"`
}

var weatherDescriptions = map[int]string{
	0:  "Clear",
	1:  "Mainly Clear",
	2:  "Partly Cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Icy Fog",
	51: "Light Drizzle",
	53: "Drizzle",
	55: "Heavy Drizzle",
	61: "Light Rain",
	63: "Rain",
	65: "Heavy Rain",
	71: "Light Snow",
	73: "Snow",
	75: "Heavy Snow",
	80: "Rain Showers",
	81: "Moderate Showers",
	82: "Heavy Showers",
	95: "Thunderstorm",
	96: "Thunderstorm + Hail",
	99: "Heavy Thunderstorm",
}

// WeatherDescription names a WMO weather code.
func WeatherDescription(code int) string {
	if d, ok := weatherDescriptions[code]; ok {
		return d
	}
	return "Unknown"
}

// Weather returns the seven-day forecast at lat, lon, or nil on failure.
func (c *Client) Weather(ctx context.Context, lat, lon float64) []DayWeather {
	key := strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
	out, err := c.weather.GetOrLoad(ctx, key, func(ctx context.Context) ([]DayWeather, error) {
		return c.fetchWeather(ctx, lat, lon)
	})
	if err != nil {
		c.metrics.Lookup(SourceWeather, outcomeFallback)
		c.logger.WarnContext(ctx, "Weather lookup failed",
			log.FieldOperation, log.OpLookup,
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
		return nil
	}
	c.metrics.Lookup(SourceWeather, outcomeOK)
	return out
}

func (c *Client) fetchWeather(ctx context.Context, lat, lon float64) ([]DayWeather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,weathercode")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(forecastDays))
	endpoint := strings.TrimRight(c.weatherURL, "/") + "/v1/forecast?" + q.Encode()

	var raw openMeteoResponse
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	d := raw.Daily
	n := len(d.Time)
	if len(d.TempMax) != n || len(d.TempMin) != n || len(d.WeatherCode) != n {
		return nil, fmt.Errorf("%w: %d days, %d/%d/%d values", errMalformedForecast, n, len(d.TempMax), len(d.TempMin), len(d.WeatherCode))
	}
	out := make([]DayWeather, 0, n)
	for i := range n {
		out = append(out, DayWeather{
			Date:        d.Time[i],
			TempMax:     int(math.Round(d.TempMax[i])),
			TempMin:     int(math.Round(d.TempMin[i])),
			WeatherCode: d.WeatherCode[i],
			Description: WeatherDescription(d.WeatherCode[i]),
		})
	}
	return out, nil
}
