package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
	"github.com/geraldosnetto/agro-sub002/pkg/utils"
)

// Weather talks to the Open-Meteo geocoding and forecast APIs.
type Weather struct {
	base
	geocodingURL string
	forecastURL  string
	countryCode  string
	forecastDays int
}

// NewWeather creates an Open-Meteo client. Geocoding is restricted to Brazil.
func NewWeather(geocodingURL, forecastURL string, opts ...Option) *Weather {
	return &Weather{
		base:         newBase(opts),
		geocodingURL: geocodingURL,
		forecastURL:  forecastURL,
		countryCode:  "BR",
		forecastDays: 7,
	}
}

// Name returns the source name.
func (w *Weather) Name() string { return "Open-Meteo" }

type omGeocodingResponse struct {
	Results []struct {
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Country     string  `json:"country"`
		CountryCode string  `json:"country_code"`
		Admin1      string  `json:"admin1"`
	} `json:"results"`
}

// SearchCities resolves a free-text place name. Queries shorter than two
// characters return no cities without calling upstream.
func (w *Weather) SearchCities(ctx context.Context, query string) Result[models.City] {
	start := time.Now()
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return finish[models.City](&w.base, w.Name(), "city-search", start, nil, nil)
	}
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	q := url.Values{}
	q.Set("name", query)
	q.Set("count", "10")
	q.Set("language", "pt")
	q.Set("format", "json")
	if w.countryCode != "" {
		q.Set("countryCode", w.countryCode)
	}
	body, err := w.get(ctx, w.Name(), w.geocodingURL+"?"+q.Encode(), "application/json")
	if err != nil {
		return finish[models.City](&w.base, w.Name(), "city-search", start, nil, err)
	}

	var resp omGeocodingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return finish[models.City](&w.base, w.Name(), "city-search", start, nil, parseError(w.Name(), err))
	}
	cities := make([]models.City, 0, len(resp.Results))
	for _, r := range resp.Results {
		cities = append(cities, models.City{
			Name:      r.Name,
			State:     r.Admin1,
			Country:   r.Country,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		})
	}
	return finish(&w.base, w.Name(), "city-search", start, cities, nil)
}

type omForecastResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Current   *struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Time          []string   `json:"time"`
		TempMax       []*float64 `json:"temperature_2m_max"`
		TempMin       []*float64 `json:"temperature_2m_min"`
		Precipitation []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// Forecast returns the current conditions plus a daily forecast for the
// given coordinates as a single record.
func (w *Weather) Forecast(ctx context.Context, lat, lon float64) Result[models.WeatherReading] {
	start := time.Now()
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		err := parseError(w.Name(), fmt.Errorf("coordinates out of range: %v,%v", lat, lon))
		return finish[models.WeatherReading](&w.base, w.Name(), "weather", start, nil, err)
	}
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("timezone", "America/Sao_Paulo")
	q.Set("forecast_days", strconv.Itoa(w.forecastDays))

	body, err := w.get(ctx, w.Name(), w.forecastURL+"?"+q.Encode(), "application/json")
	if err != nil {
		return finish[models.WeatherReading](&w.base, w.Name(), "weather", start, nil, err)
	}
	reading, err := parseForecast(body)
	if err != nil {
		return finish[models.WeatherReading](&w.base, w.Name(), "weather", start, nil, parseError(w.Name(), err))
	}
	return finish(&w.base, w.Name(), "weather", start, []models.WeatherReading{reading}, nil)
}

func parseForecast(body []byte) (models.WeatherReading, error) {
	var resp omForecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.WeatherReading{}, err
	}
	if resp.Current == nil {
		return models.WeatherReading{}, fmt.Errorf("missing current conditions")
	}
	asOf, err := time.ParseInLocation("2006-01-02T15:04", resp.Current.Time, utils.BRT)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("current time: %w", err)
	}

	reading := models.WeatherReading{
		Latitude:      resp.Latitude,
		Longitude:     resp.Longitude,
		Temperature:   resp.Current.Temperature,
		Precipitation: resp.Current.Precipitation,
		Humidity:      resp.Current.Humidity,
		WindSpeed:     resp.Current.WindSpeed,
		AsOf:          asOf,
	}
	d := resp.Daily
	for i, day := range d.Time {
		date, err := time.ParseInLocation("2006-01-02", day, utils.BRT)
		if err != nil {
			continue
		}
		reading.Daily = append(reading.Daily, models.DailyForecast{
			Date:          date,
			TempMax:       at(d.TempMax, i),
			TempMin:       at(d.TempMin, i),
			Precipitation: at(d.Precipitation, i),
		})
	}
	return reading, nil
}

// at returns s[i] or zero for missing and null entries.
func at(s []*float64, i int) float64 {
	if i >= len(s) || s[i] == nil {
		return 0
	}
	return *s[i]
}
