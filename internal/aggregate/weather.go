package aggregate

import (
	"context"
	"fmt"
	"math"

	"github.com/geraldosnetto/agro-sub002/internal/cache"
	"github.com/geraldosnetto/agro-sub002/internal/source"
	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// Weather returns current conditions and the daily forecast. Coordinates are
// rounded to two decimals before both the cache lookup and the upstream call.
func (a *Aggregator) Weather(ctx context.Context, lat, lon float64, force bool) (cache.Cached[models.WeatherReading], error) {
	lat, lon = round2(lat), round2(lon)
	key := cache.NewKey(cache.KindWeather).WithCoord("lat", lat).WithCoord("lon", lon)
	return cache.Fetch(ctx, a.cache, key, force, func(ctx context.Context) (models.WeatherReading, error) {
		if a.weather == nil {
			return models.WeatherReading{}, fmt.Errorf("%w: no weather source", ErrAllSourcesFailed)
		}
		return single(a.weather.Forecast(ctx, lat, lon))
	})
}

// SearchCities resolves a place name to candidate coordinates.
func (a *Aggregator) SearchCities(ctx context.Context, query string) (cache.Cached[[]models.City], error) {
	key := cache.NewKey(cache.KindCitySearch).WithText("q", query)
	return cache.Fetch(ctx, a.cache, key, false, func(ctx context.Context) ([]models.City, error) {
		if a.weather == nil {
			return nil, fmt.Errorf("%w: no weather source", ErrAllSourcesFailed)
		}
		cities, err := merge([]source.Result[models.City]{a.weather.SearchCities(ctx, query)})
		if err != nil {
			return nil, err
		}
		if cities == nil {
			cities = []models.City{}
		}
		return cities, nil
	})
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
