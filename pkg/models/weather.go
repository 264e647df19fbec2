package models

import "time"

// City is a geocoding match usable as a weather location.
type City struct {
	Name      string  `json:"name"`
	State     string  `json:"state,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherReading is a live observation plus a short daily forecast.
// Readings are never persisted.
type WeatherReading struct {
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	Temperature   float64         `json:"temperature"`   // °C
	Precipitation float64         `json:"precipitation"` // mm
	Humidity      float64         `json:"humidity,omitempty"`
	WindSpeed     float64         `json:"wind_speed,omitempty"` // km/h
	AsOf          time.Time       `json:"as_of"`
	Daily         []DailyForecast `json:"daily,omitempty"`
}

// DailyForecast summarizes one forecast day.
type DailyForecast struct {
	Date          time.Time `json:"date"`
	TempMax       float64   `json:"temp_max"`
	TempMin       float64   `json:"temp_min"`
	Precipitation float64   `json:"precipitation"`
}
