// Package config holds the explicit runtime configuration for irrigaudit.
// Fields carry kong tags so the CLI can embed the structs directly.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldwater/irrigaudit/internal/models"
)

const (
	DefaultBaseURL      = "https://api.open-meteo.com/v1/forecast"
	DefaultTimezone     = "GMT"
	DefaultPastDays     = 2
	DefaultForecastDays = 5
	DefaultKc           = 1.0
	DefaultPumpLPM      = 200.0
	DefaultFieldAcres   = 1.0
)

type Weather struct {
	BaseURL        string        `default:"https://api.open-meteo.com/v1/forecast" env:"BASE_URL" help:"Open-Meteo daily forecast endpoint."`
	Timezone       string        `default:"GMT" env:"TIMEZONE" help:"Timezone the provider aggregates daily values in."`
	PastDays       int           `default:"2" env:"PAST_DAYS" help:"Days of history to fetch."`
	ForecastDays   int           `default:"5" env:"FORECAST_DAYS" help:"Days of forecast to fetch, including today."`
	TodayIndex     int           `default:"-1" env:"TODAY_INDEX" help:"Row treated as today; negative means past-days."`
	Timeout        time.Duration `default:"10s" env:"TIMEOUT" help:"Per-request timeout."`
	MaxAttempts    int           `default:"3" env:"MAX_ATTEMPTS" help:"Attempts before the provider is reported unavailable."`
	InitialBackoff time.Duration `default:"1s" env:"INITIAL_BACKOFF" help:"Delay before the first retry; doubles on each retry."`
	MaxTemp        bool          `default:"false" env:"MAX_TEMP" help:"Also request maximum daily temperature."`
}

type Cache struct {
	TTL time.Duration `default:"1h" env:"TTL" help:"How long a fetched weather series is reused."`
	DB  string        `env:"DB" help:"Optional sqlite path for a persistent cache and raw payload archive." type:"path"`
}

type Crops struct {
	Path      string  `env:"PATH" help:"Crop coefficient table (JSON or YAML). Empty uses the built-in FAO-56 table." type:"path"`
	DefaultKc float64 `default:"1.0" env:"DEFAULT_KC" help:"Kc used when a crop stage is not in the table."`
}

type Log struct {
	Level  string `default:"info" env:"LEVEL" enum:"debug,info,warn,error" help:"Log level."`
	Format string `default:"json" env:"FORMAT" enum:"json,console" help:"Log encoding."`
}

type Config struct {
	Weather Weather `embed:"" prefix:"weather-" envprefix:"WEATHER_"`
	Cache   Cache   `embed:"" prefix:"cache-" envprefix:"CACHE_"`
	Crops   Crops   `embed:"" prefix:"crops-" envprefix:"CROPS_"`
	Log     Log     `embed:"" prefix:"log-" envprefix:"LOG_"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Weather: Weather{
			BaseURL:        DefaultBaseURL,
			Timezone:       DefaultTimezone,
			PastDays:       DefaultPastDays,
			ForecastDays:   DefaultForecastDays,
			TodayIndex:     -1,
			Timeout:        10 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
		},
		Cache: Cache{TTL: time.Hour},
		Crops: Crops{DefaultKc: DefaultKc},
		Log:   Log{Level: "info", Format: "json"},
	}
}

func (w Weather) Window() models.Window {
	return models.Window{PastDays: w.PastDays, ForecastDays: w.ForecastDays}
}

// ResolvedTodayIndex returns the configured today row, or PastDays when the
// index is left on auto.
func (w Weather) ResolvedTodayIndex() int {
	if w.TodayIndex < 0 {
		return w.PastDays
	}
	return w.TodayIndex
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Weather.BaseURL) == "" {
		errs = append(errs, errors.New("weather base url is required"))
	}
	if c.Weather.PastDays < 0 {
		errs = append(errs, fmt.Errorf("weather past days must be >= 0, got %d", c.Weather.PastDays))
	}
	if c.Weather.ForecastDays < 1 {
		errs = append(errs, fmt.Errorf("weather forecast days must be >= 1, got %d", c.Weather.ForecastDays))
	}
	if c.Weather.TodayIndex >= c.Weather.PastDays+c.Weather.ForecastDays {
		errs = append(errs, fmt.Errorf("weather today index %d outside window of %d days",
			c.Weather.TodayIndex, c.Weather.PastDays+c.Weather.ForecastDays))
	}
	if c.Weather.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("weather max attempts must be >= 1, got %d", c.Weather.MaxAttempts))
	}
	if c.Weather.Timeout <= 0 {
		errs = append(errs, errors.New("weather timeout must be positive"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache ttl must not be negative"))
	}
	if c.Crops.DefaultKc < 0 {
		errs = append(errs, fmt.Errorf("default kc must be >= 0, got %g", c.Crops.DefaultKc))
	}
	return errors.Join(errs...)
}
