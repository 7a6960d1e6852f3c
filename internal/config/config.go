// Package config loads taxitrack settings from an optional YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"taxitrack/internal/location"
	"taxitrack/internal/viewmodel"
)

// POI is one static point of interest from the seed list.
type POI struct {
	Label string  `yaml:"label" validate:"required"`
	Lon   float64 `yaml:"lon" validate:"gte=-180,lte=180"`
	Lat   float64 `yaml:"lat" validate:"gte=-90,lte=90"`
}

// Config is the full application configuration. Sentinel must be negative
// so it can never equal a live marker: stop sequences and waypoint indices
// are non-negative.
type Config struct {
	LocationsURL   string        `yaml:"locations_url" validate:"required,url"`
	RouteURL       string        `yaml:"route_url" validate:"required_if=RouteTransport http,omitempty,url"`
	RouteTransport string        `yaml:"route_transport" validate:"oneof=http grpc"`
	GRPCAddr       string        `yaml:"grpc_addr" validate:"required_if=RouteTransport grpc"`
	PollInterval   time.Duration `yaml:"poll_interval" validate:"gt=0"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	SubmitTimeout  time.Duration `yaml:"submit_timeout" validate:"gt=0"`
	FeedFormat     string        `yaml:"feed_format" validate:"oneof=json gtfsrt siri-json siri-xml"`
	Sentinel       float64       `yaml:"sentinel" validate:"lt=0"`
	HTTPPort       int           `yaml:"http_port" validate:"gt=0,lte=65535"`
	LogLevel       string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	POIs           []POI         `yaml:"pois" validate:"dive"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LocationsURL:   "http://localhost:7114",
		RouteURL:       "http://localhost:8081",
		RouteTransport: "http",
		GRPCAddr:       "localhost:8082",
		PollInterval:   2 * time.Second,
		FetchTimeout:   10 * time.Second,
		SubmitTimeout:  10 * time.Second,
		FeedFormat:     string(location.FormatJSON),
		Sentinel:       location.DefaultSentinel,
		HTTPPort:       8080,
		LogLevel:       "info",
	}
}

// Load reads path over the defaults (an empty path skips the file), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Seed converts the configured POIs into view model places.
func (c Config) Seed() []viewmodel.Place {
	out := make([]viewmodel.Place, 0, len(c.POIs))
	for _, p := range c.POIs {
		out = append(out, viewmodel.NewPOI(p.Lon, p.Lat, p.Label))
	}
	return out
}

func (c *Config) applyEnv() error {
	c.LocationsURL = getEnv("TAXITRACK_LOCATIONS_URL", c.LocationsURL)
	c.RouteURL = getEnv("TAXITRACK_ROUTE_URL", c.RouteURL)
	c.RouteTransport = getEnv("TAXITRACK_ROUTE_TRANSPORT", c.RouteTransport)
	c.GRPCAddr = getEnv("TAXITRACK_GRPC_ADDR", c.GRPCAddr)
	c.FeedFormat = getEnv("TAXITRACK_FEED_FORMAT", c.FeedFormat)
	c.LogLevel = getEnv("TAXITRACK_LOG_LEVEL", c.LogLevel)

	var errs []error
	var err error
	if c.PollInterval, err = getDurationEnv("TAXITRACK_POLL_INTERVAL", c.PollInterval); err != nil {
		errs = append(errs, err)
	}
	if c.FetchTimeout, err = getDurationEnv("TAXITRACK_FETCH_TIMEOUT", c.FetchTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.SubmitTimeout, err = getDurationEnv("TAXITRACK_SUBMIT_TIMEOUT", c.SubmitTimeout); err != nil {
		errs = append(errs, err)
	}
	if v := os.Getenv("TAXITRACK_SENTINEL"); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			errs = append(errs, fmt.Errorf("TAXITRACK_SENTINEL: %w", perr))
		} else {
			c.Sentinel = f
		}
	}
	if v := os.Getenv("TAXITRACK_HTTP_PORT"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			errs = append(errs, fmt.Errorf("TAXITRACK_HTTP_PORT: %w", perr))
		} else {
			c.HTTPPort = n
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
