// Package config resolves upscalectl settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, a .env file,
// UPSCALE_* environment variables, then command-line flags (applied by the
// cli package on top of the returned Config).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Config holds every tunable of the dashboard and its tooling.
type Config struct {
	// APIURL is the base URL of the status, submit, and history endpoints.
	APIURL string `yaml:"api_url"`

	// EventsURL is the full URL of the server-sent event stream.
	EventsURL string `yaml:"events_url"`

	// RefreshInterval re-fetches the snapshot periodically. Zero fetches it
	// once at startup and after every reconnect.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// HTTPTimeout bounds request/response calls. The event stream is exempt.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// ReconnectInitial and ReconnectMax bound the exponential backoff used to
	// re-subscribe after the stream drops. ReconnectMaxElapsed of zero
	// retries until the dashboard stops.
	ReconnectInitial    time.Duration `yaml:"reconnect_initial"`
	ReconnectMax        time.Duration `yaml:"reconnect_max"`
	ReconnectMaxElapsed time.Duration `yaml:"reconnect_max_elapsed"`

	// JournalPath enables the mutation journal when non-empty.
	JournalPath string `yaml:"journal_path"`

	// ServeAddr is the listen address of `upscalectl serve`.
	ServeAddr string `yaml:"serve_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Environment variable names.
const (
	EnvAPIURL              = "UPSCALE_API_URL"
	EnvEventsURL           = "UPSCALE_EVENTS_URL"
	EnvRefreshInterval     = "UPSCALE_REFRESH_INTERVAL"
	EnvHTTPTimeout         = "UPSCALE_HTTP_TIMEOUT"
	EnvReconnectInitial    = "UPSCALE_RECONNECT_INITIAL"
	EnvReconnectMax        = "UPSCALE_RECONNECT_MAX"
	EnvReconnectMaxElapsed = "UPSCALE_RECONNECT_MAX_ELAPSED"
	EnvJournalPath         = "UPSCALE_JOURNAL"
	EnvServeAddr           = "UPSCALE_SERVE_ADDR"
	EnvLogLevel            = "LOGGING_LEVEL"
	EnvLogFormat           = "LOGGING_FORMAT"
)

// Default returns the built-in configuration, which matches a local
// deployment of the producer (port 3000) and consumer (port 5001) servers.
func Default() Config {
	return Config{
		APIURL:           "http://localhost:3000",
		EventsURL:        "http://localhost:5001/events",
		RefreshInterval:  0,
		HTTPTimeout:      10 * time.Second,
		ReconnectInitial: 500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		ServeAddr:        ":8080",
		LogLevel:         "INFO",
		LogFormat:        "CONSOLE",
	}
}

// Options selects the sources Load reads.
type Options struct {
	// File is an optional YAML config file. A missing file is an error only
	// when the path was given explicitly.
	File string

	// DotEnv is an optional .env file. Missing is not an error.
	DotEnv string

	// Getenv reads environment variables. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load resolves the configuration from defaults, file, and environment.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", opts.File, err)
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if opts.DotEnv != "" {
		vars, err := godotenv.Read(opts.DotEnv)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file: %w", err)
		}
		// Real environment variables win over the file.
		base := getenv
		getenv = func(key string) string {
			if v := base(key); v != "" {
				return v
			}
			return vars[key]
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvAPIURL, &cfg.APIURL},
		{EnvEventsURL, &cfg.EventsURL},
		{EnvJournalPath, &cfg.JournalPath},
		{EnvServeAddr, &cfg.ServeAddr},
		{EnvLogLevel, &cfg.LogLevel},
		{EnvLogFormat, &cfg.LogFormat},
	}
	for _, s := range strs {
		if v := getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	durs := []struct {
		key string
		dst *time.Duration
	}{
		{EnvRefreshInterval, &cfg.RefreshInterval},
		{EnvHTTPTimeout, &cfg.HTTPTimeout},
		{EnvReconnectInitial, &cfg.ReconnectInitial},
		{EnvReconnectMax, &cfg.ReconnectMax},
		{EnvReconnectMaxElapsed, &cfg.ReconnectMaxElapsed},
	}
	for _, d := range durs {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if !topic.IsAbsoluteURL(c.APIURL) {
		return fmt.Errorf("api_url must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if !topic.IsAbsoluteURL(c.EventsURL) {
		return fmt.Errorf("events_url must be an absolute http(s) URL, got %q", c.EventsURL)
	}
	if c.RefreshInterval < 0 || c.HTTPTimeout < 0 || c.ReconnectInitial < 0 || c.ReconnectMax < 0 || c.ReconnectMaxElapsed < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.ReconnectMax > 0 && c.ReconnectInitial > c.ReconnectMax {
		return fmt.Errorf("reconnect_initial (%s) exceeds reconnect_max (%s)", c.ReconnectInitial, c.ReconnectMax)
	}
	return nil
}
