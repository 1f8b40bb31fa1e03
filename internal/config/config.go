// Package config resolves the console's runtime configuration.
//
// Values come from built-in defaults, then an optional YAML file named by
// CONSOLE_CONFIG, then environment variables. Configuration is read once at
// startup.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smarttraffic/console/internal/database"
	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/traffic"
)

// FileEnv names the environment variable pointing at the YAML file.
const FileEnv = "CONSOLE_CONFIG"

// Data sources.
const (
	SourceBackend = "backend"
	SourceFixture = "fixture"
)

// Archive modes.
const (
	ArchiveOff      = "off"
	ArchiveMemory   = "memory"
	ArchivePostgres = "postgres"
)

// ErrInvalid is returned for configuration values that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the resolved configuration.
type Config struct {
	Env  string
	Port string

	// RequireTLS rejects plain HTTP requests; on by default in production.
	RequireTLS bool

	// Traffic backend.
	APIURL     string
	APITimeout time.Duration
	DataSource string

	// Synchronizer.
	PollInterval    time.Duration
	HistoryCapacity int
	SkipOverlap     bool
	GuardStalePolls bool

	// Media feeds.
	FeedGracePeriod time.Duration
	FeedQuality     media.Quality

	// Intersections maps intersection ids to display names.
	Intersections map[string]string

	Archive  string
	Database database.Config

	PubSubProjectID    string
	PubSubSubscription string

	OTelEnabled  bool
	OTelEndpoint string
}

// File is the YAML file layout. Omitted keys keep their defaults.
type File struct {
	APIURL          string            `yaml:"api_url"`
	DataSource      string            `yaml:"data_source"`
	PollInterval    string            `yaml:"poll_interval"`
	HistoryCapacity int               `yaml:"history_capacity"`
	SkipOverlap     *bool             `yaml:"skip_overlap"`
	GuardStalePolls *bool             `yaml:"guard_stale_polls"`
	FeedGracePeriod string            `yaml:"feed_grace_period"`
	FeedQuality     string            `yaml:"feed_quality"`
	Archive         string            `yaml:"archive"`
	Intersections   map[string]string `yaml:"intersections"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:             "development",
		Port:            "8080",
		APIURL:          "http://localhost:5000",
		APITimeout:      5 * time.Second,
		DataSource:      SourceBackend,
		PollInterval:    traffic.DefaultPollInterval,
		HistoryCapacity: traffic.DefaultHistoryCapacity,
		FeedGracePeriod: media.DefaultGracePeriod,
		FeedQuality:     media.DefaultQuality,
		Intersections:   maps.Clone(traffic.DefaultNames),
		Archive:         ArchiveMemory,
		OTelEndpoint:    "localhost:4317",
	}
}

// Load resolves the configuration from the file named by CONSOLE_CONFIG (if
// any) and the environment.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
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

func (c *Config) applyYAML(data []byte) error {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	if f.APIURL != "" {
		c.APIURL = f.APIURL
	}
	if f.DataSource != "" {
		c.DataSource = f.DataSource
	}
	if f.PollInterval != "" {
		d, err := time.ParseDuration(f.PollInterval)
		if err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if f.HistoryCapacity != 0 {
		c.HistoryCapacity = f.HistoryCapacity
	}
	if f.SkipOverlap != nil {
		c.SkipOverlap = *f.SkipOverlap
	}
	if f.GuardStalePolls != nil {
		c.GuardStalePolls = *f.GuardStalePolls
	}
	if f.FeedGracePeriod != "" {
		d, err := time.ParseDuration(f.FeedGracePeriod)
		if err != nil {
			return fmt.Errorf("feed_grace_period: %w", err)
		}
		c.FeedGracePeriod = d
	}
	if f.FeedQuality != "" {
		c.FeedQuality = media.Quality(f.FeedQuality)
	}
	if f.Archive != "" {
		c.Archive = f.Archive
	}
	if len(f.Intersections) > 0 {
		c.Intersections = f.Intersections
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnvOrDefault("APP_ENV", c.Env)
	c.Port = getEnvOrDefault("APP_PORT", c.Port)
	c.RequireTLS = envBool("REQUIRE_TLS", c.IsProduction())
	c.APIURL = getEnvOrDefault("TRAFFIC_API_URL", c.APIURL)
	c.DataSource = getEnvOrDefault("DATA_SOURCE", c.DataSource)
	c.Archive = getEnvOrDefault("ARCHIVE", c.Archive)
	c.FeedQuality = media.Quality(getEnvOrDefault("FEED_QUALITY", string(c.FeedQuality)))
	c.PubSubProjectID = os.Getenv("PUBSUB_PROJECT_ID")
	c.PubSubSubscription = getEnvOrDefault("PUBSUB_SUBSCRIPTION", "traffic-console-triggers")
	c.OTelEnabled = os.Getenv("OTEL_ENABLED") == "true"
	c.OTelEndpoint = getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTelEndpoint)
	c.SkipOverlap = envBool("POLL_SKIP_OVERLAP", c.SkipOverlap)
	c.GuardStalePolls = envBool("POLL_GUARD_STALE", c.GuardStalePolls)
	c.Database = database.ConfigFromEnv()

	var err error
	if c.APITimeout, err = envDuration("TRAFFIC_API_TIMEOUT", c.APITimeout); err != nil {
		return err
	}
	if c.PollInterval, err = envDuration("POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	if c.FeedGracePeriod, err = envDuration("FEED_GRACE_PERIOD", c.FeedGracePeriod); err != nil {
		return err
	}
	if v := os.Getenv("HISTORY_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: HISTORY_CAPACITY: %v", ErrInvalid, err)
		}
		c.HistoryCapacity = n
	}
	return nil
}

// Validate checks that the configuration can be used.
func (c Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: poll interval must be positive", ErrInvalid))
	}
	if c.HistoryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%w: history capacity must be positive", ErrInvalid))
	}
	if c.FeedGracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("%w: feed grace period must be positive", ErrInvalid))
	}
	if !c.FeedQuality.Valid() {
		errs = append(errs, fmt.Errorf("%w: feed quality %q", ErrInvalid, c.FeedQuality))
	}
	switch c.DataSource {
	case SourceBackend, SourceFixture:
	default:
		errs = append(errs, fmt.Errorf("%w: data source %q", ErrInvalid, c.DataSource))
	}
	switch c.Archive {
	case ArchiveOff, ArchiveMemory, ArchivePostgres:
	default:
		errs = append(errs, fmt.Errorf("%w: archive %q", ErrInvalid, c.Archive))
	}
	for id, name := range c.Intersections {
		if strings.TrimSpace(id) == "" || strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%w: intersection names need an id and a name", ErrInvalid))
			break
		}
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the console runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func envDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}
