package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joshdurbin/shortlinks/internal/geo"
	"github.com/joshdurbin/shortlinks/internal/logging"
	"github.com/joshdurbin/shortlinks/internal/shortener"
	"github.com/joshdurbin/shortlinks/internal/store"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Links     LinksConfig
	Geo       GeoConfig
	Logging   LoggingConfig
	Shortener shortener.Config
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port    string
	BaseURL string // Prefix of returned short links; empty derives it from the request
}

// StoreConfig holds link store configuration
type StoreConfig struct {
	Backend string
	Path    string // SQLite database path, ":memory:" by default
}

// LinksConfig holds the link lifecycle policy
type LinksConfig struct {
	DefaultValidity time.Duration
}

// GeoConfig holds geolocation configuration
type GeoConfig struct {
	Provider  string
	Endpoint  string
	Timeout   time.Duration
	RedisAddr string // Shared lookup cache; empty keeps the cache in process
	CacheTTL  time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level   string
	Format  string
	Verbose bool
}

// New creates a new config with the given parameters
func New(server ServerConfig, storeCfg StoreConfig, links LinksConfig, geoCfg GeoConfig, logCfg LoggingConfig, shortenerConfig shortener.Config) (*Config, error) {
	cfg := &Config{
		Server:    server,
		Store:     storeCfg,
		Links:     links,
		Geo:       geoCfg,
		Logging:   logCfg,
		Shortener: shortenerConfig,
	}

	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	if cfg.Logging.Verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate validates the configuration values
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("base URL must be absolute, got: %q", c.Server.BaseURL)
		}
	}

	switch c.Store.Backend {
	case store.BackendMemory:
	case store.BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Links.DefaultValidity < time.Minute {
		return fmt.Errorf("default validity must be at least one minute, got: %v", c.Links.DefaultValidity)
	}
	if c.Links.DefaultValidity%time.Minute != 0 {
		return fmt.Errorf("default validity must be whole minutes, got: %v", c.Links.DefaultValidity)
	}

	switch c.Geo.Provider {
	case geo.ProviderNone, geo.ProviderIPAPI:
	default:
		return fmt.Errorf("unknown geo provider %q", c.Geo.Provider)
	}

	if c.Geo.Timeout <= 0 {
		return fmt.Errorf("geo timeout must be positive, got: %v", c.Geo.Timeout)
	}

	if (c.Geo.Provider == geo.ProviderIPAPI || c.Geo.RedisAddr != "") && c.Geo.CacheTTL <= 0 {
		return fmt.Errorf("geo cache TTL must be positive, got: %v", c.Geo.CacheTTL)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	if err := c.Shortener.Validate(); err != nil {
		return err
	}

	return nil
}
