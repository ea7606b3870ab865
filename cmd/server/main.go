package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/joshdurbin/shortlinks/internal/cache"
	memorycache "github.com/joshdurbin/shortlinks/internal/cache/memory"
	rediscache "github.com/joshdurbin/shortlinks/internal/cache/redis"
	"github.com/joshdurbin/shortlinks/internal/clicks"
	"github.com/joshdurbin/shortlinks/internal/config"
	"github.com/joshdurbin/shortlinks/internal/geo"
	"github.com/joshdurbin/shortlinks/internal/logging"
	"github.com/joshdurbin/shortlinks/internal/metrics"
	"github.com/joshdurbin/shortlinks/internal/service"
	"github.com/joshdurbin/shortlinks/internal/shortener"
	"github.com/joshdurbin/shortlinks/internal/store"
	"github.com/joshdurbin/shortlinks/internal/store/memory"
	"github.com/joshdurbin/shortlinks/internal/store/sqlite"
	"github.com/joshdurbin/shortlinks/internal/transport/client"
	httpTransport "github.com/joshdurbin/shortlinks/internal/transport/http"
)

var rootCmd = &cobra.Command{
	Use:   "shortlinks",
	Short: "A short link service written in Go",
	Long:  "A short link service with expiring codes, click analytics and coarse geolocation",
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the short link server",
	RunE:  runServer,
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Client commands for interacting with the server",
}

var createCmd = &cobra.Command{
	Use:   "create [URL]",
	Short: "Create a short link",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateLink,
}

var statsCmd = &cobra.Command{
	Use:   "stats [CODE]",
	Short: "Show the details and clicks of a short link",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	// Values from a local .env become flag defaults below
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	defaults := shortener.DefaultConfig()

	// Server command flags
	serverCmd.Flags().StringP("port", "p", config.Env("SHORTLINKS_PORT", "8080"), "Server port")
	serverCmd.Flags().String("base-url", config.Env("SHORTLINKS_BASE_URL", ""), "Prefix of returned short links (default: derived from the request)")

	// Store flags
	serverCmd.Flags().String("store", config.Env("SHORTLINKS_STORE", store.BackendMemory), "Link store backend (memory, sqlite)")
	serverCmd.Flags().String("db-path", config.Env("SHORTLINKS_DB_PATH", sqlite.MemoryPath), "SQLite database path")

	// Link policy flags
	serverCmd.Flags().Duration("default-validity", config.EnvDuration("SHORTLINKS_DEFAULT_VALIDITY", service.DefaultValidityMinutes*time.Minute), "Validity of links created without one")
	serverCmd.Flags().Int("code-length", config.EnvInt("SHORTLINKS_CODE_LENGTH", defaults.DefaultLength), "Length of generated short codes")
	serverCmd.Flags().Int("code-attempts", config.EnvInt("SHORTLINKS_CODE_ATTEMPTS", defaults.MaxAttempts), "Generation attempts before giving up")

	// Geolocation flags
	serverCmd.Flags().String("geo-provider", config.Env("SHORTLINKS_GEO_PROVIDER", geo.ProviderNone), "Geolocation provider (none, ipapi)")
	serverCmd.Flags().String("geo-endpoint", config.Env("SHORTLINKS_GEO_ENDPOINT", geo.DefaultIPAPIEndpoint), "ip-api compatible lookup endpoint")
	serverCmd.Flags().Duration("geo-timeout", config.EnvDuration("SHORTLINKS_GEO_TIMEOUT", clicks.DefaultGeoTimeout), "Upper bound on a single geolocation lookup")
	serverCmd.Flags().String("redis-addr", config.Env("SHORTLINKS_REDIS_ADDR", ""), "Redis address for the geolocation cache (empty keeps it in process)")
	serverCmd.Flags().Duration("geo-cache-ttl", config.EnvDuration("SHORTLINKS_GEO_CACHE_TTL", 24*time.Hour), "Lifetime of cached geolocation results")

	// Logging configuration flags
	serverCmd.Flags().String("log-level", config.Env("SHORTLINKS_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	serverCmd.Flags().String("log-format", config.Env("SHORTLINKS_LOG_FORMAT", logging.FormatText), "Log format (text, json)")
	serverCmd.Flags().BoolP("verbose", "v", config.EnvBool("SHORTLINKS_VERBOSE", false), "Enable verbose logging (HTTP requests/responses and error details)")

	// Client command flags
	clientCmd.PersistentFlags().StringP("server-url", "u", config.Env("SHORTLINKS_SERVER_URL", "http://localhost:8080"), "Server URL")
	createCmd.Flags().Int("validity", 0, "Validity in minutes (default: server default)")
	createCmd.Flags().String("code", "", "Requested short code")

	// Add subcommands
	clientCmd.AddCommand(createCmd, statsCmd)
	rootCmd.AddCommand(serverCmd, clientCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	port, _ := flags.GetString("port")
	baseURL, _ := flags.GetString("base-url")
	backend, _ := flags.GetString("store")
	dbPath, _ := flags.GetString("db-path")
	validity, _ := flags.GetDuration("default-validity")
	codeLength, _ := flags.GetInt("code-length")
	codeAttempts, _ := flags.GetInt("code-attempts")
	geoProvider, _ := flags.GetString("geo-provider")
	geoEndpoint, _ := flags.GetString("geo-endpoint")
	geoTimeout, _ := flags.GetDuration("geo-timeout")
	redisAddr, _ := flags.GetString("redis-addr")
	cacheTTL, _ := flags.GetDuration("geo-cache-ttl")
	logLevel, _ := flags.GetString("log-level")
	logFormat, _ := flags.GetString("log-format")
	verbose, _ := flags.GetBool("verbose")

	shortenerConfig := shortener.DefaultConfig()
	shortenerConfig.DefaultLength = codeLength
	shortenerConfig.MaxAttempts = codeAttempts

	return config.New(
		config.ServerConfig{Port: port, BaseURL: baseURL},
		config.StoreConfig{Backend: backend, Path: dbPath},
		config.LinksConfig{DefaultValidity: validity},
		config.GeoConfig{Provider: geoProvider, Endpoint: geoEndpoint, Timeout: geoTimeout, RedisAddr: redisAddr, CacheTTL: cacheTTL},
		config.LoggingConfig{Level: logLevel, Format: logFormat, Verbose: verbose},
		shortenerConfig,
	)
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (store.LinkStore, error) {
	switch cfg.Backend {
	case store.BackendSQLite:
		s, err := sqlite.New(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

// newLocator builds the geolocation chain. Lookups are cached in redis when
// it is configured and reachable, in process otherwise. The returned cleanup
// releases the cache.
func newLocator(ctx context.Context, cfg config.GeoConfig, logger *slog.Logger) (geo.Locator, func()) {
	if cfg.Provider != geo.ProviderIPAPI {
		return geo.Noop{}, func() {}
	}

	var lookupCache cache.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process geolocation cache", "addr", cfg.RedisAddr, "error", err)
			_ = rdb.Close()
		} else {
			logger.Info("geolocation cache connected", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
			lookupCache = rediscache.New(rdb, cfg.CacheTTL)
		}
	}
	if lookupCache == nil {
		memCache := memorycache.New(cfg.CacheTTL)
		if err := memCache.StartBackgroundSweep(context.Background(), cfg.CacheTTL); err != nil {
			logger.Warn("failed to start geolocation cache sweep", "error", err)
		}
		lookupCache = memCache
	}

	cached := geo.NewCached(geo.NewIPAPI(cfg.Endpoint, cfg.Timeout), lookupCache, logger)
	return cached, func() {
		if err := cached.Close(); err != nil {
			logger.Error("error closing geolocation cache", "error", err)
		}
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	logger.Info("starting short link server",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"geo", cfg.Geo.Provider,
		"default_validity", cfg.Links.DefaultValidity,
	)

	// Initialize link store
	linkStore, err := openStore(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	// Initialize shortener generator
	generator, err := shortener.NewRandomGenerator(cfg.Shortener, linkStore)
	if err != nil {
		linkStore.Close()
		return fmt.Errorf("failed to create shortener generator: %w", err)
	}
	logger.Info("shortener generator ready", "type", generator.Type(), "length", cfg.Shortener.DefaultLength)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Geolocation and click recording
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	locator, closeLocator := newLocator(startCtx, cfg.Geo, logger)
	cancel()
	defer closeLocator()

	recorder := clicks.NewRecorder(linkStore, locator, cfg.Geo.Timeout, m, logger)

	links := service.NewLinkService(service.Config{
		DefaultValidity: cfg.Links.DefaultValidity,
		Codes:           cfg.Shortener,
	}, linkStore, generator, recorder, m, logger)
	defer func() {
		if err := links.Close(); err != nil {
			logger.Error("error closing link service", "error", err)
		}
	}()

	// Create and start HTTP server
	server := httpTransport.NewServer(links, m, cfg.Server.Port, cfg.Server.BaseURL, cfg.Logging.Verbose, logger)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		logger.Info("received signal, shutting down gracefully", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

func newCommands(cmd *cobra.Command) *client.Commands {
	serverURL, _ := cmd.Flags().GetString("server-url")
	return client.NewCommands(client.NewClient(serverURL))
}

func runCreateLink(cmd *cobra.Command, args []string) error {
	validity, _ := cmd.Flags().GetInt("validity")
	code, _ := cmd.Flags().GetString("code")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return newCommands(cmd).Create(ctx, args[0], validity, code)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return newCommands(cmd).Stats(ctx, args[0])
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
