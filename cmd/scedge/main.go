// Scedge is a policy-aware edge cache for knowledge artifacts. It fronts an
// authoritative knowledge service with a Redis-backed cache, enforces tenant
// policy on every access, and reacts to invalidation events from the bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/memophor/scedge/internal/api"
	"github.com/memophor/scedge/internal/cache"
	"github.com/memophor/scedge/internal/config"
	"github.com/memophor/scedge/internal/events"
	"github.com/memophor/scedge/internal/metrics"
	"github.com/memophor/scedge/internal/policy"
	"github.com/memophor/scedge/internal/upstream"
)

const (
	appName = "scedge"
	version = "v0.3.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Policy-aware edge cache for knowledge artifacts",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache service",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Info().Str("version", version).Msg("Starting scedge")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("backend", cfg.Backend).
		Msg("Configuration loaded")

	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}
	cacheFacade := cache.New(backend)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cacheFacade.Ping(ctx); err != nil {
		return fmt.Errorf("storage backend unreachable: %w", err)
	}
	log.Info().Msg("Storage backend connection established")

	m := metrics.New()

	policyEngine := policy.NewEngine(cfg.JWTSecret)
	tenants, err := cfg.LoadTenants()
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Failed to load tenant configurations - continuing without tenant auth")
	case len(tenants) == 0:
		log.Warn().Msg("No tenant configurations loaded - API key validation will fail")
	default:
		log.Info().Int("count", len(tenants)).Msg("Loading tenant configurations")
		policyEngine.LoadTenants(tenants)
	}

	var upstreamClient *upstream.Client
	if cfg.Upstream != nil {
		log.Info().Str("base_url", cfg.Upstream.BaseURL).Msg("Upstream hydration enabled")
		upstreamClient = upstream.New(upstream.Config{
			BaseURL: cfg.Upstream.BaseURL,
			Timeout: cfg.Upstream.Timeout(),
		})
	}

	var listener *events.Listener
	if cfg.EventBusEnabled {
		bus, err := events.NewRedisBus(cfg.EventBusURL)
		if err != nil {
			return err
		}
		listener = events.NewListener(bus, cfg.EventBusChannel, cacheFacade)
		if err := listener.Start(ctx); err != nil {
			return err
		}
	} else {
		log.Info().Msg("Event bus disabled")
	}

	handlers := api.NewHandlers(cacheFacade, policyEngine, m, upstreamClient, cfg.DefaultTTLSeconds, version)
	serverConfig := api.DefaultServerConfig(cfg.ListenAddr)
	serverConfig.MetricsEnabled = cfg.MetricsEnabled
	serverConfig.RateLimitRPS = cfg.RateLimitRPS
	serverConfig.RateLimitBurst = cfg.RateLimitBurst
	server := api.NewServer(serverConfig, handlers, m)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Initiating graceful shutdown")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	if listener != nil {
		if err := listener.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Event listener shutdown incomplete")
		}
	}

	log.Info().Msg("Scedge shut down cleanly")
	return nil
}

func buildBackend(cfg config.Config) (cache.Backend, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return cache.NewRedisBackend(cfg.RedisURL)
	case config.BackendMemory:
		return cache.NewMemoryBackend(), nil
	case config.BackendPostgres:
		return cache.NewPostgresBackend(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
