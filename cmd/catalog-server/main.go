// Command catalog-server serves the used-car catalog as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/car-catalog/internal/shopify"
	"github.com/Sternrassler/car-catalog/pkg/cache"
	"github.com/Sternrassler/car-catalog/pkg/catalog"
	"github.com/Sternrassler/car-catalog/pkg/config"
	"github.com/Sternrassler/car-catalog/pkg/logging"
	"github.com/Sternrassler/car-catalog/pkg/metrics"
	"github.com/Sternrassler/car-catalog/pkg/ratelimit"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Setup(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty || cfg.IsDevelopment(),
		Service: "car-catalog",
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("catalog-server")

	var redisClient *redis.Client
	if cfg.KVEnabled() {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return err
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Cache.KVTimeout)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// KV errors are tolerated per request; start anyway
			logger.Warn().Err(err).Msg("Redis not reachable at startup")
		} else {
			logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		}
		cancel()
	}

	svc, err := newCatalog(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	metrics.SetBuildInfo(version, cfg.Env)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newRouter(svc, redisClient, cfg.Server.InvalidateToken),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Env).
			Bool("kv", redisClient != nil).
			Bool("disk", cfg.DiskEnabled()).
			Msg("Starting catalog server")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		srv.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info().Msg("Server stopped")
	return nil
}

// newCatalog wires the Shopify client and cache tiers into a catalog.
// redisClient may be nil, which disables the KV tier and keeps throttle
// state in process.
func newCatalog(cfg *config.Config, redisClient *redis.Client, logger zerolog.Logger) (*catalog.Catalog, error) {
	eps, err := shopify.ResolveEndpoints(shopify.EndpointConfig{
		StoreDomain:          cfg.Shopify.StoreDomain,
		AdminDomain:          cfg.Shopify.AdminDomain,
		StorefrontToken:      cfg.Shopify.StorefrontToken,
		AdminToken:           cfg.Shopify.AdminToken,
		StorefrontAPIVersion: cfg.Shopify.StorefrontAPIVersion,
		AdminAPIVersion:      cfg.Shopify.AdminAPIVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve endpoints: %w", err)
	}
	if cfg.Shopify.AdminToken != "" && !eps.AdminEnabled {
		logger.Warn().Msg("Admin token set but no Admin endpoint resolved; Admin enrichment disabled")
	}

	clientCfg := shopify.DefaultConfig(eps, cfg.Shopify.StorefrontToken, cfg.Shopify.AdminToken)
	clientCfg.Timeout = cfg.Shopify.Timeout
	clientCfg.MaxBytes = cfg.Shopify.MaxBytes
	clientCfg.MaxRedirects = cfg.Shopify.MaxRedirects
	throttleLogger := logging.NewLogger("throttle")
	clientCfg.StorefrontThrottle = ratelimit.NewTracker(redisClient, shopify.EndpointStorefront, throttleLogger)
	if eps.AdminEnabled {
		clientCfg.AdminThrottle = ratelimit.NewTracker(redisClient, shopify.EndpointAdmin, throttleLogger)
	}
	client, err := shopify.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create shopify client: %w", err)
	}

	memory, err := cache.NewMemory(cfg.Cache.MemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	var kv cache.KV
	if redisClient != nil {
		kv = cache.NewManager(redisClient)
	}
	var disk *cache.Disk
	if cfg.DiskEnabled() {
		disk = cache.NewDisk(cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}
	tiers := cache.NewTiered(memory, kv, disk, cache.Config{
		MemoryTTL:   cfg.Cache.MemoryTTL,
		KVTTL:       cfg.Cache.KVTTL,
		KVTimeout:   cfg.Cache.KVTimeout,
		LoadTimeout: cfg.Cache.LoadTimeout,
	}, logging.NewLogger("tiered-cache"))

	catCfg := catalog.DefaultConfig(eps.Store)
	catCfg.PageSize = cfg.Catalog.PageSize
	catCfg.MaxPages = cfg.Catalog.MaxPages
	catCfg.HomepageCount = cfg.Catalog.HomepageCount
	catCfg.HandleChunkSize = cfg.Catalog.HandleChunkSize
	catCfg.AdminBatchSize = cfg.Catalog.AdminBatchSize
	catCfg.AdminConcurrency = cfg.Catalog.AdminConcurrency
	catCfg.NegativeTTL = cfg.Cache.NegativeTTL
	catCfg.AdminNeed.Drivetrain = cfg.Catalog.RequireDrivetrain
	catCfg.AdminNeed.Category = cfg.Catalog.RequireCategory
	catCfg.AdminNeed.BodyType = cfg.Catalog.RequireBodyType
	catCfg.Retry.MaxAttempts = cfg.Shopify.RetryAttempts
	catCfg.Retry.Delay = cfg.Shopify.RetryDelay

	return catalog.New(client, tiers, catCfg, logging.NewLogger("catalog")), nil
}
