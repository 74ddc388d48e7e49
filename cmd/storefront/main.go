package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fjod/cheeseshop/internal/cache"
	"github.com/fjod/cheeseshop/internal/checkout"
	"github.com/fjod/cheeseshop/internal/config"
	h "github.com/fjod/cheeseshop/internal/http"
	"github.com/fjod/cheeseshop/internal/identity"
	"github.com/fjod/cheeseshop/internal/metrics"
	"github.com/fjod/cheeseshop/internal/poller"
	"github.com/fjod/cheeseshop/internal/publisher"
	"github.com/fjod/cheeseshop/internal/repository"
	"github.com/fjod/cheeseshop/internal/service"
	"github.com/fjod/cheeseshop/internal/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Catalog
	if err := os.MkdirAll(filepath.Dir(cfg.CatalogDBPath), 0o755); err != nil {
		logger.Fatal("failed to create catalog directory", zap.Error(err))
	}
	catalogRepo, err := repository.NewCatalogRepository(cfg.CatalogDBPath)
	if err != nil {
		logger.Fatal("failed to open catalog", zap.Error(err))
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		logger.Fatal("failed to run catalog migrations", zap.Error(err))
	}
	logger.Info("catalog ready", zap.String("path", cfg.CatalogDBPath))

	// Purchases
	purchaseRepo, err := repository.NewPurchaseRepository(&cfg.Purchases)
	if err != nil {
		logger.Fatal("failed to connect to purchase database", zap.Error(err))
	}
	defer purchaseRepo.Close()
	if err := purchaseRepo.RunMigrations(&cfg.Purchases); err != nil {
		logger.Fatal("failed to run purchase migrations", zap.Error(err))
	}
	logger.Info("purchase database ready", zap.String("host", cfg.Purchases.Host))

	// Cart snapshots
	var cartStore session.CartStore
	if cfg.MongoURI != "" {
		mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoDB.Client().Disconnect(context.Background())

		store := repository.NewCartStore(mongoDB)
		if err := store.CreateIndexes(ctx); err != nil {
			logger.Fatal("failed to create cart indexes", zap.Error(err))
		}
		cartStore = store
		logger.Info("cart snapshots enabled", zap.String("database", cfg.MongoDBName))
	}

	// Catalog cache
	var catalogCache cache.CatalogCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		catalogCache = cache.NewRedisCache(redisClient)
		logger.Info("catalog cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	sessions, err := session.NewRegistry(cfg.SessionCacheSize, cartStore, logger)
	if err != nil {
		logger.Fatal("failed to create session registry", zap.Error(err))
	}

	ids := identity.UUID{}

	// Purchase events
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	if cfg.KafkaBrokers != "" {
		outbox := publisher.NewOutboxPoller(purchaseRepo, publisher.NewKafkaWriter(cfg.KafkaBrokers), logger)
		defer outbox.Close()
		go outbox.Run(pollCtx)
		logger.Info("purchase events enabled", zap.String("brokers", cfg.KafkaBrokers), zap.String("topic", publisher.PurchaseTopic))
	}

	// Carts checked out on other instances are dropped from this one.
	if cfg.KafkaBrokers != "" && cartStore != nil {
		groupID := "storefront-" + ids.NewID()
		purchasePoller := poller.NewPoller(
			poller.NewKafkaReader(publisher.SplitBrokers(cfg.KafkaBrokers), groupID),
			sessions,
			logger,
		)
		defer purchasePoller.Close()
		go purchasePoller.Run(pollCtx)
		logger.Info("purchase poller started", zap.String("group_id", groupID))
	}

	co := checkout.NewCheckout(
		checkout.NewAssembler(ids),
		purchaseRepo,
		logger,
	)
	storefront := service.NewStorefrontService(catalogRepo, catalogCache, sessions, co, purchaseRepo, logger)

	srvMetrics := metrics.NewServerMetrics(nil, "storefront")
	router := h.NewRouter(h.RouterConfig{
		Handler:        h.NewStorefrontHandler(storefront, srvMetrics, cfg.RequestTimeout, logger),
		Identity:       ids,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodySize:    cfg.MaxRequestBodySize,
		Instrument:     srvMetrics.Middleware,
		Metrics:        metrics.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopPolling()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
