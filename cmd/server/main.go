package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/farmers_market/internal/auth"
	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/catalog"
	"github.com/Skotchmaster/farmers_market/internal/datastore"
	"github.com/Skotchmaster/farmers_market/internal/es"
	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/favorites"
	"github.com/Skotchmaster/farmers_market/internal/httpserver"
	"github.com/Skotchmaster/farmers_market/internal/metrics"
	"github.com/Skotchmaster/farmers_market/internal/mykafka"
	"github.com/Skotchmaster/farmers_market/internal/orders"
	"github.com/Skotchmaster/farmers_market/internal/search"
	"github.com/Skotchmaster/farmers_market/internal/storage"
	"github.com/Skotchmaster/farmers_market/pkg/config"
	pkgdb "github.com/Skotchmaster/farmers_market/pkg/db"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
	"github.com/Skotchmaster/farmers_market/pkg/middleware/csrf"
)

const (
	cartIdleTimeout = 30 * time.Minute
	sweepInterval   = 5 * time.Minute
)

type kvBackend struct {
	kv    storage.KV
	check httpserver.Check
	sweep func(ctx context.Context)
	close func() error
}

func main() {
	cfg := config.Load()
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	config.MustOneOf(cfg.SessionStore, "SESSION_STORE", config.SessionStoreRedis, config.SessionStoreSQL)

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	backend, err := openKV(initCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("session store: %v", err)
	}

	store, err := datastore.New(cfg.DataStoreURL, cfg.DataStoreTimeout)
	if err != nil {
		log.Fatalf("data store: %v", err)
	}

	bus := events.NewBus()
	m := metrics.New("farmers_market")
	bus.Subscribe(m.Observe)

	var (
		producer  *mykafka.Producer
		forwarder *mykafka.Forwarder
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		forwarder = mykafka.NewForwarder(producer, logger, 256)
		forwarder.Start(rootCtx)
		bus.Subscribe(forwarder.Handle)
	} else {
		logger.Info("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
	}

	index := openSearch(rootCtx, cfg, store, logger)

	carts := cart.NewRegistry(backend.kv, bus)
	favs := favorites.NewRegistry(backend.kv, bus)

	var indexer catalog.Indexer
	if index.Enabled() {
		indexer = index
	}
	catalogSvc := catalog.NewService(store, bus, indexer)

	e := httpserver.New(&httpserver.Deps{
		Logger:         logger,
		Metrics:        m,
		AuthHandler:    &httpserver.AuthHTTP{Svc: auth.NewService(store, cfg.JWTSecret, cfg.SessionTTL)},
		CatalogHandler: &httpserver.CatalogHTTP{Svc: catalogSvc, Search: index},
		CartHandler:    &httpserver.CartHTTP{Carts: carts, Favorites: favs, Catalog: catalogSvc},
		OrdersHandler:  &httpserver.OrdersHTTP{Svc: orders.NewService(store, bus), Carts: carts},
		BadgesHandler:  &httpserver.BadgesHTTP{Carts: carts, Favorites: favs, Bus: bus},
		HealthHandler: &httpserver.HealthHTTP{Checks: map[string]httpserver.Check{
			"datastore": store.Ping,
			"sessions":  backend.check,
		}},
		JWTSecret:   cfg.JWTSecret,
		SessionTTL:  cfg.SessionTTL,
		CORSOrigins: cfg.CORSOrigins,
		CSRF:        csrfConfig(cfg),
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: badge streams stay open
	}

	go sweep(rootCtx, logger, carts, backend)

	go func() {
		logger.Info("server_started", "addr", srv.Addr, "session_store", cfg.SessionStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	if forwarder != nil {
		forwarder.Wait()
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka_close_failed", "error", err)
		}
	}
	if err := backend.close(); err != nil {
		logger.Error("session_store_close_failed", "error", err)
	}

	logger.Info("shutdown_complete")
}

func openKV(ctx context.Context, cfg config.Config) (*kvBackend, error) {
	if cfg.SessionStore == config.SessionStoreRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return &kvBackend{
			kv:    storage.NewRedisKV(rdb, cfg.SessionTTL),
			check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			sweep: func(context.Context) {},
			close: rdb.Close,
		}, nil
	}

	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	kv, err := storage.NewGormKV(ctx, db, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	return &kvBackend{
		kv:    kv,
		check: func(ctx context.Context) error { return pingDB(ctx, db) },
		sweep: func(ctx context.Context) {
			n, err := kv.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("session_purge_failed", "error", err)
				return
			}
			if n > 0 {
				slog.Info("session_purge", "removed", n)
			}
		},
		close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}, nil
}

func csrfConfig(cfg config.Config) *csrf.Config {
	if !cfg.CSRFEnabled {
		return nil
	}
	c := csrf.DefaultConfig()
	c.Secure = cfg.CookieSecure
	return &c
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// openSearch returns a disabled index when ES_URL is unset or unreachable.
func openSearch(ctx context.Context, cfg config.Config, store *datastore.Client, logger *slog.Logger) *search.Index {
	if cfg.ESURL == "" {
		logger.Info("search_disabled", "reason", "ES_URL is empty")
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := es.NewClient(initCtx, es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword}, logger)
	if err != nil {
		logger.Warn("search_disabled", "reason", "elasticsearch unavailable", "error", err)
		return nil
	}
	index := search.New(client, cfg.ESIndex)

	products, err := store.ListProducts(initCtx)
	if err != nil {
		logger.Warn("search_reindex_failed", "error", err)
		return index
	}
	if err := index.Reindex(initCtx, products); err != nil {
		logger.Warn("search_reindex_failed", "error", err)
		return index
	}
	logger.Info("search_reindexed", "products", len(products))
	return index
}

func sweep(ctx context.Context, logger *slog.Logger, carts *cart.Registry, backend *kvBackend) {
	backend.sweep(ctx)

	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := carts.Evict(cartIdleTimeout); n > 0 {
				logger.Debug("carts_evicted", "count", n, "resident", carts.Len())
			}
			backend.sweep(ctx)
		}
	}
}
