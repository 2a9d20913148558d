package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/cartstore/internal/catalog"
	"github.com/fjod/cartstore/internal/config"
	carthttp "github.com/fjod/cartstore/internal/http"
	"github.com/fjod/cartstore/internal/metrics"
	"github.com/fjod/cartstore/internal/poller"
	"github.com/fjod/cartstore/internal/service"
	"github.com/fjod/cartstore/internal/storage"
	"github.com/fjod/cartstore/pkg/circuitbreaker"
	"github.com/fjod/cartstore/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "cartd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "cartd stopped with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cartMetrics := metrics.NewCartMetrics(reg)

	st, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	cat, err := catalog.Open(cfg.Catalog.Driver, cfg.Catalog.DSN)
	if err != nil {
		return err
	}
	defer cat.Close()

	if cfg.Catalog.SeedFile != "" {
		products, err := catalog.LoadSeedFile(cfg.Catalog.SeedFile)
		if err != nil {
			return err
		}
		if err := cat.Seed(ctx, products); err != nil {
			return err
		}
		log.Info(ctx, fmt.Sprintf("seeded %d products", len(products)))
	}

	carts := service.NewCartService(cat, st, log, service.Config{
		IdleTTL:         cfg.Session.IdleTTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		Currency:        cfg.Session.Currency,
		Metrics:         cartMetrics,
	})
	defer carts.Close()

	if cfg.Kafka.Enabled() {
		p := poller.NewPoller(carts, log, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Brokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Info(ctx, "checkout consumer started on topic "+cfg.Kafka.Topic)
	}

	router := carthttp.NewRouter(
		carthttp.NewCartHandler(carts, log, 10*time.Second),
		carthttp.NewProductHandler(cat, log, 10*time.Second),
		log,
		carthttp.RouterConfig{Gatherer: reg},
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "cartd listening on :"+cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down cartd")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info(context.Background(), "cartd stopped")
	return nil
}

// openStorage builds the configured backend. The returned func releases it.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Storage, func(), error) {
	var (
		st     storage.Storage
		closer io.Closer
		remote bool
	)

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		st = storage.NewMemoryStorage()
	case config.BackendBolt:
		bolt, err := storage.OpenBolt(cfg.Storage.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		st, closer = bolt, bolt
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		st, closer, remote = storage.NewRedisStorage(client, cfg.Redis.TTL), client, true
	case config.BackendMongo:
		db, err := storage.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		mongoStorage := storage.NewMongoStorage(db)
		if err := mongoStorage.CreateIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, nil, err
		}
		st, remote = mongoStorage, true
		closer = closerFunc(func() error { return db.Client().Disconnect(context.Background()) })
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
	log.Info(ctx, "cart storage: "+cfg.Storage.Backend)

	if remote && cfg.Storage.Breaker {
		breakerCfg := circuitbreaker.DefaultConfig("cart-storage")
		breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), fmt.Sprintf("circuit breaker %s: %s -> %s", name, from, to), nil)
		}
		st = storage.WithBreaker(st, breakerCfg)
	}

	return st, func() {
		if closer == nil {
			return
		}
		if err := closer.Close(); err != nil {
			log.Error(context.Background(), "failed to close cart storage", err)
		}
	}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
