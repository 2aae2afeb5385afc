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
	"time"

	"github.com/olivere/elastic/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "torrentstream/catalog/internal/api/http"
	"torrentstream/catalog/internal/app"
	"torrentstream/catalog/internal/logger"
	"torrentstream/catalog/internal/metrics"
	"torrentstream/catalog/internal/repository/document"
	"torrentstream/catalog/internal/repository/elasticsearch"
	mongorepo "torrentstream/catalog/internal/repository/mongo"
	"torrentstream/catalog/internal/repository/sqlite"
	"torrentstream/catalog/internal/search"
	"torrentstream/catalog/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	syncIndex := flag.Bool("sync", false, "copy the relational catalog into the document backend before serving")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)
	defer log.Close()

	if err := run(cfg, *syncIndex, log); err != nil {
		log.Error().Err(err).Msg("catalog stopped with error")
		log.Close()
		os.Exit(1)
	}
}

// closers run in reverse registration order on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c *closers) run() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i]()
	}
}

func run(cfg app.Config, syncIndex bool, log *logger.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, tracing, err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("backend", cfg.Search.Backend).
		Bool("documentTermsOnly", cfg.Search.DocumentTermsOnly).
		Str("sqlitePath", cfg.SQLite.Path).
		Bool("hasRedis", cfg.Redis.URL != "").
		Bool("tracing", tracing).
		Dur("countCacheDuration", cfg.Search.CountCacheDuration).
		Msg("configuration loaded")

	var cleanup closers
	defer cleanup.run()

	db, err := sqlite.Open(rootCtx, cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	cleanup.add(func() { _ = db.Close() })
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	store := sqlite.NewStore(db)

	primary, index, err := openBackend(rootCtx, cfg, db, &cleanup)
	if err != nil {
		return err
	}
	cacheOpts := []search.CountCacheOption{search.WithComputeTimeout(cfg.Search.BackendTimeout)}
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		cleanup.add(func() { _ = client.Close() })
		remote := search.NewRedisCountBackend(client)
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		if err := remote.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, counts fall back to the local cache")
		}
		cancel()
		cacheOpts = append(cacheOpts, search.WithRemoteTier(remote))
	}
	countCache := search.NewCountCache(cfg.Search.CountCacheDuration, cfg.Search.CountCacheSize, cacheOpts...)

	if syncIndex {
		if index == nil {
			return fmt.Errorf("-sync needs a document backend, got %q", cfg.Search.Backend)
		}
		if err := syncDocuments(rootCtx, store, index, countCache, log); err != nil {
			return fmt.Errorf("sync %s: %w", cfg.Search.Backend, err)
		}
	}

	serviceOpts := []search.ServiceOption{
		search.WithCountCache(countCache),
		search.WithBackendTimeout(cfg.Search.BackendTimeout),
		search.WithLogger(log.WithComponent("search")),
	}
	if cfg.Search.DocumentTermsOnly {
		serviceOpts = append(serviceOpts, search.WithBrowseExecutor(sqlite.NewRelational(db)))
	}
	searchService := search.NewService(store, primary, cfg.Search.Planner(), serviceOpts...)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(log.WithComponent("http")),
		apihttp.WithFeed(apihttp.FeedConfig{
			Title:    cfg.Feed.Title,
			BaseURL:  cfg.Feed.BaseURL,
			Trackers: cfg.Feed.Trackers,
		}),
	).Handler()
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.Server.Addr).Str("backend", searchService.Backend()).Msg("torrent catalog started")

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("torrent catalog stopped")
	return nil
}

// syncDocuments drops purged torrents from the document index, copies the
// catalog into it, and then forgets every cached count. Pruning runs first so
// a reused id is indexed again by the copy.
func syncDocuments(ctx context.Context, store *sqlite.Store, index document.Index, counts *search.CountCache, log *logger.Logger) error {
	started := time.Now()
	removed, err := document.Prune(ctx, store, index, 0)
	if err != nil {
		return err
	}
	written, err := document.Sync(ctx, store, index, 0)
	if err != nil {
		return err
	}
	if err := counts.Reset(ctx); err != nil {
		log.Warn().Err(err).Msg("count cache reset failed, shared counts expire on their own")
	}
	log.Info().Int("documents", written).Int("removed", removed).Dur("took", time.Since(started)).Msg("document index synced")
	return nil
}

// openBackend builds the executor for search.backend. Document backends also
// return the index that -sync fills and prunes.
func openBackend(ctx context.Context, cfg app.Config, db *sqlite.DB, cleanup *closers) (search.Executor, document.Index, error) {
	switch cfg.Search.Backend {
	case app.BackendRelational:
		return sqlite.NewRelational(db), nil, nil

	case app.BackendPrepared:
		prepared := sqlite.NewPrepared(db, cfg.SQLite.PreparedShapes)
		cleanup.add(func() { _ = prepared.Close() })
		return prepared, nil, nil

	case app.BackendElastic:
		client, err := elasticsearch.Connect(elasticsearch.Config{
			URLs:  cfg.Elastic.URLs,
			Index: cfg.Elastic.Index,
			Sniff: cfg.Elastic.Sniff,
		}, elastic.SetHttpClient(&http.Client{
			Timeout:   cfg.Search.BackendTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}))
		if err != nil {
			return nil, nil, fmt.Errorf("connect elasticsearch: %w", err)
		}
		cleanup.add(client.Stop)
		indexer := elasticsearch.NewIndexer(client, cfg.Elastic.Index, false)
		if err := indexer.EnsureIndex(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure elasticsearch index: %w", err)
		}
		return elasticsearch.NewExecutor(client, cfg.Elastic.Index), indexer, nil

	case app.BackendMongo:
		client, err := mongorepo.Connect(ctx, cfg.Mongo.URI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		cleanup.add(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		exec := mongorepo.NewExecutor(client, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err := exec.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return exec, exec, nil

	default:
		return nil, nil, fmt.Errorf("unknown search backend %q", cfg.Search.Backend)
	}
}
