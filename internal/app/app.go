// Package app initializes and holds the long-lived services of the
// extraction service, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/api"
	"github.com/pagelens/pagelens/internal/clock/system"
	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/fetcher"
	collyfetcher "github.com/pagelens/pagelens/internal/fetcher/colly"
	headlessfetcher "github.com/pagelens/pagelens/internal/fetcher/headless"
	"github.com/pagelens/pagelens/internal/id/uuid"
	"github.com/pagelens/pagelens/internal/llm"
	"github.com/pagelens/pagelens/internal/logging"
	"github.com/pagelens/pagelens/internal/markdown"
	"github.com/pagelens/pagelens/internal/metrics"
	"github.com/pagelens/pagelens/internal/pipeline"
	"github.com/pagelens/pagelens/internal/publisher"
	pubmemory "github.com/pagelens/pagelens/internal/publisher/memory"
	pubsubpublisher "github.com/pagelens/pagelens/internal/publisher/pubsub"
	"github.com/pagelens/pagelens/internal/storage"
	gcsstorage "github.com/pagelens/pagelens/internal/storage/gcs"
	localstorage "github.com/pagelens/pagelens/internal/storage/local"
	storagememory "github.com/pagelens/pagelens/internal/storage/memory"
	"github.com/pagelens/pagelens/internal/store"
	storememory "github.com/pagelens/pagelens/internal/store/memory"
	"github.com/pagelens/pagelens/internal/store/postgres"
)

// App holds the shared, long-lived services of the extraction service. It is
// initialized once at startup and torn down via Close.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Pipeline *pipeline.Pipeline
	Server   *api.Server

	taskStore    store.TaskStore
	pgStore      *postgres.TaskStore
	gcsClient    *gstorage.Client
	pubsubClient *gpubsub.Client
	headless     *headlessfetcher.Fetcher
}

// New builds the full service graph from configuration. It fails fast when
// any critical dependency cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{Config: cfg, Logger: logger}

	registry, err := extract.NewProviderRegistry(cfg.ExtractProviders())
	if err != nil {
		a.Close()
		return nil, err
	}
	catalog, err := extract.NewPromptCatalog(cfg.ExtractModes())
	if err != nil {
		a.Close()
		return nil, err
	}
	completers, err := llm.BuildCompleters(registry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build provider clients: %w", err)
	}

	clock := system.New()
	engineCfg, policy := cfg.EngineSettings()
	engine := extract.NewEngine(completers, policy, engineCfg, clock, logging.Component(logger, "engine"))

	pageFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		IgnoreRobots: cfg.Crawler.IgnoreRobots,
		Timeout:      cfg.CrawlTimeout(),
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	})
	headlessFetcher := a.buildHeadless()

	taskStore, err := a.buildTaskStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.taskStore = taskStore

	blobStore, err := a.buildBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	pub, err := a.buildPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Pipeline = pipeline.New(
		pageFetcher,
		headlessFetcher,
		markdown.New(),
		extract.NewBuilder(registry, catalog),
		engine,
		taskStore,
		blobStore,
		pub,
		uuid.New(),
		clock,
		pipeline.Config{
			BlobPrefix:  cfg.Storage.Prefix,
			ContentType: cfg.Storage.ContentType,
			Topic:       cfg.Publisher.TopicName,
		},
		logging.Component(logger, "pipeline"),
	)

	a.Server = api.NewServer(
		a.Pipeline,
		taskStore,
		blobStore,
		registry,
		catalog,
		cfg,
		logging.Component(logger, "api"),
	)
	return a, nil
}

// buildHeadless returns nil when headless rendering is disabled or cannot
// start; the pipeline then skips the fallback.
func (a *App) buildHeadless() fetcher.Fetcher {
	if !a.Config.Headless.Enabled {
		return nil
	}
	headlessFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.Config.Headless.MaxParallel,
		UserAgent:         a.Config.Crawler.UserAgent,
		NavigationTimeout: a.Config.HeadlessNavTimeout(),
	})
	if err != nil {
		a.Logger.Warn("headless fetcher init failed", zap.Error(err))
		return nil
	}
	a.headless = headlessFetcher
	return headlessFetcher
}

func (a *App) buildTaskStore(ctx context.Context) (store.TaskStore, error) {
	if a.Config.DB.DSN == "" {
		a.Logger.Info("db.dsn not set, using in-memory task store")
		return storememory.NewTaskStore(), nil
	}
	pgStore, err := postgres.NewTaskStore(ctx, postgres.TaskStoreConfig{
		DSN:      a.Config.DB.DSN,
		MaxConns: a.Config.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pgStore = pgStore
	if err := pgStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	a.Logger.Info("postgres task store ready")
	return pgStore, nil
}

func (a *App) buildBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.Config.Storage.Backend {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.gcsClient = client
		a.Logger.Info("using GCS blob store", zap.String("bucket", a.Config.Storage.GCSBucket))
		return gcsstorage.New(client, gcsstorage.Config{Bucket: a.Config.Storage.GCSBucket})
	case "local":
		a.Logger.Info("using local blob store", zap.String("dir", a.Config.Storage.LocalDir))
		return localstorage.New(localstorage.Config{BaseDir: a.Config.Storage.LocalDir})
	case "memory":
		a.Logger.Info("using in-memory blob store, artifacts will not survive restarts")
		return storagememory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.Config.Storage.Backend)
	}
}

func (a *App) buildPublisher(ctx context.Context) (publisher.Publisher, error) {
	if !a.Config.Publisher.Enabled {
		return pubmemory.New(), nil
	}
	client, err := gpubsub.NewClient(ctx, a.Config.Publisher.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsubClient = client
	a.Logger.Info("pubsub publisher ready", zap.String("topic", a.Config.Publisher.TopicName))
	return pubsubpublisher.New(client.Topic(a.Config.Publisher.TopicName)), nil
}

// Close releases all held resources. Safe to call on a partially built App.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("close storage client", zap.Error(err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("close pubsub client", zap.Error(err))
		}
	}
}
