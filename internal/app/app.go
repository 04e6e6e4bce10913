// Package app assembles the harvester's collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/ai"
	"github.com/joblens/harvester/internal/api"
	gcsarchive "github.com/joblens/harvester/internal/archive/gcs"
	memoryarchive "github.com/joblens/harvester/internal/archive/memory"
	nooparchive "github.com/joblens/harvester/internal/archive/noop"
	"github.com/joblens/harvester/internal/clock/system"
	"github.com/joblens/harvester/internal/config"
	"github.com/joblens/harvester/internal/extract"
	"github.com/joblens/harvester/internal/fetch"
	"github.com/joblens/harvester/internal/harvest"
	"github.com/joblens/harvester/internal/logging"
	"github.com/joblens/harvester/internal/metrics"
	"github.com/joblens/harvester/internal/pipeline"
	memorypublish "github.com/joblens/harvester/internal/publish/memory"
	nooppublish "github.com/joblens/harvester/internal/publish/noop"
	pubsubpublish "github.com/joblens/harvester/internal/publish/pubsub"
	"github.com/joblens/harvester/internal/quality"
	"github.com/joblens/harvester/internal/ratelimit"
	"github.com/joblens/harvester/internal/render"
	"github.com/joblens/harvester/internal/robots"
	"github.com/joblens/harvester/internal/schedule"
	memorystore "github.com/joblens/harvester/internal/storage/memory"
	"github.com/joblens/harvester/internal/storage/postgres"
)

// App holds every wired service for the lifetime of the process.
type App struct {
	Cfg       config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Store     harvest.Store
	Scheduler *schedule.Scheduler
	Server    *api.Server

	closers []func()
}

// New loads configuration and wires the full service graph.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Cfg: cfg, Logger: logger, Metrics: metrics.New()}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	store, err := a.setupStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	blobs, err := a.setupArchive(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	guesser, err := a.setupGuesser(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	renderer, err := a.setupRenderer()
	if err != nil {
		a.Close()
		return nil, err
	}

	clock := system.Clock{}
	limiter := ratelimit.New(ratelimit.Config{
		Capacity:    cfg.Crawler.PerHostMax,
		MinInterval: time.Duration(cfg.Crawler.MinIntervalMs) * time.Millisecond,
	})
	fetcher := fetch.New(fetch.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Contact:      cfg.Crawler.Contact,
		Timeout:      cfg.HTTPTimeout(),
		MaxRetries:   cfg.HTTP.MaxRetries,
		BackoffBase:  time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:   time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		MaxPageBytes: cfg.Crawler.MaxPageBytes,
	}, limiter, a.Metrics, logger)
	robotsPolicy := robots.New(cfg.Crawler.UserAgent, cfg.RobotsTTL(), logger)
	extractor := extract.New(guesser, logger)
	validator := quality.New(clock)

	pipe := pipeline.New(fetcher, robotsPolicy, extractor, validator,
		store, blobs, renderer, clock, a.Metrics, logger)

	a.Scheduler = schedule.New(schedule.Config{
		TickSpec:   cfg.Scheduler.TickSpec,
		Workers:    cfg.Scheduler.Workers,
		ClaimLimit: cfg.Scheduler.ClaimLimit,
	}, store, pipe, publisher, clock, a.Metrics, logger)

	a.Server = api.New(cfg.Server.Port, store, a.Metrics, logger)

	return a, nil
}

// Close shuts down wired services in reverse wiring order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) setupStore(ctx context.Context) (harvest.Store, error) {
	if a.Cfg.DB.DSN == "" {
		a.Logger.Warn("no db.dsn configured, using in-memory store")
		return memorystore.New(), nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      a.Cfg.DB.DSN,
		MaxConns: a.Cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.Logger.Info("using postgres store")
	return store, nil
}

func (a *App) setupArchive(ctx context.Context) (harvest.BlobStore, error) {
	switch a.Cfg.Archive.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.Logger.Warn("gcs client close failed", zap.Error(cerr))
			}
		})
		blobs, err := gcsarchive.New(client, gcsarchive.Config{
			Bucket: a.Cfg.Archive.GCSBucket,
			Prefix: a.Cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.Logger.Info("using GCS archive backend",
			zap.String("bucket", a.Cfg.Archive.GCSBucket))
		return blobs, nil
	case "memory":
		return memoryarchive.NewBlobStore(), nil
	default:
		return nooparchive.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (harvest.Publisher, error) {
	switch a.Cfg.Publish.Provider {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.Cfg.Publish.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.Logger.Warn("pubsub client close failed", zap.Error(cerr))
			}
		})
		topic := client.Topic(a.Cfg.Publish.TopicName)
		a.closers = append(a.closers, topic.Stop)
		a.Logger.Info("using Pub/Sub outcome publisher",
			zap.String("topic", a.Cfg.Publish.TopicName))
		return pubsubpublish.New(topic), nil
	case "memory":
		return memorypublish.New(), nil
	default:
		return nooppublish.New(), nil
	}
}

func (a *App) setupGuesser(ctx context.Context) (harvest.FieldGuesser, error) {
	if !a.Cfg.AI.Enabled {
		return nil, nil
	}
	guesser, err := ai.New(ctx, a.Cfg.AI.APIKey, a.Cfg.AI.Model, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("ai guesser init failed: %w", err)
	}
	a.closers = append(a.closers, func() {
		if cerr := guesser.Close(); cerr != nil {
			a.Logger.Warn("ai guesser close failed", zap.Error(cerr))
		}
	})
	a.Logger.Info("AI extraction fallback enabled", zap.String("model", a.Cfg.AI.Model))
	return guesser, nil
}

func (a *App) setupRenderer() (harvest.Renderer, error) {
	if !a.Cfg.Render.Enabled {
		return render.NewNoop(), nil
	}
	chrome, err := render.NewChrome(render.Config{
		UserAgent:  a.Cfg.Crawler.UserAgent,
		NavTimeout: time.Duration(a.Cfg.Render.NavTimeoutSec) * time.Second,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("renderer init failed: %w", err)
	}
	a.closers = append(a.closers, func() {
		if cerr := chrome.Close(); cerr != nil {
			a.Logger.Warn("renderer close failed", zap.Error(cerr))
		}
	})
	a.Logger.Info("JS rendering enabled")
	return chrome, nil
}
