// Command wayback runs the snapshot, diff, and report pipeline as one
// service: HTTP API, queue consumer, and workflow engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/analyzer/openai"
	"github.com/wizenheimer/wayback/internal/api"
	"github.com/wizenheimer/wayback/internal/clock/system"
	"github.com/wizenheimer/wayback/internal/config"
	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/diff"
	"github.com/wizenheimer/wayback/internal/id/uuid"
	"github.com/wizenheimer/wayback/internal/logging"
	"github.com/wizenheimer/wayback/internal/notify/resend"
	queuememory "github.com/wizenheimer/wayback/internal/queue/memory"
	queuepubsub "github.com/wizenheimer/wayback/internal/queue/pubsub"
	"github.com/wizenheimer/wayback/internal/report"
	"github.com/wizenheimer/wayback/internal/scheduler"
	"github.com/wizenheimer/wayback/internal/snapshot"
	"github.com/wizenheimer/wayback/internal/storage/gcs"
	storagememory "github.com/wizenheimer/wayback/internal/storage/memory"
	storememory "github.com/wizenheimer/wayback/internal/store/memory"
	"github.com/wizenheimer/wayback/internal/store/postgres"
	"github.com/wizenheimer/wayback/internal/workflow"
)

const memoryQueueDepth = 1024

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	ids := uuid.New()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	diffStore, competitorStore, workflowStore, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	queue, err := buildQueue(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}

	analyzer, err := openai.New(openai.Config{
		APIKey:  cfg.Analyzer.APIKey,
		Model:   cfg.Analyzer.Model,
		BaseURL: cfg.Analyzer.BaseURL,
		Timeout: cfg.AnalyzerTimeout(),
	}, logger.Named("analyzer"))
	if err != nil {
		return fmt.Errorf("build analyzer: %w", err)
	}

	capturer := snapshot.NewService(snapshot.Config{
		APIKey: cfg.Capture.APIKey,
		Origin: cfg.Capture.Origin,
	}, nil, blobs, clock, logger.Named("capture"))

	diffSvc := diff.NewService(capturer, diffStore, analyzer, clock, logger.Named("diff"))
	aggregator := report.NewAggregator(diffStore, analyzer, clock, logger.Named("report"))
	notifier := resend.New(resend.Config{
		APIKey:    cfg.Email.APIKey,
		FromEmail: cfg.Email.FromEmail,
	}, nil, logger.Named("notify"))

	engine := workflow.NewEngine(
		workflowStore,
		clock,
		ids,
		workflow.NewSnapshotDiffWorkflow(capturer, diffSvc, logger.Named("workflow")),
		workflow.NewCompetitorReportWorkflow(competitorStore, aggregator, notifier, logger.Named("workflow")),
		logger.Named("engine"),
	)

	sched := scheduler.New(competitorStore, queue, clock, scheduler.Config{
		PageSize:  cfg.Scheduler.PageSize,
		BaseDelay: cfg.SchedulerBaseDelay(),
	}, logger.Named("scheduler"))

	consumer := scheduler.NewConsumer(queue, engine, logger.Named("consumer"))
	go consumer.Run(ctx)

	server := api.NewServer(engine, capturer, diffSvc, aggregator, sched, logger.Named("api"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (core.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("build gcs blob store: %w", err)
		}
		return blobs, nil
	default:
		return storagememory.NewBlobStore(), nil
	}
}

func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (core.DiffStore, core.CompetitorStore, core.WorkflowStore, func(), error) {
	if cfg.DB.DSN == "" {
		return storememory.NewDiffStore(), storememory.NewCompetitorStore(), storememory.NewWorkflowStore(), func() {}, nil
	}

	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxOpenConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMinute) * time.Minute,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	diffStore := postgres.NewDiffStoreWithPool(pool, logger.Named("store"))
	if err := diffStore.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	workflowStore := postgres.NewWorkflowStoreWithPool(pool, logger.Named("store"))
	if err := workflowStore.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	competitorStore := postgres.NewCompetitorStoreWithPool(pool, logger.Named("store"))

	return diffStore, competitorStore, workflowStore, pool.Close, nil
}

func buildQueue(ctx context.Context, cfg config.Config, clock core.Clock, logger *zap.Logger) (core.Queue, error) {
	switch cfg.Queue.Provider {
	case "pubsub":
		queue, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:    cfg.Queue.ProjectID,
			TopicID:      cfg.Queue.TopicID,
			Subscription: cfg.Queue.Subscription,
		}, clock, logger.Named("queue"))
		if err != nil {
			return nil, fmt.Errorf("build pubsub queue: %w", err)
		}
		return queue, nil
	default:
		return queuememory.New(memoryQueueDepth), nil
	}
}
