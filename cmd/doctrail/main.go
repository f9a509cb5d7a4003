package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/doctrail/doctrail/internal/ai"
	"github.com/doctrail/doctrail/internal/config"
	"github.com/doctrail/doctrail/internal/embedcache"
	"github.com/doctrail/doctrail/internal/embedder"
	"github.com/doctrail/doctrail/internal/extractor"
	"github.com/doctrail/doctrail/internal/filestore"
	"github.com/doctrail/doctrail/internal/handler"
	"github.com/doctrail/doctrail/internal/job"
	"github.com/doctrail/doctrail/internal/middleware"
	"github.com/doctrail/doctrail/internal/queue"
	"github.com/doctrail/doctrail/internal/repo"
	"github.com/doctrail/doctrail/internal/schedule"
	"github.com/doctrail/doctrail/internal/service"
)

const embedLRUSize = 1024

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "doctrail",
		Short: "tenant-scoped document retrieval with an auditable answer trail",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "run the api server and maintenance jobs",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(configPath, runServer)
			},
		},
		&cobra.Command{
			Use:   "extract",
			Short: "run the extraction worker",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(configPath, runExtractWorker)
			},
		},
		&cobra.Command{
			Use:   "embed",
			Short: "run the chunking and embedding worker",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(configPath, runEmbedWorker)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

type runtime struct {
	cfg   *config.Config
	db    *sql.DB
	store filestore.Store
	tasks queue.Queue
}

func run(configPath string, fn func(ctx context.Context, rt *runtime) error) error {
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := repo.ApplyMigrations(db, cfg.DB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	tasks, err := queue.New(cfg.Queue)
	if err != nil {
		return fmt.Errorf("init task queue: %w", err)
	}
	defer tasks.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, &runtime{cfg: cfg, db: db, store: store, tasks: tasks})
}

func buildEmbedder(rt *runtime) (ai.Embedder, error) {
	provider, err := ai.NewEmbedProvider(rt.cfg.AI.Provider, rt.cfg.AI.Data)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	emb := ai.NewEmbedder(provider, rt.cfg.AI.EmbedModel)
	emb = embedcache.WrapDBCache(emb, repo.NewEmbeddingCacheRepo(rt.db))
	emb = embedcache.WrapLRUCache(emb, embedLRUSize, time.Hour)
	return emb, nil
}

func runServer(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	logutil.GetLogger(ctx).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("queue", cfg.Queue.Type))

	docRepo := repo.NewDocumentRepo(rt.db)
	chunkRepo := repo.NewChunkRepo(rt.db)
	messageRepo := repo.NewMessageRepo(rt.db)
	tokenRepo := repo.NewTokenRepo(rt.db)
	linkRepo := repo.NewChunkMessageRepo(rt.db)
	cacheRepo := repo.NewEmbeddingCacheRepo(rt.db)

	emb, err := buildEmbedder(rt)
	if err != nil {
		return err
	}
	genProvider, err := ai.NewGenProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return fmt.Errorf("init generation provider: %w", err)
	}
	gen := ai.NewGenerator(genProvider, cfg.AI.GenerateModel, ai.GenerateOptions{
		Temperature: cfg.Search.Temperature,
		MaxTokens:   cfg.Search.MaxTokens,
	})

	ingestService := service.NewIngestService(docRepo, rt.store, rt.tasks, cfg.Queue.ExtractSubject, cfg.Extractor.MaxFileSizeMB)
	documentService := service.NewDocumentService(docRepo, chunkRepo, rt.store)
	queryService := service.NewQueryService(cfg.Search, messageRepo, tokenRepo, linkRepo, chunkRepo, emb, gen)

	deps := handler.RouterDeps{
		Upload:      handler.NewUploadHandler(ingestService),
		Documents:   handler.NewDocumentHandler(documentService),
		Queries:     handler.NewQueryHandler(queryService),
		WriteWindow: 100 * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Embedding.CacheTTLDays), "0 3 * * *"); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewStagingCleanupJob(docRepo, rt.store, 24*time.Hour), "30 3 * * *"); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(ctx).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	return nil
}

func runExtractWorker(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	docRepo := repo.NewDocumentRepo(rt.db)
	worker := extractor.NewWorker(cfg.Extractor, docRepo, rt.store, rt.tasks, cfg.Queue.EmbedSubject)

	logutil.GetLogger(ctx).Info("starting extraction worker",
		zap.String("subject", cfg.Queue.ExtractSubject),
		zap.Int("workers", cfg.Extractor.Workers))
	if err := rt.tasks.Subscribe(ctx, cfg.Queue.ExtractSubject, "extract-worker", cfg.Extractor.Workers, worker.Handle); err != nil {
		return fmt.Errorf("subscribe extraction queue: %w", err)
	}
	<-ctx.Done()
	logutil.GetLogger(ctx).Info("extraction worker stopping...")
	return nil
}

func runEmbedWorker(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	docRepo := repo.NewDocumentRepo(rt.db)
	chunkRepo := repo.NewChunkRepo(rt.db)

	emb, err := buildEmbedder(rt)
	if err != nil {
		return err
	}
	worker := embedder.NewWorker(cfg.Embedding, docRepo, chunkRepo, rt.store, emb, embedder.SystemMemory())

	logutil.GetLogger(ctx).Info("starting embedding worker",
		zap.String("subject", cfg.Queue.EmbedSubject),
		zap.Int("workers", cfg.Embedding.Workers))
	if err := rt.tasks.Subscribe(ctx, cfg.Queue.EmbedSubject, "embed-worker", cfg.Embedding.Workers, worker.Handle); err != nil {
		return fmt.Errorf("subscribe embedding queue: %w", err)
	}
	<-ctx.Done()
	logutil.GetLogger(ctx).Info("embedding worker stopping...")
	return nil
}
