package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	"github.com/papervault/papervault-backend/internal/clients/openai"
	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	"github.com/papervault/papervault-backend/internal/data/db"
	"github.com/papervault/papervault-backend/internal/data/repos/entities"
	filerepos "github.com/papervault/papervault-backend/internal/data/repos/files"
	importrepos "github.com/papervault/papervault-backend/internal/data/repos/imports"
	jobrepos "github.com/papervault/papervault-backend/internal/data/repos/jobs"
	"github.com/papervault/papervault-backend/internal/data/repos/merchants"
	tagrepos "github.com/papervault/papervault-backend/internal/data/repos/tags"
	"github.com/papervault/papervault-backend/internal/extraction"
	"github.com/papervault/papervault-backend/internal/ingestion/dedup"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	"github.com/papervault/papervault-backend/internal/jobs/pipeline/document_process"
	"github.com/papervault/papervault-backend/internal/jobs/pipeline/receipt_process"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/jobs/stages"
	"github.com/papervault/papervault-backend/internal/jobs/worker"
	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
	"github.com/papervault/papervault-backend/internal/services"
	"github.com/papervault/papervault-backend/internal/temporalx"
	"github.com/papervault/papervault-backend/internal/temporalx/temporalworker"
)

func main() {
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	fileRepo := filerepos.NewFileRepo(thePG, log)
	receiptRepo := entities.NewReceiptRepo(thePG, log)
	documentRepo := entities.NewDocumentRepo(thePG, log)
	linkRepo := entities.NewExtractionLinkRepo(thePG, log)
	entityRegistry := entities.NewRegistry(thePG, log)
	tagRepo := tagrepos.NewTagRepo(thePG, log)
	importRepo := importrepos.NewImportSourceRepo(thePG, log)
	merchantRepo := merchants.NewMerchantRepo(thePG, log)
	jobRepo := jobrepos.NewJobRunRepo(thePG, log)
	historyRepo := jobrepos.NewStageHistoryRepo(thePG, log)

	// Clients
	log.Info("Setting up clients...")
	blobStore, err := gcp.NewBlobStore(log)
	if err != nil {
		log.Error("Could not init blob store", "error", err)
		os.Exit(1)
	}
	defer blobStore.Close()
	analyzer, err := gcp.NewAnalyzer(log)
	if err != nil {
		log.Error("Could not init OCR analyzer", "error", err)
		os.Exit(1)
	}
	llm, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	metadata, err := redisclient.NewJobMetadataStore(log)
	if err != nil {
		log.Error("Could not init job metadata store", "error", err)
		os.Exit(1)
	}
	notifier, err := redisclient.NewJobNotifier(log)
	if err != nil {
		log.Warn("Job notifier disabled", "error", err)
		notifier = nil
	} else {
		defer notifier.Close()
	}

	// Temporal is optional; without it the polling worker drives chains.
	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Temporal init failed", "error", err)
		os.Exit(1)
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	// Services
	log.Info("Setting up services...")
	extractor := extraction.NewExtractor(llm, log)
	search := services.NewLoggingSearchIndex(log)
	cleanup := services.NewEntityCleanupService(thePG, log, entityRegistry, linkRepo, search)
	matcher := services.NewMerchantMatcher(thePG, log, merchantRepo)
	dispatcher := services.NewChainDispatcher(thePG, log, jobRepo, metadata, notifier, temporalClient)
	checker := dedup.NewChecker(fileRepo, linkRepo, entityRegistry, log)
	uploadService := services.NewUploadService(thePG, log, fileRepo, blobStore, checker, dispatcher)
	reprocessService := services.NewReprocessService(thePG, log, fileRepo, blobStore, cleanup, dispatcher)

	// The transport layer consuming these lives in a separate deployment.
	_ = uploadService
	_ = reprocessService

	// Pipelines
	deps := stages.Deps{
		DB:        thePG,
		Log:       log,
		Files:     fileRepo,
		Receipts:  receiptRepo,
		Documents: documentRepo,
		Links:     linkRepo,
		Tags:      tagRepo,
		Imports:   importRepo,
		Blob:      blobStore,
		Analyzer:  analyzer,
		Extractor: extractor,
		Metadata:  metadata,
		Matcher:   matcher,
		Cleanup:   cleanup,
		Search:    search,
	}
	engine := orchestrator.NewEngine(historyRepo, log)
	registry := jobrt.NewRegistry()
	for _, h := range []jobrt.Handler{
		receipt_process.New(deps, engine, log),
		document_process.New(deps, engine, log),
	} {
		if err := registry.Register(h); err != nil {
			log.Error("Handler registration failed", "job_type", h.Type(), "error", err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if temporalClient != nil {
		runner, err := temporalworker.NewRunner(log, temporalClient, thePG, jobRepo, registry, notifier)
		if err != nil {
			log.Error("Temporal worker init failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return runner.Start(gctx) })
	} else {
		worker.NewWorker(thePG, log, jobRepo, registry, notifier).Start(gctx)
	}

	log.Info("papervault worker up")
	if err := g.Wait(); err != nil {
		log.Error("Worker supervisor exited", "error", err)
	}
	<-ctx.Done()
	log.Info("Shutting down")
}
