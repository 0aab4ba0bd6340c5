package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/extraction"
	"github.com/papervault/papervault-backend/internal/ingestion/dedup"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	"github.com/papervault/papervault-backend/internal/jobs/pipeline/document_process"
	"github.com/papervault/papervault-backend/internal/jobs/pipeline/receipt_process"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/jobs/stages"
	"github.com/papervault/papervault-backend/internal/jobs/worker"
	"github.com/papervault/papervault-backend/internal/platform/logger"
	"github.com/papervault/papervault-backend/internal/services"
	"github.com/papervault/papervault-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Extractor  *extraction.Extractor
	Search     services.SearchIndex
	Cleanup    services.EntityCleanupService
	Matcher    services.MerchantMatcher
	Dispatcher services.ChainDispatcher
	Dedup      *dedup.Checker
	Upload     services.UploadService
	Reprocess  services.ReprocessService

	Registry       *jobrt.Registry
	Worker         *worker.Worker
	TemporalRunner *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, repos Repos, clients Clients) (Services, error) {
	var s Services

	s.Extractor = extraction.NewExtractor(clients.LLM, log)
	s.Search = services.NewLoggingSearchIndex(log)
	s.Cleanup = services.NewEntityCleanupService(db, log, repos.Registry, repos.Links, s.Search)
	s.Matcher = services.NewMerchantMatcher(db, log, repos.Merchants)
	s.Dispatcher = services.NewChainDispatcher(db, log, repos.Jobs, clients.Metadata, clients.Notifier, clients.Temporal)
	s.Dedup = dedup.NewChecker(repos.Files, repos.Links, repos.Registry, log)
	s.Upload = services.NewUploadService(db, log, repos.Files, clients.Blob, s.Dedup, s.Dispatcher)
	s.Reprocess = services.NewReprocessService(db, log, repos.Files, clients.Blob, s.Cleanup, s.Dispatcher)

	deps := stages.Deps{
		DB:        db,
		Log:       log,
		Files:     repos.Files,
		Receipts:  repos.Receipts,
		Documents: repos.Documents,
		Links:     repos.Links,
		Tags:      repos.Tags,
		Imports:   repos.Imports,
		Blob:      clients.Blob,
		Analyzer:  clients.Analyzer,
		Extractor: s.Extractor,
		Metadata:  clients.Metadata,
		Matcher:   s.Matcher,
		Cleanup:   s.Cleanup,
		Search:    s.Search,
	}
	engine := orchestrator.NewEngine(repos.StageHistory, log)

	s.Registry = jobrt.NewRegistry()
	for _, h := range []jobrt.Handler{
		receipt_process.New(deps, engine, log),
		document_process.New(deps, engine, log),
	} {
		if err := s.Registry.Register(h); err != nil {
			return s, fmt.Errorf("register handler %s: %w", h.Type(), err)
		}
	}

	if clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, clients.Temporal, db, repos.Jobs, s.Registry, clients.Notifier)
		if err != nil {
			return s, fmt.Errorf("init temporal worker: %w", err)
		}
		s.TemporalRunner = runner
	} else {
		s.Worker = worker.NewWorker(db, log, repos.Jobs, s.Registry, clients.Notifier)
	}

	return s, nil
}
