package app

import (
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/data/repos/entities"
	filerepos "github.com/papervault/papervault-backend/internal/data/repos/files"
	importrepos "github.com/papervault/papervault-backend/internal/data/repos/imports"
	jobrepos "github.com/papervault/papervault-backend/internal/data/repos/jobs"
	"github.com/papervault/papervault-backend/internal/data/repos/merchants"
	tagrepos "github.com/papervault/papervault-backend/internal/data/repos/tags"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type Repos struct {
	Files        filerepos.FileRepo
	Receipts     entities.ReceiptRepo
	Documents    entities.DocumentRepo
	Links        entities.ExtractionLinkRepo
	Registry     *entities.Registry
	Tags         tagrepos.TagRepo
	Imports      importrepos.ImportSourceRepo
	Merchants    merchants.MerchantRepo
	Jobs         jobrepos.JobRunRepo
	StageHistory jobrepos.StageHistoryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Files:        filerepos.NewFileRepo(db, log),
		Receipts:     entities.NewReceiptRepo(db, log),
		Documents:    entities.NewDocumentRepo(db, log),
		Links:        entities.NewExtractionLinkRepo(db, log),
		Registry:     entities.NewRegistry(db, log),
		Tags:         tagrepos.NewTagRepo(db, log),
		Imports:      importrepos.NewImportSourceRepo(db, log),
		Merchants:    merchants.NewMerchantRepo(db, log),
		Jobs:         jobrepos.NewJobRunRepo(db, log),
		StageHistory: jobrepos.NewStageHistoryRepo(db, log),
	}
}
