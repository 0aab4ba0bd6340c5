package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	filerepos "github.com/papervault/papervault-backend/internal/data/repos/files"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/ingestion/dedup"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

const defaultMaxUploadBytes = 20 << 20

var allowedExtensions = map[string]bool{
	"pdf":  true,
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"tif":  true,
	"tiff": true,
}

type UploadInput struct {
	OwnerUserID     uuid.UUID
	FileType        types.FileType
	FileName        string
	Source          string
	ImportID        *uuid.UUID
	InheritedTagIDs []uuid.UUID
	Data            []byte
}

type UploadResult struct {
	File *types.File
	Job  *types.JobRun
}

// UploadService validates an incoming artifact, stores the original blob,
// rejects duplicate content, and dispatches the processing chain.
type UploadService interface {
	Upload(dbc dbctx.Context, in UploadInput) (*UploadResult, error)
}

type uploadService struct {
	log        *logger.Logger
	db         *gorm.DB
	files      filerepos.FileRepo
	blob       gcp.BlobStore
	checker    *dedup.Checker
	dispatcher ChainDispatcher
	maxBytes   int64
}

func NewUploadService(
	db *gorm.DB,
	baseLog *logger.Logger,
	files filerepos.FileRepo,
	blob gcp.BlobStore,
	checker *dedup.Checker,
	dispatcher ChainDispatcher,
) UploadService {
	return &uploadService{
		log:        baseLog.With("service", "UploadService"),
		db:         db,
		files:      files,
		blob:       blob,
		checker:    checker,
		dispatcher: dispatcher,
		maxBytes:   envutil.Int64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
	}
}

func (s *uploadService) Upload(dbc dbctx.Context, in UploadInput) (*UploadResult, error) {
	if in.OwnerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if in.FileType != types.FileTypeReceipt && in.FileType != types.FileTypeDocument {
		return nil, fmt.Errorf("unsupported file_type %q", in.FileType)
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	if int64(len(in.Data)) > s.maxBytes {
		return nil, fmt.Errorf("upload too large: %d bytes exceeds limit %d", len(in.Data), s.maxBytes)
	}
	ext := normalizeExtension(in.FileName)
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}

	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	guid := strings.ReplaceAll(uuid.New().String(), "-", "")
	originalPath, err := s.blob.Store(ctx, gcp.VariantOriginal, guid, ext, bytes.NewReader(in.Data))
	if err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	hash, err := s.checker.Check(dbc, in.OwnerUserID, in.Data)
	if err != nil {
		s.discardBlob(ctx, guid, ext)
		return nil, err
	}

	file := &types.File{
		ID:           uuid.New(),
		GUID:         guid,
		OwnerUserID:  in.OwnerUserID,
		FileType:     in.FileType,
		Status:       types.FileStatusPending,
		ContentHash:  hash,
		OriginalPath: originalPath,
		Extension:    ext,
		SizeBytes:    int64(len(in.Data)),
	}

	var job *types.JobRun
	runErr := s.inTx(dbc, func(txc dbctx.Context) error {
		if _, err := s.files.Create(txc, []*types.File{file}); err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		meta := &redisclient.FileMeta{
			FileID:          file.ID,
			FileGUID:        guid,
			FileType:        string(in.FileType),
			Extension:       ext,
			Source:          in.Source,
			ImportID:        in.ImportID,
			InheritedTagIDs: in.InheritedTagIDs,
		}
		j, err := s.dispatcher.EnqueueFileChain(txc, in.OwnerUserID, JobTypeForFileType(in.FileType), meta)
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if runErr != nil {
		// The unique partial index on (owner_user_id, content_hash) backstops
		// the check-then-insert race; the losing insert lands here.
		s.discardBlob(ctx, guid, ext)
		return nil, runErr
	}

	if dbc.Tx == nil {
		if err := s.dispatcher.Dispatch(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
			return &UploadResult{File: file, Job: job}, err
		}
	}

	s.log.Info("File uploaded", "file_id", file.ID, "file_type", file.FileType, "size_bytes", file.SizeBytes)
	return &UploadResult{File: file, Job: job}, nil
}

func (s *uploadService) inTx(dbc dbctx.Context, fn func(txc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}

func (s *uploadService) discardBlob(ctx context.Context, guid, ext string) {
	if err := s.blob.Delete(ctx, gcp.VariantOriginal, guid, ext); err != nil {
		s.log.Warn("Orphan blob delete failed", "guid", guid, "error", err)
	}
}

// JobTypeForFileType maps a file type to its pipeline handler type.
func JobTypeForFileType(ft types.FileType) string {
	if ft == types.FileTypeDocument {
		return "document_process"
	}
	return "receipt_process"
}

func normalizeExtension(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(filepath.Ext(fileName))), ".")
	return ext
}
