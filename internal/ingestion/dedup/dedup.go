package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// Hash returns the hex-encoded SHA-256 of the complete raw upload bytes.
// Conversion output never participates in dedup; two uploads are duplicates
// only when their original bytes match.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DuplicateError reports the live file already carrying the same content
// for the same owner. Callers surface it as a conflict, not a failure.
// EntityKind and Title describe the primary extraction of the existing
// file when one is live; both stay empty for in-flight files.
type DuplicateError struct {
	ExistingFileID uuid.UUID
	ExistingGUID   string
	ContentHash    string
	EntityKind     types.EntityKind
	Title          string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate content: file %s already holds hash %s", e.ExistingFileID, e.ContentHash)
}

// finder is the one query the checker needs from the file repository.
type finder interface {
	FindDuplicate(dbc dbctx.Context, ownerUserID uuid.UUID, contentHash string) (*types.File, error)
}

// linkLister yields the live extraction links of a file.
type linkLister interface {
	ListByFileID(dbc dbctx.Context, fileID uuid.UUID) ([]*types.ExtractionLink, error)
}

// entityTitler resolves the display label of one extracted entity.
type entityTitler interface {
	TitleOf(dbc dbctx.Context, kind types.EntityKind, id uuid.UUID) (string, error)
}

type Checker struct {
	files  finder
	links  linkLister
	titles entityTitler
	log    *logger.Logger
}

func NewChecker(files finder, links linkLister, titles entityTitler, baseLog *logger.Logger) *Checker {
	return &Checker{
		files:  files,
		links:  links,
		titles: titles,
		log:    baseLog.With("component", "DedupChecker"),
	}
}

// Check hashes the upload and scans the owner's files for a live duplicate.
// The repository applies the scoping: in-flight files always count, completed
// files count only while still linked to a live extraction. On a hit the
// returned error is a *DuplicateError carrying the existing file.
func (c *Checker) Check(dbc dbctx.Context, ownerUserID uuid.UUID, data []byte) (string, error) {
	hash := Hash(data)
	existing, err := c.files.FindDuplicate(dbc, ownerUserID, hash)
	if err != nil {
		return hash, err
	}
	if existing != nil {
		dup := &DuplicateError{
			ExistingFileID: existing.ID,
			ExistingGUID:   existing.GUID,
			ContentHash:    hash,
		}
		c.describe(dbc, existing.ID, dup)
		c.log.Info("duplicate upload rejected",
			"owner_user_id", ownerUserID,
			"existing_file_id", existing.ID,
			"entity_kind", dup.EntityKind,
			"content_hash", hash,
		)
		return hash, dup
	}
	return hash, nil
}

// describe fills the conflict report with the existing file's primary
// extraction. Lookup failures degrade the report instead of masking the
// duplicate itself.
func (c *Checker) describe(dbc dbctx.Context, fileID uuid.UUID, dup *DuplicateError) {
	links, err := c.links.ListByFileID(dbc, fileID)
	if err != nil {
		c.log.Warn("duplicate description lookup failed", "file_id", fileID, "error", err)
		return
	}
	var link *types.ExtractionLink
	for _, l := range links {
		if l.Primary {
			link = l
			break
		}
	}
	if link == nil && len(links) > 0 {
		link = links[0]
	}
	if link == nil {
		return
	}
	dup.EntityKind = link.EntityKind
	title, err := c.titles.TitleOf(dbc, link.EntityKind, link.EntityID)
	if err != nil {
		c.log.Warn("duplicate title lookup failed", "file_id", fileID, "error", err)
		return
	}
	dup.Title = title
}
