package dedup

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type fakeFinder struct {
	byHash map[string]*types.File
	err    error
}

func (f *fakeFinder) FindDuplicate(_ dbctx.Context, _ uuid.UUID, contentHash string) (*types.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byHash[contentHash], nil
}

type fakeLinks struct {
	byFileID map[uuid.UUID][]*types.ExtractionLink
}

func (f *fakeLinks) ListByFileID(_ dbctx.Context, fileID uuid.UUID) ([]*types.ExtractionLink, error) {
	return f.byFileID[fileID], nil
}

type fakeTitles struct {
	byEntityID map[uuid.UUID]string
}

func (f *fakeTitles) TitleOf(_ dbctx.Context, _ types.EntityKind, id uuid.UUID) (string, error) {
	return f.byEntityID[id], nil
}

func emptyLinks() *fakeLinks { return &fakeLinks{byFileID: map[uuid.UUID][]*types.ExtractionLink{}} }

func emptyTitles() *fakeTitles { return &fakeTitles{byEntityID: map[uuid.UUID]string{}} }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestHash(t *testing.T) {
	// sha256("hello world")
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := Hash([]byte("hello world")); got != want {
		t.Fatalf("Hash: got %s", got)
	}
	if Hash([]byte("hello world")) != Hash([]byte("hello world")) {
		t.Fatalf("Hash not deterministic")
	}
	if Hash([]byte("a")) == Hash([]byte("b")) {
		t.Fatalf("distinct inputs collided")
	}
}

func TestCheckNoDuplicate(t *testing.T) {
	c := NewChecker(&fakeFinder{byHash: map[string]*types.File{}}, emptyLinks(), emptyTitles(), testLogger(t))

	hash, err := c.Check(dbctx.Context{}, uuid.New(), []byte("fresh bytes"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if hash != Hash([]byte("fresh bytes")) {
		t.Fatalf("Check returned wrong hash: %s", hash)
	}
}

func TestCheckDuplicate(t *testing.T) {
	data := []byte("same bytes twice")
	existing := &types.File{ID: uuid.New(), GUID: "g-123", ContentHash: Hash(data)}
	c := NewChecker(&fakeFinder{byHash: map[string]*types.File{existing.ContentHash: existing}}, emptyLinks(), emptyTitles(), testLogger(t))

	_, err := c.Check(dbctx.Context{}, uuid.New(), data)
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateError, got %v", err)
	}
	if dup.ExistingFileID != existing.ID || dup.ExistingGUID != "g-123" || dup.ContentHash != existing.ContentHash {
		t.Fatalf("conflict payload: %+v", dup)
	}
	// No live extraction yet, so the report stays bare.
	if dup.EntityKind != "" || dup.Title != "" {
		t.Fatalf("expected undescribed conflict, got %+v", dup)
	}
}

func TestCheckDuplicateDescribesPrimaryExtraction(t *testing.T) {
	data := []byte("already extracted")
	existing := &types.File{ID: uuid.New(), GUID: "g-456", ContentHash: Hash(data)}
	receiptID := uuid.New()
	otherID := uuid.New()

	links := &fakeLinks{byFileID: map[uuid.UUID][]*types.ExtractionLink{
		existing.ID: {
			{FileID: existing.ID, EntityKind: types.KindDocument, EntityID: otherID},
			{FileID: existing.ID, EntityKind: types.KindReceipt, EntityID: receiptID, Primary: true},
		},
	}}
	titles := &fakeTitles{byEntityID: map[uuid.UUID]string{receiptID: "REWE Markt"}}
	c := NewChecker(&fakeFinder{byHash: map[string]*types.File{existing.ContentHash: existing}}, links, titles, testLogger(t))

	_, err := c.Check(dbctx.Context{}, uuid.New(), data)
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateError, got %v", err)
	}
	if dup.EntityKind != types.KindReceipt {
		t.Fatalf("expected the primary link's kind, got %q", dup.EntityKind)
	}
	if dup.Title != "REWE Markt" {
		t.Fatalf("expected the entity title, got %q", dup.Title)
	}
}

func TestCheckPropagatesLookupError(t *testing.T) {
	boom := errors.New("db down")
	c := NewChecker(&fakeFinder{err: boom}, emptyLinks(), emptyTitles(), testLogger(t))

	_, err := c.Check(dbctx.Context{}, uuid.New(), []byte("x"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}
