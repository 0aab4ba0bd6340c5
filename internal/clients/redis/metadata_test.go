package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/papervault/papervault-backend/internal/platform/logger"
)

func testStore(t *testing.T) (JobMetadataStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewJobMetadataStoreWithClient(logg, rdb, time.Hour), mr
}

func TestJobMetadataStoreRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	jobID := uuid.New()

	type fileMeta struct {
		GUID string `json:"guid"`
		Ext  string `json:"ext"`
	}
	in := fileMeta{GUID: "g-1", Ext: "pdf"}
	if err := store.Put(ctx, jobID, SectionFile, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var out fileMeta
	ok, err := store.Get(ctx, jobID, SectionFile, &out)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Fatalf("round trip: got %+v", out)
	}

	// Different section under the same job stays independent.
	ok, err = store.Get(ctx, jobID, SectionExtract, &out)
	if err != nil || ok {
		t.Fatalf("Get (other section): ok=%v err=%v", ok, err)
	}
}

func TestJobMetadataStoreTTL(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()
	jobID := uuid.New()

	if err := store.Put(ctx, jobID, SectionPipeline, map[string]int{"n": 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	var out map[string]int
	ok, err := store.Get(ctx, jobID, SectionPipeline, &out)
	if err != nil || ok {
		t.Fatalf("expected key to expire: ok=%v err=%v", ok, err)
	}
}

func TestJobMetadataStoreDefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("JOB_METADATA_TTL_SECONDS", "")

	logg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store, err := NewJobMetadataStore(logg)
	if err != nil {
		t.Fatalf("NewJobMetadataStore: %v", err)
	}

	ctx := context.Background()
	jobID := uuid.New()
	if err := store.Put(ctx, jobID, SectionExtract, map[string]string{"text": "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Sections must survive well past a single stage's runtime.
	mr.FastForward(time.Minute)
	var out map[string]string
	ok, err := store.Get(ctx, jobID, SectionExtract, &out)
	if err != nil || !ok {
		t.Fatalf("section expired under default TTL: ok=%v err=%v", ok, err)
	}

	mr.FastForward(2 * time.Hour)
	ok, err = store.Get(ctx, jobID, SectionExtract, &out)
	if err != nil || ok {
		t.Fatalf("section should expire after an hour: ok=%v err=%v", ok, err)
	}
}

func TestJobMetadataStoreForget(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()
	jobID := uuid.New()

	for _, section := range []string{SectionFile, SectionExtract, SectionPipeline} {
		if err := store.Put(ctx, jobID, section, map[string]string{"s": section}); err != nil {
			t.Fatalf("Put %s: %v", section, err)
		}
	}
	if err := store.Forget(ctx, jobID); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	for _, section := range []string{SectionFile, SectionExtract, SectionPipeline} {
		var out map[string]string
		ok, err := store.Get(ctx, jobID, section, &out)
		if err != nil || ok {
			t.Fatalf("section %s should be gone: ok=%v err=%v", section, ok, err)
		}
	}
}
