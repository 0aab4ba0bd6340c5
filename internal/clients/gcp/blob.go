package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// Variant names the storage role of one blob belonging to a file. A file
// owns up to four blobs keyed by its GUID: the untouched upload, the
// converted working copy consumed by extraction, the long-term archive copy,
// and a rendered preview.
type Variant string

const (
	VariantOriginal  Variant = "original"
	VariantProcessed Variant = "processed"
	VariantArchive   Variant = "archive"
	VariantPreview   Variant = "preview"
)

// BlobStore is the object-storage surface the pipeline uses. Keys are
// derived from (variant, guid, extension) so stages never pass raw paths
// around.
type BlobStore interface {
	Store(ctx context.Context, variant Variant, guid, ext string, data io.Reader) (string, error)
	Read(ctx context.Context, variant Variant, guid, ext string) ([]byte, error)
	Delete(ctx context.Context, variant Variant, guid, ext string) error
	Exists(ctx context.Context, variant Variant, guid, ext string) (bool, error)
	DeleteAllVariants(ctx context.Context, guid string) error
	Close() error
}

// VariantKey builds the object key for one blob variant.
func VariantKey(variant Variant, guid, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return fmt.Sprintf("files/%s/%s", variant, guid)
	}
	return fmt.Sprintf("files/%s/%s.%s", variant, guid, ext)
}

type blobStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewBlobStore(baseLog *logger.Logger) (BlobStore, error) {
	serviceLog := baseLog.With("service", "BlobStore")

	bucket := envutil.Str("FILES_GCS_BUCKET_NAME", "")
	if bucket == "" {
		return nil, fmt.Errorf("missing env var FILES_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info("Object storage initialized", "bucket", bucket)

	return &blobStore{log: serviceLog, client: client, bucket: bucket}, nil
}

func (bs *blobStore) Close() error {
	if bs == nil || bs.client == nil {
		return nil
	}
	return bs.client.Close()
}

func (bs *blobStore) Store(ctx context.Context, variant Variant, guid, ext string, data io.Reader) (string, error) {
	key := VariantKey(variant, guid, ext)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.client.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if ct := contentTypeForExt(ext); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write %q to GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %q: %w", key, err)
	}
	return key, nil
}

func (bs *blobStore) Read(ctx context.Context, variant Variant, guid, ext string) ([]byte, error) {
	key := VariantKey(variant, guid, ext)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	rc, err := bs.client.Bucket(bs.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %q: %w", key, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("failed to read GCS object %q: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (bs *blobStore) Delete(ctx context.Context, variant Variant, guid, ext string) error {
	key := VariantKey(variant, guid, ext)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := bs.client.Bucket(bs.bucket).Object(key).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("failed to delete GCS object %q: %w", key, err)
	}
	return nil
}

func (bs *blobStore) Exists(ctx context.Context, variant Variant, guid, ext string) (bool, error) {
	key := VariantKey(variant, guid, ext)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := bs.client.Bucket(bs.bucket).Object(key).Attrs(ctx)
	if err == storage.ErrObjectNotExist {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAllVariants removes every blob whose key carries the file's GUID,
// regardless of variant or extension.
func (bs *blobStore) DeleteAllVariants(ctx context.Context, guid string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, variant := range []Variant{VariantOriginal, VariantProcessed, VariantArchive, VariantPreview} {
		prefix := fmt.Sprintf("files/%s/%s", variant, guid)
		it := bs.client.Bucket(bs.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			if err := bs.client.Bucket(bs.bucket).Object(attrs.Name).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
				return fmt.Errorf("failed to delete GCS object %q: %w", attrs.Name, err)
			}
		}
	}
	return nil
}

// MimeForExtension maps a file extension to the mime type the analyzers
// route on. Empty string means the extension is not recognized.
func MimeForExtension(ext string) string {
	return contentTypeForExt(ext)
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "tif", "tiff":
		return "image/tiff"
	case "json":
		return "application/json"
	default:
		return ""
	}
}
