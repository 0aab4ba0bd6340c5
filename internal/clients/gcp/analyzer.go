package gcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/papervault/papervault-backend/internal/ingestion/blockgraph"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type routingAnalyzer struct {
	document Analyzer
	image    Analyzer
}

// NewAnalyzer routes PDFs and TIFFs to Document AI and photos to Vision.
func NewAnalyzer(baseLog *logger.Logger) (Analyzer, error) {
	document, err := NewDocumentAnalyzer(baseLog)
	if err != nil {
		return nil, err
	}
	image, err := NewVisionAnalyzer(baseLog)
	if err != nil {
		_ = document.Close()
		return nil, err
	}
	return &routingAnalyzer{document: document, image: image}, nil
}

func (r *routingAnalyzer) Analyze(ctx context.Context, data []byte, mimeType string) ([]blockgraph.Block, error) {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "application/pdf", "image/tiff":
		return r.document.Analyze(ctx, data, mimeType)
	case "image/png", "image/jpeg":
		return r.image.Analyze(ctx, data, mimeType)
	default:
		return nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}
}

func (r *routingAnalyzer) Close() error {
	var first error
	if err := r.document.Close(); err != nil {
		first = err
	}
	if err := r.image.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
