package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/papervault/papervault-backend/internal/ingestion/blockgraph"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type visionAnalyzer struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

// NewVisionAnalyzer builds the Vision backed analyzer used for plain photos
// (PNG/JPEG), where dense text detection beats the document processor.
func NewVisionAnalyzer(baseLog *logger.Logger) (Analyzer, error) {
	serviceLog := baseLog.With("service", "gcp.VisionAnalyzer")

	client, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	serviceLog.Info("Vision initialized")

	return &visionAnalyzer{log: serviceLog, client: client}, nil
}

func (s *visionAnalyzer) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *visionAnalyzer) Analyze(ctx context.Context, data []byte, mimeType string) ([]blockgraph.Block, error) {
	if err := ValidateAnalyzeInput(data, mimeType); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := s.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return nil, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if r0.FullTextAnnotation == nil {
		return nil, nil
	}
	return blocksFromAnnotation(r0.FullTextAnnotation), nil
}

// blocksFromAnnotation flattens Vision's page/block/paragraph/word/symbol
// hierarchy into LINE blocks, one per paragraph. Images carry no table or
// form structure, so lines are all this provider contributes to the graph.
func blocksFromAnnotation(fta *visionpb.TextAnnotation) []blockgraph.Block {
	var out []blockgraph.Block
	for pi, page := range fta.Pages {
		if page == nil {
			continue
		}
		pageNum := pi + 1
		width := float64(page.Width)
		height := float64(page.Height)

		li := 0
		for _, blk := range page.Blocks {
			if blk == nil {
				continue
			}
			for _, para := range blk.Paragraphs {
				if para == nil {
					continue
				}
				text := paragraphText(para)
				if text == "" {
					continue
				}
				out = append(out, blockgraph.Block{
					ID:         fmt.Sprintf("p%d-line%d", pageNum, li),
					Type:       blockgraph.BlockLine,
					Text:       text,
					Confidence: float64(para.Confidence),
					Page:       pageNum,
					Box:        boxFromPoly(para.BoundingBox, width, height),
				})
				li++
			}
		}
	}
	return out
}

func paragraphText(para *visionpb.Paragraph) string {
	var words []string
	for _, word := range para.Words {
		if word == nil {
			continue
		}
		var sb strings.Builder
		for _, sym := range word.Symbols {
			if sym == nil {
				continue
			}
			sb.WriteString(sym.Text)
		}
		if w := strings.TrimSpace(sb.String()); w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// boxFromPoly normalizes pixel vertices against the page dimensions so line
// ordering works on the same 0..1 scale as every other provider.
func boxFromPoly(poly *visionpb.BoundingPoly, width, height float64) *blockgraph.BoundingBox {
	if poly == nil {
		return nil
	}

	var xs, ys []float64
	for _, v := range poly.NormalizedVertices {
		if v == nil {
			continue
		}
		xs = append(xs, float64(v.X))
		ys = append(ys, float64(v.Y))
	}
	if len(xs) == 0 && width > 0 && height > 0 {
		for _, v := range poly.Vertices {
			if v == nil {
				continue
			}
			xs = append(xs, float64(v.X)/width)
			ys = append(ys, float64(v.Y)/height)
		}
	}
	if len(xs) == 0 {
		return nil
	}

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < len(xs); i++ {
		if xs[i] < minX {
			minX = xs[i]
		}
		if xs[i] > maxX {
			maxX = xs[i]
		}
		if ys[i] < minY {
			minY = ys[i]
		}
		if ys[i] > maxY {
			maxY = ys[i]
		}
	}
	return &blockgraph.BoundingBox{Top: minY, Left: minX, Width: maxX - minX, Height: maxY - minY}
}
