package app

import (
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	"github.com/papervault/papervault-backend/internal/clients/openai"
	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	"github.com/papervault/papervault-backend/internal/platform/logger"
	"github.com/papervault/papervault-backend/internal/temporalx"
)

// Clients holds every external connection the app owns. Temporal and the
// notifier are optional; everything else is required for chains to run.
type Clients struct {
	Blob     gcp.BlobStore
	Analyzer gcp.Analyzer
	LLM      openai.Client
	Metadata redisclient.JobMetadataStore
	Notifier redisclient.JobNotifier
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	var c Clients

	blob, err := gcp.NewBlobStore(log)
	if err != nil {
		return c, fmt.Errorf("init blob store: %w", err)
	}
	c.Blob = blob

	analyzer, err := gcp.NewAnalyzer(log)
	if err != nil {
		return c, fmt.Errorf("init ocr analyzer: %w", err)
	}
	c.Analyzer = analyzer

	llm, err := openai.NewClient(log)
	if err != nil {
		return c, fmt.Errorf("init openai client: %w", err)
	}
	c.LLM = llm

	metadata, err := redisclient.NewJobMetadataStore(log)
	if err != nil {
		return c, fmt.Errorf("init job metadata store: %w", err)
	}
	c.Metadata = metadata

	notifier, err := redisclient.NewJobNotifier(log)
	if err != nil {
		log.Warn("Job notifier disabled", "error", err)
	} else {
		c.Notifier = notifier
	}

	tc, err := temporalx.NewClient(log)
	if err != nil {
		return c, fmt.Errorf("init temporal client: %w", err)
	}
	c.Temporal = tc

	return c, nil
}

func (c Clients) close() {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Notifier != nil {
		_ = c.Notifier.Close()
	}
	if c.Blob != nil {
		_ = c.Blob.Close()
	}
}
