package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// Client is the LLM surface the extraction stages use: OCR text in,
// structured JSON out.
type Client interface {
	ExtractJSON(ctx context.Context, system, user string) (json.RawMessage, error)
}

type client struct {
	log         *logger.Logger
	api         *goopenai.Client
	model       string
	temperature float32
	maxRetries  int
}

func NewClient(baseLog *logger.Logger) (Client, error) {
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	return &client{
		log:         baseLog.With("service", "OpenAIClient"),
		api:         goopenai.NewClient(apiKey),
		model:       envutil.Str("OPENAI_MODEL", goopenai.GPT4oMini),
		temperature: 0.1,
		maxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 3),
	}, nil
}

// ExtractJSON runs one chat completion in JSON mode and returns the raw
// object. Transient failures retry with a short linear backoff; malformed
// JSON from the model counts as a failure and retries too.
func (c *client) ExtractJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			ResponseFormat: &goopenai.ChatCompletionResponseFormat{
				Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []goopenai.ChatCompletionMessage{
				{Role: goopenai.ChatMessageRoleSystem, Content: system},
				{Role: goopenai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("chat completion: %w", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("chat completion returned no choices")
			continue
		}

		raw := strings.TrimSpace(resp.Choices[0].Message.Content)
		if !json.Valid([]byte(raw)) {
			lastErr = fmt.Errorf("model returned invalid JSON")
			continue
		}
		return json.RawMessage(raw), nil
	}
	return nil, lastErr
}
