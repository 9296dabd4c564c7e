// Package embedding wraps the external embedding provider. Texts map to
// 1536-dimension vectors; empty input maps to an empty vector without a
// provider call. Transient provider failures are retried with exponential
// backoff; cancellation propagates immediately.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"tendermatch/internal/config"
	"tendermatch/internal/model"
)

// Client generates vector embeddings for text.
type Client interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, order preserved.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}

// OpenAIClient implements Client over the OpenAI embeddings API.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	maxAttempts int
	logger      *zap.Logger
}

// NewOpenAIClient creates an embedding client from config.
func NewOpenAIClient(cfg config.EmbeddingConfig, logger *zap.Logger) *OpenAIClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		maxAttempts: maxAttempts,
		logger:      logger.Named("embedding"),
	}
}

// Embed generates an embedding for one text. Empty text returns an empty
// vector with no provider call.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for a batch. Empty entries produce empty
// vectors; only non-empty texts are sent to the provider, order preserved.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var inputs []string
	var indices []int
	for i, text := range texts {
		cleaned := cleanText(text)
		if cleaned == "" {
			out[i] = []float32{}
			continue
		}
		inputs = append(inputs, cleaned)
		indices = append(indices, i)
	}
	if len(inputs) == 0 {
		return out, nil
	}

	resp, err := c.create(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(resp.Data), len(inputs))
	}

	for pos, item := range resp.Data {
		vec := item.Embedding
		if len(vec) != model.EmbeddingDim {
			return nil, fmt.Errorf("%w: embedding length %d", model.ErrValidation, len(vec))
		}
		out[indices[pos]] = vec
	}
	return out, nil
}

// create calls the provider with retry on transient errors.
func (c *OpenAIClient) create(ctx context.Context, inputs []string) (*openai.EmbeddingResponse, error) {
	backoff := retry.WithJitter(time.Second,
		retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(time.Second)))

	var resp openai.EmbeddingResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: inputs,
			Model: openai.EmbeddingModel(c.model),
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isTransient(err) {
			c.logger.Warn("embedding request failed, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	return &resp, nil
}

// isTransient reports whether a provider error is worth retrying:
// rate limits, server errors, and transport failures.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	// Transport-level failures (timeouts, resets) arrive untyped.
	return true
}

// Dimensions returns the provider's embedding dimensionality.
func (c *OpenAIClient) Dimensions() int { return model.EmbeddingDim }

// cleanText replaces newlines with spaces; they degrade embedding quality.
func cleanText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
