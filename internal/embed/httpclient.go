package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/codectx/codectx/internal/config"
	apierrors "github.com/codectx/codectx/internal/errors"
)

// HTTPClient is the OpenAI-compatible EmbeddingClient implementation:
// POST {baseURL}/embeddings with a Bearer or Azure-style api-key header,
// accepting either the "openai" (embedding field) or "alibaba" (vector
// field) response shape.
type HTTPClient struct {
	cfg        config.EmbeddingsConfig
	httpClient *http.Client

	mu        sync.Mutex
	dimension int
}

// NewHTTPClient creates a Client from the resolved embeddings configuration.
func NewHTTPClient(cfg config.EmbeddingsConfig) *HTTPClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		dimension:  cfg.Dimensions,
	}
}

type embedRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

type embedItem struct {
	Embedding []float32 `json:"embedding"`
	Vector    []float32 `json:"vector"`
}

type embedResponse struct {
	Data  []embedItem `json:"data"`
	Model string      `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed vectorizes a single text.
func (c *HTTPClient) Embed(ctx context.Context, text string) (Vector, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch vectorizes texts, transparently splitting into sub-batches of
// at most ProviderBatchCeiling and concatenating results in input order.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ceiling := c.cfg.ProviderBatchCeiling
	if ceiling <= 0 {
		ceiling = len(texts)
	}

	results := make([]Vector, 0, len(texts))
	for start := 0; start < len(texts); start += ceiling {
		end := start + ceiling
		if end > len(texts) {
			end = len(texts)
		}
		sub, err := c.callWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, sub...)
	}
	return results, nil
}

// callWithRetry distinguishes non-recoverable from recoverable failures:
// authentication failures, other non-2xx statuses below 500, and
// malformed or length-mismatched responses fail the run immediately;
// transport errors (including timeouts), rate limits and 5xx responses
// retry with jittered exponential backoff.
func (c *HTTPClient) callWithRetry(ctx context.Context, texts []string) ([]Vector, error) {
	cfg := apierrors.NetworkRetryConfig()
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		vectors, err := c.callProvider(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !apierrors.IsRetryable(err) || attempt >= cfg.MaxRetries {
			return nil, err
		}

		wait := delay
		if cfg.Jitter && cfg.JitterPercent > 0 {
			wait = time.Duration(float64(delay) * (1 - cfg.JitterPercent + rand.Float64()*2*cfg.JitterPercent))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) callProvider(ctx context.Context, texts []string) ([]Vector, error) {
	reqBody := embedRequest{
		Model:          c.cfg.Model,
		Input:          texts,
		EncodingFormat: "float",
	}
	if c.cfg.CustomDimension > 0 {
		reqBody.Dimensions = c.cfg.CustomDimension
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apierrors.ConfigurationError("failed to encode embedding request", err)
	}

	url := c.cfg.BaseURL + "/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.ConfigurationError("failed to build embedding request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	switch c.cfg.AuthStyle {
	case "azure":
		httpReq.Header.Set("api-key", c.cfg.APIKey)
	default:
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apierrors.EmbeddingFailure("embedding request failed", err).WithRetryable(true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.EmbeddingFailure("failed to read embedding response", err).WithRetryable(true)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apierrors.EmbeddingFailure(fmt.Sprintf("embedding provider authentication failed: %d", resp.StatusCode), nil).WithRetryable(false)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apierrors.EmbeddingFailure(fmt.Sprintf("embedding provider transient error: %d", resp.StatusCode), nil).WithRetryable(true)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.EmbeddingFailure(fmt.Sprintf("embedding provider error: %d: %s", resp.StatusCode, string(respBody)), nil).WithRetryable(false)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apierrors.EmbeddingFailure("malformed embedding response", err).WithRetryable(false)
	}
	if len(parsed.Data) != len(texts) {
		return nil, apierrors.EmbeddingFailure(
			fmt.Sprintf("embedding response length %d does not match request length %d", len(parsed.Data), len(texts)), nil).WithRetryable(false)
	}

	vectors := make([]Vector, len(parsed.Data))
	for i, item := range parsed.Data {
		values := item.Embedding
		if c.cfg.ResponseShape == "alibaba" {
			values = item.Vector
		}
		if len(values) == 0 {
			return nil, apierrors.EmbeddingFailure("embedding response item has no vector", nil).WithRetryable(false)
		}
		vectors[i] = Vector{Values: values, Dimension: len(values)}
	}

	c.mu.Lock()
	if len(vectors) > 0 {
		c.dimension = vectors[0].Dimension
	}
	c.mu.Unlock()

	return vectors, nil
}

// DetectDimension issues one call and caches the returned vector length.
func (c *HTTPClient) DetectDimension(ctx context.Context, probeText string) (int, error) {
	v, err := c.Embed(ctx, probeText)
	if err != nil {
		return 0, err
	}
	return v.Dimension, nil
}

// GetDimension returns the configured override if set, else the last
// detected dimension.
func (c *HTTPClient) GetDimension() int {
	if c.cfg.CustomDimension > 0 {
		return c.cfg.CustomDimension
	}
	if c.cfg.Dimensions > 0 {
		return c.cfg.Dimensions
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dimension
}
