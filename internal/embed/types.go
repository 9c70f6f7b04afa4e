// Package embed is the EmbeddingClient façade: batched vectorization of
// text arrays against an OpenAI-compatible HTTP endpoint, with
// provider-specific batch-size ceilings and response-shape adaptation.
package embed

import "context"

// DefaultBatchSize is a suggested batch size. Nothing in this package
// reads it: HTTPClient splits requests by ProviderBatchCeiling only.
const DefaultBatchSize = 32

// Vector is one embedding result alongside its dimension, matching the
// spec's {vector, dimension} pair.
type Vector struct {
	Values    []float32
	Dimension int
}

// Client is the EmbeddingClient capability set.
type Client interface {
	// Embed vectorizes one text.
	Embed(ctx context.Context, text string) (Vector, error)

	// EmbedBatch vectorizes texts, preserving input order; result length
	// equals input length. Transparently splits into sub-batches bounded
	// by the provider's batch ceiling.
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)

	// DetectDimension issues one call with probeText and returns the
	// length of the returned vector, caching it for GetDimension.
	DetectDimension(ctx context.Context, probeText string) (int, error)

	// GetDimension returns the last known dimension: a configured
	// override, or else the last detected value.
	GetDimension() int
}
