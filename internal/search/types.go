// Package search implements hybrid search: embed the query, fan out dense
// and sparse sub-requests to the vector store, and return the fused,
// filtered, limit-bounded result list.
package search

import (
	"errors"

	"github.com/codectx/codectx/internal/vectorstore"
)

// RRFConstant is the fixed RRF smoothing parameter used to fuse dense and
// sparse rankings. Unlike the teacher's tunable DefaultRRFConstant=60, this
// value is not configurable.
const RRFConstant = 100

// DenseNProbe and SparseDropRatio are the fixed sub-request parameters for
// the dense and sparse legs of a hybrid search.
const (
	DenseNProbe     = 10
	SparseDropRatio = 0.2
)

// ErrNilDependency is returned when Engine is constructed with a nil
// Store or Embedder.
var ErrNilDependency = errors.New("search: nil dependency")

// Result is one ranked hit returned by the engine.
type Result struct {
	vectorstore.Row
	Score float64
}

// Query describes one hybrid search invocation.
type Query struct {
	CollectionName string
	Text           string
	Limit          int
	FilterExpr     string

	// Dimension is the collection's embedding dimension, read from
	// ProjectMetadata by the caller. The query vector's length must
	// match it exactly.
	Dimension int

	// Hybrid mirrors ProjectMetadata.IsHybrid. When false, the search
	// falls back to a dense-only sub-request and reports DegradedMode.
	Hybrid bool
}

// Outcome carries the ranked results plus the degraded-mode side channel
// reported when a collection is dense-only.
type Outcome struct {
	Results      []Result
	DegradedMode bool
}
