// Package vectorstore implements a VectorStore capability surface:
// collection lifecycle, dense and hybrid insert, filtered query, and
// RRF-ready hybridSearch sub-requests, against either an in-process
// backend (coder/hnsw + bleve) or a remote HTTP backend.
package vectorstore

import "context"

// Row is one document as stored in a collection: a chunk's content plus
// its dense vector and the fields the filter grammar can reference.
type Row struct {
	ID            string
	Vector        []float32
	Content       string
	RelativePath  string
	StartLine     int
	EndLine       int
	FileExtension string
	Metadata      map[string]string
}

// SearchResult pairs a row with its fused or raw similarity score.
type SearchResult struct {
	Row   Row
	Score float64
}

// SubRequest is one leg of a hybridSearch call: dense (field "vector",
// Data a []float32) or sparse (field "sparse_vector", Data a query string).
type SubRequest struct {
	Field  string
	Data   any
	Params map[string]any
	Limit  int
}

// RerankOptions selects the fusion strategy for hybridSearch.
type RerankOptions struct {
	Strategy string
	K        int
}

// HybridSearchOptions configures one hybridSearch call.
type HybridSearchOptions struct {
	Rerank     RerankOptions
	Limit      int
	FilterExpr string
}

// VerifyResult reports the outcome of a post-write quiescence check: a
// warning, not an error, when the observed count falls short of the
// expected count.
type VerifyResult struct {
	ExpectedCount int
	ObservedCount int
	Warning       bool
}

// Store is the VectorStore capability surface. Every method is a
// synchronous call that takes a context and may block the caller.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	HasCollection(ctx context.Context, name string) (bool, error)

	// CreateCollection is idempotent: it succeeds if the collection
	// already exists with a matching dimension and hybrid flag, and
	// fails otherwise.
	CreateCollection(ctx context.Context, name string, dimension int, hybrid bool) error

	// DropCollection is idempotent: it succeeds if the collection is
	// already absent.
	DropCollection(ctx context.Context, name string) error

	// Insert is the dense-only path; each row carries a Vector of the
	// collection's dimension.
	Insert(ctx context.Context, name string, rows []Row) error

	// InsertHybrid additionally derives a sparse representation from
	// each row's Content.
	InsertHybrid(ctx context.Context, name string, rows []Row) error

	// Delete removes rows matching filterExpr.
	Delete(ctx context.Context, name string, filterExpr string) error

	// Query performs a non-vector lookup by filter expression.
	Query(ctx context.Context, name string, filterExpr string, limit int) ([]Row, error)

	// HybridSearch issues subRequests (typically one dense, one sparse)
	// and fuses them per options.Rerank.
	HybridSearch(ctx context.Context, name string, subRequests []SubRequest, options HybridSearchOptions) ([]SearchResult, error)

	// VerifyInsertedData re-counts rows in the collection after a
	// quiescence period and compares against expectedCount.
	VerifyInsertedData(ctx context.Context, name string, expectedCount int) (VerifyResult, error)
}
