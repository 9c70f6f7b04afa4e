package search

import (
	"context"
	"fmt"

	"github.com/codectx/codectx/internal/embed"
	apierrors "github.com/codectx/codectx/internal/errors"
	"github.com/codectx/codectx/internal/vectorstore"
)

// Embedder is the subset of embed.Client the search engine depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) (embed.Vector, error)
}

// Engine implements hybrid search against a vectorstore.Store.
type Engine struct {
	store    vectorstore.Store
	embedder Embedder
}

// NewEngine grounds the teacher's Engine constructor pattern
// (internal/search/engine.go's NewEngine), narrowed to the two
// dependencies a hybrid search actually needs.
func NewEngine(store vectorstore.Store, embedder Embedder) (*Engine, error) {
	if store == nil || embedder == nil {
		return nil, ErrNilDependency
	}
	return &Engine{store: store, embedder: embedder}, nil
}

// Search embeds the query, fans it out as dense (and, for hybrid
// collections, sparse) sub-requests, and returns the fused result set.
func (e *Engine) Search(ctx context.Context, q Query) (Outcome, error) {
	queryVector, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return Outcome{}, err
	}
	if queryVector.Dimension != q.Dimension {
		return Outcome{}, apierrors.SchemaMismatchError(
			fmt.Sprintf("query embedding has dimension %d, collection %q expects %d", queryVector.Dimension, q.CollectionName, q.Dimension), nil)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	subRequests := []vectorstore.SubRequest{
		{
			Field:  "vector",
			Data:   queryVector.Values,
			Params: map[string]any{"nprobe": DenseNProbe},
			Limit:  limit,
		},
	}

	degraded := !q.Hybrid
	if q.Hybrid {
		subRequests = append(subRequests, vectorstore.SubRequest{
			Field:  "sparse_vector",
			Data:   q.Text,
			Params: map[string]any{"drop_ratio_search": SparseDropRatio},
			Limit:  limit,
		})
	}

	raw, err := e.store.HybridSearch(ctx, q.CollectionName, subRequests, vectorstore.HybridSearchOptions{
		Rerank:     vectorstore.RerankOptions{Strategy: "rrf", K: RRFConstant},
		Limit:      limit,
		FilterExpr: q.FilterExpr,
	})
	if err != nil {
		return Outcome{}, err
	}

	results := make([]Result, len(raw))
	for i, r := range raw {
		results[i] = Result{Row: r.Row, Score: r.Score}
	}

	return Outcome{Results: results, DegradedMode: degraded}, nil
}
