package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codectx/codectx/internal/embed"
	"github.com/codectx/codectx/internal/vectorstore"
)

type fakeEmbedder struct {
	vector embed.Vector
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (embed.Vector, error) {
	return f.vector, f.err
}

func TestNewEngine_RejectsNilDependencies(t *testing.T) {
	_, err := NewEngine(nil, &fakeEmbedder{})
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(vectorstore.NewLocalStore(), nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestEngine_Search_DimensionMismatchIsSchemaMismatch(t *testing.T) {
	store := vectorstore.NewLocalStore()
	embedder := &fakeEmbedder{vector: embed.Vector{Values: []float32{1, 2}, Dimension: 2}}
	e, err := NewEngine(store, embedder)
	require.NoError(t, err)

	_, err = e.Search(context.Background(), Query{CollectionName: "c1", Text: "q", Dimension: 3})
	assert.Error(t, err)
}

func TestEngine_Search_HybridCollectionIssuesBothSubRequests(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewLocalStore()
	require.NoError(t, store.CreateCollection(ctx, "c1", 2, true))
	require.NoError(t, store.InsertHybrid(ctx, "c1", []vectorstore.Row{
		{ID: "a", Vector: []float32{1, 0}, Content: "exact keyword match", RelativePath: "a.go"},
		{ID: "b", Vector: []float32{0, 1}, Content: "unrelated", RelativePath: "b.go"},
	}))

	embedder := &fakeEmbedder{vector: embed.Vector{Values: []float32{1, 0}, Dimension: 2}}
	e, err := NewEngine(store, embedder)
	require.NoError(t, err)

	outcome, err := e.Search(ctx, Query{CollectionName: "c1", Text: "exact keyword", Dimension: 2, Hybrid: true, Limit: 10})
	require.NoError(t, err)
	assert.False(t, outcome.DegradedMode)
	require.NotEmpty(t, outcome.Results)
	assert.Equal(t, "a", outcome.Results[0].ID)
}

func TestEngine_Search_DenseOnlyCollectionReportsDegradedMode(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewLocalStore()
	require.NoError(t, store.CreateCollection(ctx, "c1", 2, false))
	require.NoError(t, store.Insert(ctx, "c1", []vectorstore.Row{
		{ID: "a", Vector: []float32{1, 0}, RelativePath: "a.go"},
	}))

	embedder := &fakeEmbedder{vector: embed.Vector{Values: []float32{1, 0}, Dimension: 2}}
	e, err := NewEngine(store, embedder)
	require.NoError(t, err)

	outcome, err := e.Search(ctx, Query{CollectionName: "c1", Text: "q", Dimension: 2, Hybrid: false, Limit: 10})
	require.NoError(t, err)
	assert.True(t, outcome.DegradedMode)
	require.NotEmpty(t, outcome.Results)
}

func TestEngine_Search_AppliesFilterExprPostFilter(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewLocalStore()
	require.NoError(t, store.CreateCollection(ctx, "c1", 2, false))
	require.NoError(t, store.Insert(ctx, "c1", []vectorstore.Row{
		{ID: "a", Vector: []float32{1, 0}, RelativePath: "a.go", FileExtension: ".go"},
		{ID: "b", Vector: []float32{1, 0}, RelativePath: "b.py", FileExtension: ".py"},
	}))

	embedder := &fakeEmbedder{vector: embed.Vector{Values: []float32{1, 0}, Dimension: 2}}
	e, err := NewEngine(store, embedder)
	require.NoError(t, err)

	outcome, err := e.Search(ctx, Query{
		CollectionName: "c1", Text: "q", Dimension: 2, Limit: 10,
		FilterExpr: `fileExtension == ".go"`,
	})
	require.NoError(t, err)
	for _, r := range outcome.Results {
		assert.Equal(t, ".go", r.FileExtension)
	}
}
