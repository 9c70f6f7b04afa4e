package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowWithVector(id string, vec []float32) Row {
	return Row{
		ID:            id,
		Vector:        vec,
		Content:       "content for " + id,
		RelativePath:  "file_" + id + ".go",
		FileExtension: ".go",
		StartLine:     1,
		EndLine:       10,
	}
}

func TestLocalStore_CreateCollectionIsIdempotent(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	require.NoError(t, s.CreateCollection(ctx, "c1", 3, false))
	require.NoError(t, s.CreateCollection(ctx, "c1", 3, false))

	err := s.CreateCollection(ctx, "c1", 4, false)
	assert.Error(t, err)
}

func TestLocalStore_DropCollectionIsIdempotent(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	require.NoError(t, s.DropCollection(ctx, "nonexistent"))
	require.NoError(t, s.CreateCollection(ctx, "c1", 3, false))
	require.NoError(t, s.DropCollection(ctx, "c1"))

	has, err := s.HasCollection(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLocalStore_InsertRejectsWrongDimension(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 3, false))

	err := s.Insert(ctx, "c1", []Row{rowWithVector("a", []float32{1, 2})})
	assert.Error(t, err)
}

func TestLocalStore_DeleteByFilterThenReinsertReplacesFile(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, false))

	require.NoError(t, s.Insert(ctx, "c1", []Row{
		{ID: "old1", Vector: []float32{1, 0}, RelativePath: "a.go"},
		{ID: "old2", Vector: []float32{0, 1}, RelativePath: "a.go"},
	}))

	require.NoError(t, s.Delete(ctx, "c1", `relativePath == "a.go"`))

	rows, err := s.Query(ctx, "c1", `relativePath == "a.go"`, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.Insert(ctx, "c1", []Row{
		{ID: "new1", Vector: []float32{1, 1}, RelativePath: "a.go"},
	}))
	rows, err = s.Query(ctx, "c1", `relativePath == "a.go"`, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "new1", rows[0].ID)
}

func TestLocalStore_HybridSearch_DenseOnlyWhenSparseAbsent(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, false))

	require.NoError(t, s.Insert(ctx, "c1", []Row{
		rowWithVector("a", []float32{1, 0}),
		rowWithVector("b", []float32{0, 1}),
	}))

	results, err := s.HybridSearch(ctx, "c1", []SubRequest{
		{Field: "vector", Data: []float32{1, 0}, Limit: 10},
	}, HybridSearchOptions{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].Row.ID)
}

func TestLocalStore_HybridSearch_FusesAndOneFailureIsNotFatal(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, true))

	require.NoError(t, s.InsertHybrid(ctx, "c1", []Row{
		{ID: "a", Vector: []float32{1, 0}, Content: "hello world", RelativePath: "a.go"},
		{ID: "b", Vector: []float32{0, 1}, Content: "goodbye", RelativePath: "b.go"},
	}))

	results, err := s.HybridSearch(ctx, "c1", []SubRequest{
		{Field: "vector", Data: []float32{1, 0}, Limit: 10},
		{Field: "sparse_vector", Data: "hello", Limit: 10},
	}, HybridSearchOptions{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].Row.ID)
}

func TestReciprocalRankFusion_SumsOverlappingRanksAndBreaksTiesByID(t *testing.T) {
	// dense ranks (1-based): d3=1, d2=2, d5=3
	// sparse ranks (1-based): d1=1, d4=2, d3=3, d6=4
	// With k=100, score(doc) = sum of 1/(100+rank) across the lists it
	// appears in:
	//   d1 = 1/101                     (sparse rank 1 only)
	//   d2 = 1/102                     (dense rank 2 only)
	//   d3 = 1/101 + 1/103             (dense rank 1, sparse rank 3)
	//   d4 = 1/102                     (sparse rank 2 only)
	//   d5 = 1/103                     (dense rank 3 only)
	//   d6 = 1/104                     (sparse rank 4 only)
	// d3 has the only two-list overlap and sorts first. d2 and d4 tie
	// exactly at 1/102 and must break by ascending id: d2 before d4.
	dense := []string{"d3", "d2", "d5"}
	sparse := []string{"d1", "d4", "d3", "d6"}

	fused := reciprocalRankFusion(dense, sparse, 100)

	require.Len(t, fused, 6)

	byID := make(map[string]float64, len(fused))
	for _, f := range fused {
		byID[f.id] = f.score
	}

	assert.InDelta(t, 1.0/101.0, byID["d1"], 1e-9)
	assert.InDelta(t, 1.0/102.0, byID["d2"], 1e-9)
	assert.InDelta(t, 1.0/103.0+1.0/101.0, byID["d3"], 1e-9)
	assert.InDelta(t, 1.0/102.0, byID["d4"], 1e-9)
	assert.InDelta(t, 1.0/103.0, byID["d5"], 1e-9)
	assert.InDelta(t, 1.0/104.0, byID["d6"], 1e-9)

	gotOrder := make([]string, len(fused))
	for i, f := range fused {
		gotOrder[i] = f.id
	}
	assert.Equal(t, []string{"d3", "d1", "d2", "d4", "d5", "d6"}, gotOrder)
}

func TestLocalStore_VerifyInsertedData_WarnsBelowThreshold(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, false))
	require.NoError(t, s.Insert(ctx, "c1", []Row{rowWithVector("a", []float32{1, 0})}))

	result, err := s.VerifyInsertedData(ctx, "c1", 10)
	require.NoError(t, err)
	assert.True(t, result.Warning)
	assert.Equal(t, 1, result.ObservedCount)
}

func TestLocalStore_VerifyInsertedData_NoWarningWhenComplete(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, "c1", 2, false))
	require.NoError(t, s.Insert(ctx, "c1", []Row{rowWithVector("a", []float32{1, 0})}))

	result, err := s.VerifyInsertedData(ctx, "c1", 1)
	require.NoError(t, err)
	assert.False(t, result.Warning)
}
