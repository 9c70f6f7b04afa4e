package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codectx/codectx/internal/vectorstore"
)

func TestApplyFilter_EmptyExpressionKeepsAllResults(t *testing.T) {
	results := []Result{
		{Row: vectorstore.Row{ID: "a", FileExtension: ".go"}, Score: 1},
		{Row: vectorstore.Row{ID: "b", FileExtension: ".py"}, Score: 1},
	}
	filtered, err := ApplyFilter(results, "")
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestApplyFilter_NarrowsToMatchingRows(t *testing.T) {
	results := []Result{
		{Row: vectorstore.Row{ID: "a", FileExtension: ".go"}, Score: 1},
		{Row: vectorstore.Row{ID: "b", FileExtension: ".py"}, Score: 1},
	}
	filtered, err := ApplyFilter(results, `fileExtension == ".go"`)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)
}

func TestApplyFilter_InvalidExpressionIsError(t *testing.T) {
	_, err := ApplyFilter(nil, "bogus ===")
	assert.Error(t, err)
}
