package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, "code_chunks_abcd1234", "", false, "text-embedding-3-small", 1536)
	m.IndexedFileCount = 2
	m.TotalChunks = 5

	require.NoError(t, m.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "code_chunks_abcd1234", loaded.CollectionName)
	assert.Equal(t, 1536, loaded.EmbeddingDimension)
	assert.Equal(t, 5, loaded.TotalChunks)
}

func TestLoad_MissingFileReturnsNilWithoutError(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestDimensionMatches(t *testing.T) {
	m := New("/proj", "col", "", false, "model", 1536)
	assert.True(t, m.DimensionMatches(1536))
	assert.False(t, m.DimensionMatches(2048))
}
