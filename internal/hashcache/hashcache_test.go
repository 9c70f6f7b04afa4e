package hashcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasFileChanged_AbsentFileIsChanged(t *testing.T) {
	c := New("/proj", "col")
	assert.True(t, c.HasFileChanged("a.go", "hash1"))
}

func TestHasFileChanged_SameHashIsUnchanged(t *testing.T) {
	c := New("/proj", "col")
	c.UpdateFile("a.go", "hash1", 3)
	assert.False(t, c.HasFileChanged("a.go", "hash1"))
}

func TestHasFileChanged_DifferentHashIsChanged(t *testing.T) {
	c := New("/proj", "col")
	c.UpdateFile("a.go", "hash1", 3)
	assert.True(t, c.HasFileChanged("a.go", "hash2"))
}

func TestGetDeletedFiles_ReturnsEntriesNotInCurrent(t *testing.T) {
	c := New("/proj", "col")
	c.UpdateFile("a.go", "h1", 1)
	c.UpdateFile("b.go", "h2", 1)

	deleted := c.GetDeletedFiles(map[string]struct{}{"a.go": {}})
	assert.Equal(t, []string{"b.go"}, deleted)
}

func TestSaveAndLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, "my_collection")
	c.UpdateFile("src/a.go", "deadbeef", 2)

	require.NoError(t, c.Save())

	loaded, err := Load(dir, "my_collection")
	require.NoError(t, err)
	assert.False(t, loaded.HasFileChanged("src/a.go", "deadbeef"))
	assert.Equal(t, 2, loaded.TotalChunks())
}

func TestLoad_MismatchedCollectionIsTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, "collection_a")
	c.UpdateFile("src/a.go", "deadbeef", 2)
	require.NoError(t, c.Save())

	loaded, err := Load(dir, "collection_b")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.FileCount())
}

func TestLoad_MissingFileReturnsEmptyCache(t *testing.T) {
	dir := t.TempDir()
	loaded, err := Load(dir, "col")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.FileCount())
}

func TestClear_RemovesPersistedDocument(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, "col")
	c.UpdateFile("a.go", "h1", 1)
	require.NoError(t, c.Save())

	require.NoError(t, c.Clear())

	_, err := Load(dir, "col")
	require.NoError(t, err)

	path := filepath.Join(dir, FileName)
	_, statErr := os.Stat(path)
	assert.Error(t, statErr)
}

func TestHashContent_IsDeterministicSHA256(t *testing.T) {
	h1 := HashContent([]byte("hello"))
	h2 := HashContent([]byte("hello"))
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
