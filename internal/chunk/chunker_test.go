package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_EmptyFileProducesZeroChunks(t *testing.T) {
	c := New(DefaultOptions())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), "a.txt", []byte(""), ".txt")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_WhitespaceOnlyFileProducesZeroChunks(t *testing.T) {
	c := New(DefaultOptions())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), "a.txt", []byte("   \n\t\n  "), ".txt")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_UnrecognizedExtensionUsesWindowFallback(t *testing.T) {
	c := New(DefaultOptions())
	defer c.Close()

	content := strings.Repeat("line of text\n", 5)
	chunks, err := c.Chunk(context.Background(), "a.unknown", []byte(content), ".unknown")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, ".unknown", chunks[0].FileExtension)
}

func TestChunk_WindowFallbackCoversEveryLine(t *testing.T) {
	opts := Options{MaxChunkChars: 100, WindowChars: 40, OverlapChars: 5}
	c := New(opts)
	defer c.Close()

	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("a line of moderate length here\n")
	}

	chunks, err := c.Chunk(context.Background(), "a.unknown", []byte(b.String()), ".unknown")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].StartLine)
	last := chunks[len(chunks)-1]
	assert.GreaterOrEqual(t, last.EndLine, 29)
}

func TestChunk_WindowFallbackOverlapsBetweenAdjacentChunks(t *testing.T) {
	opts := Options{MaxChunkChars: 100, WindowChars: 40, OverlapChars: 10}
	c := New(opts)
	defer c.Close()

	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("abcdefghij\n")
	}

	chunks, err := c.Chunk(context.Background(), "a.unknown", []byte(b.String()), ".unknown")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.LessOrEqual(t, chunks[1].StartLine, chunks[0].EndLine)
}

func TestChunkID_IsStableForSameInputs(t *testing.T) {
	id1 := ChunkID("/proj", "a.go", 1, 10, "hash1")
	id2 := ChunkID("/proj", "a.go", 1, 10, "hash1")
	assert.Equal(t, id1, id2)
}

func TestChunkID_DiffersWithDifferentLineRange(t *testing.T) {
	id1 := ChunkID("/proj", "a.go", 1, 10, "hash1")
	id2 := ChunkID("/proj", "a.go", 1, 11, "hash1")
	assert.NotEqual(t, id1, id2)
}
