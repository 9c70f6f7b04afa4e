package embed

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls int32
	dim   int
}

func (c *countingClient) Embed(ctx context.Context, text string) (Vector, error) {
	atomic.AddInt32(&c.calls, 1)
	return Vector{Values: []float32{float32(len(text))}, Dimension: 1}, nil
}

func (c *countingClient) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	atomic.AddInt32(&c.calls, 1)
	vecs := make([]Vector, len(texts))
	for i, t := range texts {
		vecs[i] = Vector{Values: []float32{float32(len(t))}, Dimension: 1}
	}
	return vecs, nil
}

func (c *countingClient) DetectDimension(ctx context.Context, probeText string) (int, error) {
	return c.dim, nil
}

func (c *countingClient) GetDimension() int { return c.dim }

func TestCachedClient_Embed_CachesRepeatedCalls(t *testing.T) {
	inner := &countingClient{}
	c := NewCachedClient(inner, 10)

	_, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestCachedClient_EmbedBatch_OnlyCallsInnerForMisses(t *testing.T) {
	inner := &countingClient{}
	c := NewCachedClient(inner, 10)

	_, err := c.Embed(context.Background(), "cached")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(context.Background(), []string{"cached", "new"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}

func TestCachedClient_PersistentCache_SurvivesNewInstance(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache.db")

	inner := &countingClient{}
	c1, err := NewPersistentCachedClient(inner, 10, dbPath)
	require.NoError(t, err)

	v1, err := c1.Embed(context.Background(), "persisted")
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	inner2 := &countingClient{}
	c2, err := NewPersistentCachedClient(inner2, 10, dbPath)
	require.NoError(t, err)
	defer c2.Close()

	v2, err := c2.Embed(context.Background(), "persisted")
	require.NoError(t, err)

	assert.Equal(t, v1.Values, v2.Values)
	assert.Equal(t, int32(0), atomic.LoadInt32(&inner2.calls))
}

func TestCachedClient_DetectDimension_DelegatesToInner(t *testing.T) {
	inner := &countingClient{dim: 42}
	c := NewCachedClient(inner, 10)

	dim, err := c.DetectDimension(context.Background(), "probe")
	require.NoError(t, err)
	assert.Equal(t, 42, dim)
	assert.Equal(t, 42, c.GetDimension())
}
