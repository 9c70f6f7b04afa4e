package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codectx/codectx/internal/config"
	apierrors "github.com/codectx/codectx/internal/errors"
)

func baseConfig(url string) config.EmbeddingsConfig {
	return config.EmbeddingsConfig{
		BaseURL:              url,
		Model:                "text-embedding-3-small",
		APIKey:                "test-key",
		AuthStyle:            "bearer",
		ResponseShape:        "openai",
		ProviderBatchCeiling: 10,
		RequestTimeout:       2 * time.Second,
	}
}

func TestEmbed_OpenAIShapeReturnsEmbeddingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{Data: make([]embedItem, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = embedItem{Embedding: []float32{0.1, 0.2, 0.3}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewHTTPClient(baseConfig(srv.URL))
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 3, v.Dimension)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v.Values)
}

func TestEmbed_AlibabaShapeReturnsVectorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{Data: make([]embedItem, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = embedItem{Vector: []float32{1, 2}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := baseConfig(srv.URL)
	cfg.ResponseShape = "alibaba"
	c := NewHTTPClient(cfg)

	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v.Values)
}

func TestEmbedBatch_SplitsAcrossProviderBatchCeiling(t *testing.T) {
	var callSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		callSizes = append(callSizes, len(req.Input))
		resp := embedResponse{Data: make([]embedItem, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = embedItem{Embedding: []float32{float32(i)}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewHTTPClient(baseConfig(srv.URL))

	texts := make([]string, 23)
	for i := range texts {
		texts[i] = "text"
	}
	vecs, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 23)
	assert.Equal(t, []int{10, 10, 3}, callSizes)
}

func TestCallProvider_AuthFailureIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(baseConfig(srv.URL))
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.False(t, apierrors.IsRetryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCallProvider_RateLimitIsRetriedThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{Data: []embedItem{{Embedding: []float32{1}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewHTTPClient(baseConfig(srv.URL))
	v, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v.Values)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCallProvider_MalformedResponseIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewHTTPClient(baseConfig(srv.URL))
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.False(t, apierrors.IsRetryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetDimension_PrefersCustomDimensionOverDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []embedItem{{Embedding: []float32{1, 2, 3, 4}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := baseConfig(srv.URL)
	cfg.CustomDimension = 1536
	c := NewHTTPClient(cfg)

	_, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 1536, c.GetDimension())
}

func TestDetectDimension_ReturnsProbeVectorLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []embedItem{{Embedding: []float32{1, 2, 3}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewHTTPClient(baseConfig(srv.URL))
	dim, err := c.DetectDimension(context.Background(), "probe")
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}
