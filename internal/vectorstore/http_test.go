package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStore_HasCollection_ChecksListedNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections", r.URL.Path)
		json.NewEncoder(w).Encode(map[string][]string{"collections": {"code_chunks_abc"}})
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "key")
	has, err := s.HasCollection(context.Background(), "code_chunks_abc")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasCollection(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestHTTPStore_CreateCollection_SendsAuthHeaderAndBody(t *testing.T) {
	var gotAuth string
	var gotBody createCollectionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "secret-key")
	err := s.CreateCollection(context.Background(), "c1", 1536, true)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "c1", gotBody.Name)
	assert.Equal(t, 1536, gotBody.Dimension)
	assert.True(t, gotBody.Hybrid)
}

func TestHTTPStore_NonSuccessStatusIsVectorStoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "key")
	err := s.DropCollection(context.Background(), "c1")
	assert.Error(t, err)
}

func TestHTTPStore_HybridSearch_DecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/c1/hybridSearch", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"document": map[string]any{"id": "a", "content": "hi"}, "score": 0.9},
			},
		})
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "key")
	results, err := s.HybridSearch(context.Background(), "c1", []SubRequest{
		{Field: "vector", Data: []float32{0.1, 0.2}, Limit: 10},
	}, HybridSearchOptions{Limit: 10, Rerank: RerankOptions{Strategy: "rrf", K: 100}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Row.ID)
	assert.Equal(t, 0.9, results[0].Score)
}

func TestHTTPStore_Query_EncodesFilterAndDecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FilterExpr string `json:"filterExpr"`
			Limit      int    `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `fileExtension == ".go"`, body.FilterExpr)
		json.NewEncoder(w).Encode(map[string]any{
			"rows": []map[string]any{{"id": "x", "relativePath": "a.go"}},
		})
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "key")
	rows, err := s.Query(context.Background(), "c1", `fileExtension == ".go"`, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "x", rows[0].ID)
}
