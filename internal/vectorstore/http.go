package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apierrors "github.com/codectx/codectx/internal/errors"
)

// HTTPStore implements Store against a remote vector database exposing an
// equivalent JSON capability surface. It is the companion to LocalStore:
// same Store contract, swappable backend.
type HTTPStore struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPStore creates a Store that talks to a remote vector database at
// endpoint, authenticating with apiKey as a Bearer token.
func NewHTTPStore(endpoint, apiKey string) *HTTPStore {
	return &HTTPStore{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apierrors.ConfigurationError("failed to encode vector store request", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return apierrors.ConfigurationError("failed to build vector store request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apierrors.VectorStoreFailure(fmt.Sprintf("vector store request to %s failed", path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierrors.VectorStoreFailure("failed to read vector store response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierrors.VectorStoreFailure(fmt.Sprintf("vector store returned %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apierrors.VectorStoreFailure("malformed vector store response", err)
		}
	}
	return nil
}

func (s *HTTPStore) ListCollections(ctx context.Context) ([]string, error) {
	var out struct {
		Collections []string `json:"collections"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &out); err != nil {
		return nil, err
	}
	return out.Collections, nil
}

func (s *HTTPStore) HasCollection(ctx context.Context, name string) (bool, error) {
	names, err := s.ListCollections(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

type createCollectionRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Hybrid    bool   `json:"hybrid"`
}

func (s *HTTPStore) CreateCollection(ctx context.Context, name string, dimension int, hybrid bool) error {
	return s.do(ctx, http.MethodPost, "/collections", createCollectionRequest{
		Name: name, Dimension: dimension, Hybrid: hybrid,
	}, nil)
}

func (s *HTTPStore) DropCollection(ctx context.Context, name string) error {
	return s.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
}

type wireRow struct {
	ID            string            `json:"id"`
	Vector        []float32         `json:"vector,omitempty"`
	Content       string            `json:"content"`
	RelativePath  string            `json:"relativePath"`
	StartLine     int               `json:"startLine"`
	EndLine       int               `json:"endLine"`
	FileExtension string            `json:"fileExtension"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func toWireRow(r Row) wireRow {
	return wireRow{
		ID:            r.ID,
		Vector:        r.Vector,
		Content:       r.Content,
		RelativePath:  r.RelativePath,
		StartLine:     r.StartLine,
		EndLine:       r.EndLine,
		FileExtension: r.FileExtension,
		Metadata:      r.Metadata,
	}
}

func fromWireRow(w wireRow) Row {
	return Row{
		ID:            w.ID,
		Vector:        w.Vector,
		Content:       w.Content,
		RelativePath:  w.RelativePath,
		StartLine:     w.StartLine,
		EndLine:       w.EndLine,
		FileExtension: w.FileExtension,
		Metadata:      w.Metadata,
	}
}

func (s *HTTPStore) Insert(ctx context.Context, name string, rows []Row) error {
	return s.insert(ctx, name, rows, "/collections/"+name+"/insert")
}

func (s *HTTPStore) InsertHybrid(ctx context.Context, name string, rows []Row) error {
	return s.insert(ctx, name, rows, "/collections/"+name+"/insertHybrid")
}

func (s *HTTPStore) insert(ctx context.Context, name string, rows []Row, path string) error {
	if len(rows) == 0 {
		return nil
	}
	wireRows := make([]wireRow, len(rows))
	for i, r := range rows {
		wireRows[i] = toWireRow(r)
	}
	return s.do(ctx, http.MethodPost, path, struct {
		Rows []wireRow `json:"rows"`
	}{Rows: wireRows}, nil)
}

func (s *HTTPStore) Delete(ctx context.Context, name string, filterExpr string) error {
	return s.do(ctx, http.MethodPost, "/collections/"+name+"/delete", struct {
		FilterExpr string `json:"filterExpr"`
	}{FilterExpr: filterExpr}, nil)
}

func (s *HTTPStore) Query(ctx context.Context, name string, filterExpr string, limit int) ([]Row, error) {
	var out struct {
		Rows []wireRow `json:"rows"`
	}
	err := s.do(ctx, http.MethodPost, "/collections/"+name+"/query", struct {
		FilterExpr string `json:"filterExpr"`
		Limit      int    `json:"limit"`
	}{FilterExpr: filterExpr, Limit: limit}, &out)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(out.Rows))
	for i, w := range out.Rows {
		rows[i] = fromWireRow(w)
	}
	return rows, nil
}

type wireSubRequest struct {
	Field  string         `json:"field"`
	Data   any            `json:"data"`
	Params map[string]any `json:"params,omitempty"`
	Limit  int            `json:"limit"`
}

func (s *HTTPStore) HybridSearch(ctx context.Context, name string, subRequests []SubRequest, options HybridSearchOptions) ([]SearchResult, error) {
	wireSubs := make([]wireSubRequest, len(subRequests))
	for i, sr := range subRequests {
		wireSubs[i] = wireSubRequest{Field: sr.Field, Data: sr.Data, Params: sr.Params, Limit: sr.Limit}
	}

	var out struct {
		Results []struct {
			Document wireRow `json:"document"`
			Score    float64 `json:"score"`
		} `json:"results"`
	}

	err := s.do(ctx, http.MethodPost, "/collections/"+name+"/hybridSearch", struct {
		SubRequests []wireSubRequest `json:"subRequests"`
		Rerank      RerankOptions    `json:"rerank"`
		Limit       int              `json:"limit"`
		FilterExpr  string           `json:"filterExpr,omitempty"`
	}{
		SubRequests: wireSubs,
		Rerank:      options.Rerank,
		Limit:       options.Limit,
		FilterExpr:  options.FilterExpr,
	}, &out)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(out.Results))
	for i, r := range out.Results {
		results[i] = SearchResult{Row: fromWireRow(r.Document), Score: r.Score}
	}
	return results, nil
}

func (s *HTTPStore) VerifyInsertedData(ctx context.Context, name string, expectedCount int) (VerifyResult, error) {
	var out VerifyResult
	err := s.do(ctx, http.MethodPost, "/collections/"+name+"/verify", struct {
		ExpectedCount int `json:"expectedCount"`
	}{ExpectedCount: expectedCount}, &out)
	if err != nil {
		return VerifyResult{}, err
	}
	return out, nil
}

var _ Store = (*HTTPStore)(nil)
