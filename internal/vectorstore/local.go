package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/coder/hnsw"

	apierrors "github.com/codectx/codectx/internal/errors"
)

// QuiescenceDelay is how long VerifyInsertedData waits before re-counting
// rows, giving a just-completed write a short quiescence period to settle.
var QuiescenceDelay = 50 * time.Millisecond

// VerificationFloor is the fraction of expectedCount below which
// VerifyInsertedData reports a warning.
const VerificationFloor = 0.8

// LocalStore implements Store entirely in-process: a coder/hnsw graph per
// collection for the dense path, and a bleve in-memory index per
// collection for the sparse path. It is grounded on the teacher's
// HNSWStore and BleveBM25Index, adapted to run both against one
// Row-keyed collection instead of two standalone index types.
type LocalStore struct {
	mu          sync.RWMutex
	collections map[string]*localCollection
}

type localCollection struct {
	mu        sync.RWMutex
	dimension int
	hybrid    bool

	rows map[string]Row

	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	sparse bleve.Index
}

// NewLocalStore creates an empty in-process vector store.
func NewLocalStore() *LocalStore {
	return &LocalStore{collections: make(map[string]*localCollection)}
}

func newLocalCollection(dimension int, hybrid bool) (*localCollection, error) {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	c := &localCollection{
		dimension: dimension,
		hybrid:    hybrid,
		rows:      make(map[string]Row),
		graph:     graph,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
	}

	if hybrid {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create sparse index: %w", err)
		}
		c.sparse = idx
	}

	return c, nil
}

func (s *LocalStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) HasCollection(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *LocalStore) CreateCollection(ctx context.Context, name string, dimension int, hybrid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[name]; ok {
		if existing.dimension != dimension || existing.hybrid != hybrid {
			return apierrors.SchemaMismatchError(
				fmt.Sprintf("collection %q exists with dimension=%d hybrid=%v, cannot recreate with dimension=%d hybrid=%v",
					name, existing.dimension, existing.hybrid, dimension, hybrid), nil)
		}
		return nil
	}

	c, err := newLocalCollection(dimension, hybrid)
	if err != nil {
		return apierrors.VectorStoreFailure("failed to create collection", err)
	}
	s.collections[name] = c
	return nil
}

func (s *LocalStore) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.sparse != nil {
			c.sparse.Close()
		}
		delete(s.collections, name)
	}
	return nil
}

func (s *LocalStore) getCollection(name string) (*localCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, apierrors.VectorStoreFailure(fmt.Sprintf("collection %q does not exist", name), nil)
	}
	return c, nil
}

func (s *LocalStore) Insert(ctx context.Context, name string, rows []Row) error {
	return s.insert(ctx, name, rows, false)
}

func (s *LocalStore) InsertHybrid(ctx context.Context, name string, rows []Row) error {
	return s.insert(ctx, name, rows, true)
}

func (s *LocalStore) insert(ctx context.Context, name string, rows []Row, wantHybrid bool) error {
	if len(rows) == 0 {
		return nil
	}
	c, err := s.getCollection(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, row := range rows {
		if len(row.Vector) != c.dimension {
			return apierrors.SchemaMismatchError(
				fmt.Sprintf("row %q has vector dimension %d, collection %q expects %d", row.ID, len(row.Vector), name, c.dimension), nil)
		}
	}

	for _, row := range rows {
		if existingKey, exists := c.idMap[row.ID]; exists {
			delete(c.keyMap, existingKey)
			delete(c.idMap, row.ID)
		}

		vec := make([]float32, len(row.Vector))
		copy(vec, row.Vector)
		normalizeInPlace(vec)

		key := c.nextKey
		c.nextKey++
		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[row.ID] = key
		c.keyMap[key] = row.ID
		c.rows[row.ID] = row

		if wantHybrid && c.sparse != nil {
			if err := c.sparse.Index(row.ID, map[string]string{"content": row.Content}); err != nil {
				return apierrors.VectorStoreFailure(fmt.Sprintf("failed to index sparse content for row %q", row.ID), err)
			}
		}
	}

	return nil
}

func (s *LocalStore) Delete(ctx context.Context, name string, filterExpr string) error {
	c, err := s.getCollection(name)
	if err != nil {
		return err
	}

	filter, err := ParseFilter(filterExpr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []string
	for id, row := range c.rows {
		if filter.Match(row) {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		if key, exists := c.idMap[id]; exists {
			delete(c.keyMap, key)
			delete(c.idMap, id)
		}
		delete(c.rows, id)
		if c.sparse != nil {
			_ = c.sparse.Delete(id)
		}
	}

	return nil
}

func (s *LocalStore) Query(ctx context.Context, name string, filterExpr string, limit int) ([]Row, error) {
	c, err := s.getCollection(name)
	if err != nil {
		return nil, err
	}

	filter, err := ParseFilter(filterExpr)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.rows))
	for id := range c.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []Row
	for _, id := range ids {
		row := c.rows[id]
		if filter.Match(row) {
			results = append(results, row)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

func (s *LocalStore) HybridSearch(ctx context.Context, name string, subRequests []SubRequest, options HybridSearchOptions) ([]SearchResult, error) {
	c, err := s.getCollection(name)
	if err != nil {
		return nil, err
	}

	filter, err := ParseFilter(options.FilterExpr)
	if err != nil {
		return nil, err
	}

	var denseRanked, sparseRanked []string
	var denseErr, sparseErr error
	var attempted int

	for _, req := range subRequests {
		switch req.Field {
		case "vector":
			attempted++
			queryVec, ok := req.Data.([]float32)
			if !ok {
				denseErr = fmt.Errorf("dense sub-request data is not a []float32")
				continue
			}
			denseRanked, denseErr = c.denseSearch(queryVec, req.Limit)
		case "sparse_vector":
			attempted++
			queryText, ok := req.Data.(string)
			if !ok {
				sparseErr = fmt.Errorf("sparse sub-request data is not a string")
				continue
			}
			sparseRanked, sparseErr = c.sparseSearch(ctx, queryText, req.Limit)
		}
	}

	if denseErr != nil && sparseErr != nil {
		return nil, apierrors.VectorStoreFailure("both hybridSearch sub-requests failed", fmt.Errorf("dense: %v, sparse: %v", denseErr, sparseErr))
	}

	k := options.Rerank.K
	if k <= 0 {
		k = 100
	}
	fused := reciprocalRankFusion(denseRanked, sparseRanked, k)

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		row, ok := c.rows[f.id]
		if !ok {
			continue
		}
		if !filter.Match(row) {
			continue
		}
		results = append(results, SearchResult{Row: row, Score: f.score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Row.ID < results[j].Row.ID
	})

	if options.Limit > 0 && len(results) > options.Limit {
		results = results[:options.Limit]
	}
	return results, nil
}

func (c *localCollection) denseSearch(queryVec []float32, limit int) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(queryVec) != c.dimension {
		return nil, apierrors.SchemaMismatchError(
			fmt.Sprintf("query vector dimension %d does not match collection dimension %d", len(queryVec), c.dimension), nil)
	}
	if c.graph.Len() == 0 {
		return nil, nil
	}

	vec := make([]float32, len(queryVec))
	copy(vec, queryVec)
	normalizeInPlace(vec)

	nodes := c.graph.Search(vec, limit)
	ranked := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if id, ok := c.keyMap[node.Key]; ok {
			ranked = append(ranked, id)
		}
	}
	return ranked, nil
}

func (c *localCollection) sparseSearch(ctx context.Context, queryText string, limit int) ([]string, error) {
	if c.sparse == nil {
		return nil, nil
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, nil
	}

	q := bleve.NewMatchQuery(queryText)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := c.sparse.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	ranked := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ranked = append(ranked, hit.ID)
	}
	return ranked, nil
}

func (s *LocalStore) VerifyInsertedData(ctx context.Context, name string, expectedCount int) (VerifyResult, error) {
	c, err := s.getCollection(name)
	if err != nil {
		return VerifyResult{}, err
	}

	select {
	case <-ctx.Done():
		return VerifyResult{}, ctx.Err()
	case <-time.After(QuiescenceDelay):
	}

	c.mu.RLock()
	observed := len(c.rows)
	c.mu.RUnlock()

	warning := expectedCount > 0 && float64(observed) < VerificationFloor*float64(expectedCount)
	return VerifyResult{ExpectedCount: expectedCount, ObservedCount: observed, Warning: warning}, nil
}

type fusedID struct {
	id    string
	score float64
}

// reciprocalRankFusion computes score(d) = Σ 1/(k+rank) over whichever
// ranked lists d appears in; a document in only one list contributes a
// single term.
func reciprocalRankFusion(dense, sparse []string, k int) []fusedID {
	scores := make(map[string]float64)
	order := make([]string, 0, len(dense)+len(sparse))

	add := func(ranked []string) {
		for i, id := range ranked {
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(k+i+1)
		}
	}
	add(dense)
	add(sparse)

	fused := make([]fusedID, 0, len(order))
	for _, id := range order {
		fused = append(fused, fusedID{id: id, score: scores[id]})
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].id < fused[j].id
	})
	return fused
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

var _ Store = (*LocalStore)(nil)
