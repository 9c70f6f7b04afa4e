package embed

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize bounds the in-memory query-embedding cache.
const DefaultQueryCacheSize = 1000

// CachedClient wraps a Client with an LRU query-embedding cache, optionally
// persisted to a small sqlite table so repeated queries across process
// restarts skip the network call.
type CachedClient struct {
	inner Client
	cache *lru.Cache[string, Vector]
	db    *sql.DB
}

// NewCachedClient wraps inner with an in-memory-only LRU cache.
func NewCachedClient(inner Client, cacheSize int) *CachedClient {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, Vector](cacheSize)
	return &CachedClient{inner: inner, cache: cache}
}

// NewPersistentCachedClient wraps inner with an LRU cache additionally
// backed by a sqlite database at dbPath, so cached query embeddings survive
// process restarts.
func NewPersistentCachedClient(inner Client, cacheSize int, dbPath string) (*CachedClient, error) {
	c := NewCachedClient(inner, cacheSize)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS embedding_cache (
		key TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		vector BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embedding cache table: %w", err)
	}
	c.db = db
	return c, nil
}

// Close releases the backing database, if any.
func (c *CachedClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *CachedClient) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached embedding if available, otherwise computes and
// caches it (memory, then database if configured).
func (c *CachedClient) Embed(ctx context.Context, text string) (Vector, error) {
	key := c.cacheKey(text)

	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	if c.db != nil {
		if v, ok, err := c.loadFromDB(key); err == nil && ok {
			c.cache.Add(key, v)
			return v, nil
		}
	}

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return Vector{}, err
	}

	c.cache.Add(key, v)
	if c.db != nil {
		_ = c.saveToDB(key, v)
	}
	return v, nil
}

// EmbedBatch checks the cache for each text individually, issuing one
// EmbedBatch call for the uncached remainder.
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]Vector, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := c.cacheKey(text)
		if v, ok := c.cache.Get(key); ok {
			results[i] = v
			continue
		}
		if c.db != nil {
			if v, ok, err := c.loadFromDB(key); err == nil && ok {
				c.cache.Add(key, v)
				results[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vecs, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			results[idx] = vecs[j]
			key := c.cacheKey(missTexts[j])
			c.cache.Add(key, vecs[j])
			if c.db != nil {
				_ = c.saveToDB(key, vecs[j])
			}
		}
	}

	return results, nil
}

// DetectDimension delegates to the wrapped client.
func (c *CachedClient) DetectDimension(ctx context.Context, probeText string) (int, error) {
	return c.inner.DetectDimension(ctx, probeText)
}

// GetDimension delegates to the wrapped client.
func (c *CachedClient) GetDimension() int {
	return c.inner.GetDimension()
}

func (c *CachedClient) loadFromDB(key string) (Vector, bool, error) {
	var dim int
	var blob []byte
	err := c.db.QueryRow(`SELECT dimension, vector FROM embedding_cache WHERE key = ?`, key).Scan(&dim, &blob)
	if err == sql.ErrNoRows {
		return Vector{}, false, nil
	}
	if err != nil {
		return Vector{}, false, err
	}
	return Vector{Values: decodeFloats(blob), Dimension: dim}, true, nil
}

func (c *CachedClient) saveToDB(key string, v Vector) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO embedding_cache (key, dimension, vector) VALUES (?, ?, ?)`,
		key, v.Dimension, encodeFloats(v.Values))
	return err
}

func encodeFloats(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) []float32 {
	values := make([]float32, len(buf)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return values
}
