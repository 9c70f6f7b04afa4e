// Package hashcache maintains the per-file content-hash mapping used to
// compute the incremental diff between an indexing run and the working tree.
package hashcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codectx/codectx/internal/atomicfile"
)

// FileName is the project-local path, relative to the project root, at
// which the cache is persisted.
const FileName = ".context/file-hashes.json"

// Entry records the last-indexed state of one file.
type Entry struct {
	ContentHash string `json:"contentHash"`
	LastModified int64 `json:"lastModified"`
	ChunkCount  int    `json:"chunkCount"`
}

// Cache is the durable `relativePath -> Entry` mapping for one project.
// Keys are repository-relative, forward-slash-normalized.
type Cache struct {
	mu sync.RWMutex

	ProjectPath    string           `json:"projectPath"`
	CollectionName string           `json:"collectionName"`
	LastIndexed    time.Time        `json:"lastIndexed"`
	Files          map[string]Entry `json:"files"`

	path string
}

// New creates an empty cache bound to the given project.
func New(projectPath, collectionName string) *Cache {
	return &Cache{
		ProjectPath:    projectPath,
		CollectionName: collectionName,
		Files:          make(map[string]Entry),
		path:           filepath.Join(projectPath, FileName),
	}
}

// Load reads the cache document for projectPath. If the document does not
// exist, an empty cache is returned. If CollectionName in the loaded
// document differs from collectionName, the cache is treated as empty.
func Load(projectPath, collectionName string) (*Cache, error) {
	path := filepath.Join(projectPath, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(projectPath, collectionName), nil
		}
		return nil, err
	}

	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.path = path
	if c.Files == nil {
		c.Files = make(map[string]Entry)
	}

	if c.CollectionName != collectionName {
		return New(projectPath, collectionName), nil
	}

	return &c, nil
}

// HashContent returns the SHA-256 hex digest of raw file bytes.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HasFileChanged reports whether relativePath is absent from the cache or
// its stored hash differs from currentHash.
func (c *Cache) HasFileChanged(relativePath, currentHash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.Files[relativePath]
	if !ok {
		return true
	}
	return entry.ContentHash != currentHash
}

// UpdateFile records or overwrites the entry for relativePath.
func (c *Cache) UpdateFile(relativePath, hash string, chunkCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Files[relativePath] = Entry{
		ContentHash:  hash,
		LastModified: time.Now().UnixMilli(),
		ChunkCount:   chunkCount,
	}
}

// RemoveFile deletes the entry for relativePath, if present.
func (c *Cache) RemoveFile(relativePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Files, relativePath)
}

// GetDeletedFiles returns entries in the cache whose key is not present in
// currentFiles.
func (c *Cache) GetDeletedFiles(currentFiles map[string]struct{}) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var deleted []string
	for rel := range c.Files {
		if _, ok := currentFiles[rel]; !ok {
			deleted = append(deleted, rel)
		}
	}
	return deleted
}

// TotalChunks sums ChunkCount across all entries.
func (c *Cache) TotalChunks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, e := range c.Files {
		total += e.ChunkCount
	}
	return total
}

// FileCount returns the number of tracked files.
func (c *Cache) FileCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Files)
}

// Save persists the cache atomically (write-to-temp-then-rename): either the
// new document is visible in full, or the previous one is.
func (c *Cache) Save() error {
	c.mu.Lock()
	c.LastIndexed = time.Now()
	data, err := json.MarshalIndent(c, "", "  ")
	path := c.path
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if path == "" {
		path = filepath.Join(c.ProjectPath, FileName)
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0644)
}

// Clear removes the cache document from disk and empties in-memory state.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.Files = make(map[string]Entry)
	path := c.path
	c.mu.Unlock()

	if path == "" {
		path = filepath.Join(c.ProjectPath, FileName)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
