// Package project persists the single ProjectMetadata record shared across
// a team via version control, identifying the collection and embedding
// model a project's index was built with.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/codectx/codectx/internal/atomicfile"
)

// FileName is the project-local path, relative to the project root, at
// which ProjectMetadata is persisted. Intended to be committed.
const FileName = ".context/project.json"

// CurrentVersion is the schema version written by this implementation.
const CurrentVersion = 1

// Metadata is the durable single record per project.
type Metadata struct {
	Version            int       `json:"version"`
	ProjectPath        string    `json:"projectPath"`
	CollectionName     string    `json:"collectionName"`
	GitRepoIdentifier  string    `json:"gitRepoIdentifier,omitempty"`
	IsHybrid           bool      `json:"isHybrid"`
	EmbeddingModel     string    `json:"embeddingModel"`
	EmbeddingDimension int       `json:"embeddingDimension"`
	CreatedAt          time.Time `json:"createdAt"`
	LastIndexed        time.Time `json:"lastIndexed"`
	IndexedFileCount   int       `json:"indexedFileCount"`
	TotalChunks        int       `json:"totalChunks"`
}

// New creates metadata for a freshly-named collection.
func New(projectPath, collectionName, gitIdentifier string, hybrid bool, model string, dimension int) *Metadata {
	now := time.Now()
	return &Metadata{
		Version:            CurrentVersion,
		ProjectPath:        projectPath,
		CollectionName:     collectionName,
		GitRepoIdentifier:  gitIdentifier,
		IsHybrid:           hybrid,
		EmbeddingModel:     model,
		EmbeddingDimension: dimension,
		CreatedAt:          now,
		LastIndexed:        now,
	}
}

// Load reads the metadata document for projectPath. Returns (nil, nil) if
// no document exists yet.
func Load(projectPath string) (*Metadata, error) {
	path := filepath.Join(projectPath, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save persists the metadata document atomically.
func (m *Metadata) Save(projectPath string) error {
	path := filepath.Join(projectPath, FileName)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0644)
}

// DimensionMatches reports whether dimension agrees with the stored
// EmbeddingDimension. The spec requires this check before inserting into an
// existing collection.
func (m *Metadata) DimensionMatches(dimension int) bool {
	return m.EmbeddingDimension == dimension
}
