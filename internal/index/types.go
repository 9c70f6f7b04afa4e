// Package index implements IndexController: bringing a project's
// vector-store collection into agreement with its working tree by
// discovering files, diffing against HashCache, chunking and embedding
// what changed, and upserting the result.
package index

import (
	"time"

	"github.com/codectx/codectx/internal/chunk"
	"github.com/codectx/codectx/internal/embed"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/walker"
)

// Dependencies are the collaborators one Controller is built from. All
// fields are required; New rejects a zero Dependencies.
type Dependencies struct {
	Walker   *walker.Walker
	Chunker  *chunk.Chunker
	Embedder embed.Client
	Store    vectorstore.Store
}

// Options configures one Run.
type Options struct {
	// ProjectPath is the absolute project root.
	ProjectPath string

	// Hybrid selects whether newly created collections get a sparse index
	// alongside the dense one.
	Hybrid bool

	// Clean forces a full reindex: the existing collection is dropped and
	// the hash cache cleared before discovery.
	Clean bool

	// GitIdentifier, if set, is used by CollectionNamer instead of the
	// project's absolute path, so a team sharing a remote repo converges
	// on the same collection name regardless of local checkout path.
	GitIdentifier string

	// EmbeddingModel is recorded in ProjectMetadata on first index, for
	// "codectx index info" to report and for future mismatch detection.
	EmbeddingModel string

	Extensions       []string
	ExcludePatterns  []string
	RespectGitignore bool
	MaxFileSize      int64

	ChunkOptions chunk.Options
}

// Result summarizes one completed, failed, or cancelled run.
type Result struct {
	Status           string // "completed", "failed", "cancelled"
	CollectionName   string
	IndexedFiles     int
	TotalChunks      int
	SkippedUnchanged int
	Deleted          int
	Failures         int
	Verification     vectorstore.VerifyResult
	DurationMs       int64
}

type stageTiming struct {
	discover time.Duration
	diff     time.Duration
	chunk    time.Duration
	embed    time.Duration
	index    time.Duration
	verify   time.Duration
	persist  time.Duration
}
