package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/codectx/codectx/internal/chunk"
	"github.com/codectx/codectx/internal/collection"
	"github.com/codectx/codectx/internal/embed"
	apierrors "github.com/codectx/codectx/internal/errors"
	"github.com/codectx/codectx/internal/hashcache"
	"github.com/codectx/codectx/internal/lock"
	"github.com/codectx/codectx/internal/progress"
	"github.com/codectx/codectx/internal/project"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/walker"
)

// Controller implements IndexController. One Controller may run indexing
// for many projects sequentially; the only state it carries across runs
// is the vector-store circuit breaker, so a backend that's down for one
// project's run fails fast on the next rather than burning through the
// same retry budget again.
type Controller struct {
	deps    Dependencies
	breaker *apierrors.CircuitBreaker
}

// New validates deps and returns a Controller.
func New(deps Dependencies) (*Controller, error) {
	if deps.Walker == nil || deps.Chunker == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, apierrors.InternalError("index: nil dependency", nil)
	}
	return &Controller{
		deps:    deps,
		breaker: apierrors.NewCircuitBreaker("vectorstore"),
	}, nil
}

// nopReporter discards progress events for callers that don't supply one.
type nopReporter struct{}

func (nopReporter) Emit(progress.Event) {}
func (nopReporter) Close()              {}

// fileContent is one changed file's content read once during diffing and
// reused for chunking, so Run never reads a file from disk twice.
type fileContent struct {
	relativePath string
	extension    string
	hash         string
	data         []byte
}

// Run brings opts.ProjectPath's vector-store collection into agreement
// with its working tree: discover, diff against the hash cache, chunk and
// embed what changed, and upsert the result.
func (c *Controller) Run(ctx context.Context, opts Options, reporter progress.Reporter) (*Result, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	start := time.Now()

	pl := lock.New(opts.ProjectPath)
	acquired, err := pl.TryAcquire()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindIO, apierrors.ErrCodeLockHeld, err)
	}
	if !acquired {
		return nil, apierrors.New(apierrors.KindIO, apierrors.ErrCodeLockHeld,
			"another indexing run holds the project lock", nil)
	}
	defer pl.Release()

	result := &Result{}
	var timing stageTiming

	// Step 1: resolve collectionName.
	meta, err := project.Load(opts.ProjectPath)
	if err != nil {
		return nil, apierrors.IOError("failed to load project metadata", err)
	}

	dimension, err := c.resolveDimension(ctx)
	if err != nil {
		return nil, err
	}

	collectionName, meta, err := c.resolveCollection(meta, opts, dimension)
	if err != nil {
		return nil, err
	}
	result.CollectionName = collectionName

	if !opts.Clean && !meta.DimensionMatches(dimension) {
		return nil, apierrors.ConfigurationError(
			fmt.Sprintf("embedding dimension %d does not match collection %q's existing dimension %d; run with --clean first",
				dimension, collectionName, meta.EmbeddingDimension), nil)
	}

	// Step 2: load HashCache, or clear it (and the collection) under --clean
	// or a stale (mismatched-collection) cache. hashcache.Load already
	// treats a mismatched CollectionName as an empty cache.
	cache, err := hashcache.Load(opts.ProjectPath, collectionName)
	if err != nil {
		return nil, apierrors.IOError("failed to load hash cache", err)
	}
	if opts.Clean {
		if err := c.deps.Store.DropCollection(ctx, collectionName); err != nil {
			return nil, apierrors.VectorStoreFailure("failed to drop collection for --clean", err)
		}
		if err := cache.Clear(); err != nil {
			return nil, apierrors.IOError("failed to clear hash cache", err)
		}
		cache = hashcache.New(opts.ProjectPath, collectionName)
	}

	reporter.Emit(progress.Event{Phase: progress.PhaseDiscovering})

	// Step 3: enumerate.
	discoverStart := time.Now()
	currentFiles, err := c.discover(ctx, opts, reporter)
	if err != nil {
		return nil, err
	}
	timing.discover = time.Since(discoverStart)

	// Step 4: diff.
	reporter.Emit(progress.Event{Phase: progress.PhaseDiffing})
	diffStart := time.Now()
	changed, deleted, unchanged := c.diff(opts.ProjectPath, cache, currentFiles)
	timing.diff = time.Since(diffStart)
	result.SkippedUnchanged = len(unchanged)

	if len(changed) == 0 && len(deleted) == 0 {
		reporter.Emit(progress.Event{Phase: progress.PhaseDone, Detail: fmt.Sprintf("unchanged: %d", len(unchanged))})
		result.Status = "completed"
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	// Step 7 (ensure collection exists): performed before any write so a
	// failure to check or create the collection stops the run before
	// deletes or inserts are issued. (Dimension mismatches are caught
	// earlier, against the project metadata.)
	if err := c.ensureCollection(ctx, collectionName, dimension, opts.Hybrid); err != nil {
		return nil, err
	}

	// Step 5: deletions.
	reporter.Emit(progress.Event{Phase: progress.PhaseDeleting, Total: len(deleted)})
	for i, rel := range deleted {
		select {
		case <-ctx.Done():
			return c.cancelled(cache, result, start)
		default:
		}
		if err := c.retryStore(ctx, func() error {
			return c.deps.Store.Delete(ctx, collectionName, filterForPath(rel))
		}); err != nil {
			result.Failures++
			continue
		}
		cache.RemoveFile(rel)
		result.Deleted++
		reporter.Emit(progress.Event{Phase: progress.PhaseDeleting, Current: i + 1, Total: len(deleted),
			Percentage: progress.Percentage(i+1, len(deleted)), Detail: rel})
	}

	// Step 6: re-chunk the changed set. Chunks from every changed file are
	// embedded together in one EmbedBatch call so the request saturates
	// providerBatchCeiling, then written back per file with delete-before-
	// insert ordering.
	reporter.Emit(progress.Event{Phase: progress.PhaseChunking, Total: len(changed)})
	chunkStart := time.Now()
	type fileChunks struct {
		file   fileContent
		chunks []chunk.Chunk
	}
	var files []fileChunks
	var allTexts []string
	for i, fc := range changed {
		select {
		case <-ctx.Done():
			return c.cancelled(cache, result, start)
		default:
		}
		chunked, err := c.deps.Chunker.Chunk(ctx, fc.relativePath, fc.data, fc.extension)
		if err != nil {
			result.Failures++
			continue
		}
		files = append(files, fileChunks{file: fc, chunks: chunked})
		for _, ch := range chunked {
			allTexts = append(allTexts, ch.Content)
		}
		reporter.Emit(progress.Event{Phase: progress.PhaseChunking, Current: i + 1, Total: len(changed),
			Percentage: progress.Percentage(i+1, len(changed)), Detail: fc.relativePath})
	}

	timing.chunk = time.Since(chunkStart)

	reporter.Emit(progress.Event{Phase: progress.PhaseEmbedding, Total: len(allTexts)})
	embedStart := time.Now()
	var vectors []embed.Vector
	if len(allTexts) > 0 {
		vectors, err = c.deps.Embedder.EmbedBatch(ctx, allTexts)
		if err != nil {
			return nil, apierrors.EmbeddingFailure("failed to embed changed chunks", err)
		}
	}
	timing.embed = time.Since(embedStart)
	reporter.Emit(progress.Event{Phase: progress.PhaseEmbedding, Current: len(allTexts), Total: len(allTexts), Percentage: 100})

	reporter.Emit(progress.Event{Phase: progress.PhaseIndexingFiles, Total: len(files)})
	indexStart := time.Now()
	offset := 0
	expectedNewRows := 0
	for i, fc := range files {
		select {
		case <-ctx.Done():
			return c.cancelled(cache, result, start)
		default:
		}

		rows := make([]vectorstore.Row, 0, len(fc.chunks))
		for _, ch := range fc.chunks {
			vec := vectors[offset]
			offset++
			id := chunk.ChunkID(opts.ProjectPath, fc.file.relativePath, ch.StartLine, ch.EndLine, fc.file.hash)
			rows = append(rows, vectorstore.Row{
				ID:            id,
				Vector:        vec.Values,
				Content:       ch.Content,
				RelativePath:  fc.file.relativePath,
				StartLine:     ch.StartLine,
				EndLine:       ch.EndLine,
				FileExtension: fc.file.extension,
				Metadata:      ch.Metadata,
			})
		}

		// Delete-then-insert: the transition is "replace whole file".
		if err := c.retryStore(ctx, func() error {
			return c.deps.Store.Delete(ctx, collectionName, filterForPath(fc.file.relativePath))
		}); err != nil {
			result.Failures++
			continue
		}
		if len(rows) > 0 {
			insertErr := c.retryStore(ctx, func() error {
				if opts.Hybrid {
					return c.deps.Store.InsertHybrid(ctx, collectionName, rows)
				}
				return c.deps.Store.Insert(ctx, collectionName, rows)
			})
			if insertErr != nil {
				result.Failures++
				continue
			}
		}

		cache.UpdateFile(fc.file.relativePath, fc.file.hash, len(rows))
		expectedNewRows += len(rows)
		result.IndexedFiles++
		result.TotalChunks += len(rows)
		reporter.Emit(progress.Event{Phase: progress.PhaseIndexingFiles, Current: i + 1, Total: len(files),
			Percentage: progress.Percentage(i+1, len(files)), Detail: fc.file.relativePath})
	}

	timing.index = time.Since(indexStart)

	// Step 8: verify.
	reporter.Emit(progress.Event{Phase: progress.PhaseVerifying})
	verifyStart := time.Now()
	verification, err := apierrors.RetryWithResult(ctx, apierrors.NetworkRetryConfig(), func() (vectorstore.VerifyResult, error) {
		return c.deps.Store.VerifyInsertedData(ctx, collectionName, expectedNewRows)
	})
	if err != nil {
		return nil, apierrors.VectorStoreFailure("verifyInsertedData failed", err)
	}
	timing.verify = time.Since(verifyStart)
	result.Verification = verification
	if verification.Warning {
		reporter.Emit(progress.Event{Phase: progress.PhaseVerifying,
			Detail: fmt.Sprintf("expected %d, observed %d", verification.ExpectedCount, verification.ObservedCount)})
	}

	// Step 9: persist cache, then metadata - in that order. If the cache
	// write fails, metadata must not be updated.
	reporter.Emit(progress.Event{Phase: progress.PhasePersisting})
	persistStart := time.Now()
	if err := cache.Save(); err != nil {
		return nil, apierrors.IOError("failed to persist hash cache", err)
	}
	meta.IndexedFileCount = cache.FileCount()
	meta.TotalChunks = cache.TotalChunks()
	meta.LastIndexed = time.Now()
	if err := meta.Save(opts.ProjectPath); err != nil {
		return nil, apierrors.IOError("failed to persist project metadata", err)
	}
	timing.persist = time.Since(persistStart)

	reporter.Emit(progress.Event{Phase: progress.PhaseDone})
	result.Status = "completed"
	result.DurationMs = time.Since(start).Milliseconds()

	slog.Info("index_complete",
		slog.String("collection", collectionName),
		slog.Int("files_indexed", result.IndexedFiles),
		slog.Int("files_deleted", result.Deleted),
		slog.Int("chunks", result.TotalChunks),
		slog.Int("failures", result.Failures),
		slog.Int64("duration_total_ms", result.DurationMs),
		slog.Int64("duration_discover_ms", timing.discover.Milliseconds()),
		slog.Int64("duration_diff_ms", timing.diff.Milliseconds()),
		slog.Int64("duration_chunk_ms", timing.chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()),
		slog.Int64("duration_verify_ms", timing.verify.Milliseconds()),
		slog.Int64("duration_persist_ms", timing.persist.Milliseconds()),
		slog.Bool("verification_warning", verification.Warning),
	)
	return result, nil
}

// cancelled persists whatever cache state is complete so far and returns a
// clean, non-fatal stop. Metadata is deliberately not written.
func (c *Controller) cancelled(cache *hashcache.Cache, result *Result, start time.Time) (*Result, error) {
	_ = cache.Save()
	result.Status = "cancelled"
	result.DurationMs = time.Since(start).Milliseconds()
	return result, apierrors.CancelledError("indexing run cancelled", nil)
}

// retryStore wraps a vector-store write with bounded exponential backoff
// (3 retries, 500ms base, factor 2, ±20% jitter), recovering transient
// network timeouts without failing the whole file's write. The circuit
// breaker sits in front of the retry: once enough writes have exhausted
// their retries, further calls fail immediately instead of each re-running
// the same backoff schedule against a backend that's still down.
func (c *Controller) retryStore(ctx context.Context, fn func() error) error {
	if !c.breaker.Allow() {
		return apierrors.VectorStoreFailure("vector store circuit open, skipping write", apierrors.ErrCircuitOpen)
	}
	err := apierrors.Retry(ctx, apierrors.NetworkRetryConfig(), fn)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}

func (c *Controller) resolveDimension(ctx context.Context) (int, error) {
	if d := c.deps.Embedder.GetDimension(); d > 0 {
		return d, nil
	}
	d, err := c.deps.Embedder.DetectDimension(ctx, "package main\n\nfunc main() {}\n")
	if err != nil {
		return 0, apierrors.EmbeddingFailure("failed to detect embedding dimension", err)
	}
	return d, nil
}

func (c *Controller) resolveCollection(meta *project.Metadata, opts Options, dimension int) (string, *project.Metadata, error) {
	if meta != nil {
		expected, err := collection.Name(opts.ProjectPath, opts.GitIdentifier, opts.Hybrid)
		if err != nil {
			return "", nil, apierrors.ConfigurationError("failed to compute collection name", err)
		}
		if expected == meta.CollectionName {
			return meta.CollectionName, meta, nil
		}
		// opts.Hybrid or opts.GitIdentifier no longer matches what produced
		// the stored name (e.g. the hybrid flag flipped between runs):
		// recompute via CollectionNamer rather than silently keeping a
		// name that no longer reflects the current config.
		meta.CollectionName = expected
		meta.IsHybrid = opts.Hybrid
		meta.GitRepoIdentifier = opts.GitIdentifier
		if err := meta.Save(opts.ProjectPath); err != nil {
			return "", nil, apierrors.IOError("failed to persist updated project metadata", err)
		}
		return expected, meta, nil
	}
	name, err := collection.Name(opts.ProjectPath, opts.GitIdentifier, opts.Hybrid)
	if err != nil {
		return "", nil, apierrors.ConfigurationError("failed to compute collection name", err)
	}
	m := project.New(opts.ProjectPath, name, opts.GitIdentifier, opts.Hybrid, opts.EmbeddingModel, dimension)
	if err := m.Save(opts.ProjectPath); err != nil {
		return "", nil, apierrors.IOError("failed to persist initial project metadata", err)
	}
	return name, m, nil
}

func (c *Controller) ensureCollection(ctx context.Context, name string, dimension int, hybrid bool) error {
	exists, err := c.deps.Store.HasCollection(ctx, name)
	if err != nil {
		return apierrors.VectorStoreFailure("failed to check collection existence", err)
	}
	if exists {
		return nil
	}
	return c.deps.Store.CreateCollection(ctx, name, dimension, hybrid)
}

func (c *Controller) discover(ctx context.Context, opts Options, reporter progress.Reporter) (map[string]struct{}, error) {
	results, err := c.deps.Walker.Walk(ctx, walker.Options{
		Root:             opts.ProjectPath,
		Extensions:       opts.Extensions,
		ExcludePatterns:  opts.ExcludePatterns,
		RespectGitignore: opts.RespectGitignore,
		MaxFileSize:      opts.MaxFileSize,
	}, nil)
	if err != nil {
		return nil, apierrors.IOError("failed to walk project tree", err)
	}

	current := make(map[string]struct{})
	count := 0
	for r := range results {
		if r.Err != nil {
			continue
		}
		rel, err := filepath.Rel(opts.ProjectPath, r.Path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		current[rel] = struct{}{}
		count++
		if count%200 == 0 {
			reporter.Emit(progress.Event{Phase: progress.PhaseDiscovering, Current: count, Detail: rel})
		}
	}
	reporter.Emit(progress.Event{Phase: progress.PhaseDiscovering, Current: count, Total: count, Percentage: 100})
	return current, nil
}

// diff computes the changed/deleted/unchanged sets between currentFiles
// and the hash cache. The content of each changed file is read here and
// carried forward, so the chunking stage never re-reads a file already
// read for hashing.
func (c *Controller) diff(projectPath string, cache *hashcache.Cache, currentFiles map[string]struct{}) (changed []fileContent, deleted []string, unchanged []string) {
	rels := make([]string, 0, len(currentFiles))
	for rel := range currentFiles {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		data, err := os.ReadFile(filepath.Join(projectPath, rel))
		if err != nil {
			continue
		}
		hash := hashcache.HashContent(data)
		if cache.HasFileChanged(rel, hash) {
			changed = append(changed, fileContent{
				relativePath: rel,
				extension:    filepath.Ext(rel),
				hash:         hash,
				data:         data,
			})
		} else {
			unchanged = append(unchanged, rel)
		}
	}
	deleted = cache.GetDeletedFiles(currentFiles)
	sort.Strings(deleted)
	return changed, deleted, unchanged
}

func filterForPath(relativePath string) string {
	return fmt.Sprintf("relativePath == %q", relativePath)
}
