package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codectx/codectx/internal/chunk"
	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/embed"
	"github.com/codectx/codectx/internal/index"
	"github.com/codectx/codectx/internal/vectorstore"
	"github.com/codectx/codectx/internal/walker"
)

// buildEmbedder constructs the EmbeddingClient configured for cfg,
// wrapping it with the query cache the teacher's embed package provides.
func buildEmbedder(cfg *config.Config) embed.Client {
	httpClient := embed.NewHTTPClient(cfg.Embeddings)
	return embed.NewCachedClient(httpClient, cfg.Performance.CacheSize)
}

// buildStore constructs the VectorStore backend selected by
// cfg.VectorStore.Backend: "local" (in-process HNSW + bleve) or "http"
// (remote, talking to a vector database over its JSON wire contract).
func buildStore(cfg *config.Config) vectorstore.Store {
	if cfg.VectorStore.Backend == "http" {
		return vectorstore.NewHTTPStore(cfg.VectorStore.Endpoint, cfg.VectorStore.APIKey)
	}
	return vectorstore.NewLocalStore()
}

// buildDependencies assembles the full set of index.Controller
// collaborators from resolved configuration.
func buildDependencies(cfg *config.Config) (index.Dependencies, error) {
	w, err := walker.New()
	if err != nil {
		return index.Dependencies{}, fmt.Errorf("failed to create file walker: %w", err)
	}
	return index.Dependencies{
		Walker:   w,
		Chunker:  chunk.New(chunkOptionsFromConfig(cfg)),
		Embedder: buildEmbedder(cfg),
		Store:    buildStore(cfg),
	}, nil
}

func chunkOptionsFromConfig(cfg *config.Config) chunk.Options {
	opts := chunk.DefaultOptions()
	if cfg.Search.ChunkMaxTokens > 0 {
		opts.MaxChunkChars = cfg.Search.ChunkMaxTokens * 4
		opts.WindowChars = opts.MaxChunkChars
	}
	if cfg.Search.ChunkOverlap > 0 {
		opts.OverlapChars = cfg.Search.ChunkOverlap * 4
	}
	return opts
}

var originURLPattern = regexp.MustCompile(`url\s*=\s*(\S+)`)

// gitIdentifier reads the "origin" remote URL out of root's .git/config, so
// CollectionNamer can converge teammates sharing a remote onto the same
// collection name regardless of local checkout path. Returns "" if root
// isn't a git repo or has no origin remote.
func gitIdentifier(root string) string {
	f, err := os.Open(filepath.Join(root, ".git", "config"))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	inOrigin := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[remote") {
			inOrigin = strings.Contains(line, `"origin"`)
			continue
		}
		if strings.HasPrefix(line, "[") {
			inOrigin = false
			continue
		}
		if !inOrigin {
			continue
		}
		if m := originURLPattern.FindStringSubmatch(line); m != nil {
			return strings.TrimSuffix(m[1], ".git")
		}
	}
	return ""
}

func resolveProjectRoot(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}
	return root, nil
}

func loadConfig(root string) *config.Config {
	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	return cfg
}
