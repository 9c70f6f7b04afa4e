package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/hashcache"
	"github.com/codectx/codectx/internal/project"
	"github.com/codectx/codectx/internal/ui"
)

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show index configuration and statistics",
		Long: `Display the ProjectMetadata codectx recorded for this project's
index: the collection name, embedding model and dimension, hybrid flag,
and file/chunk counts as of the last run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndexInfo(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runIndexInfo(_ context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	root, err := resolveProjectRoot(path)
	if err != nil {
		return err
	}

	meta, err := project.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load project metadata: %w", err)
	}
	if meta == nil {
		return fmt.Errorf("no index found at %s\nRun 'codectx index %s' to create one", root, path)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}
	return outputIndexInfoHuman(cmd, meta)
}

func outputIndexInfoHuman(cmd *cobra.Command, meta *project.Metadata) error {
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())

	embedderStatus := "ready"
	if meta.EmbeddingModel == "" {
		embedderStatus = "error"
	}

	info := ui.StatusInfo{
		ProjectName:    filepath.Base(meta.ProjectPath),
		TotalFiles:     meta.IndexedFileCount,
		TotalChunks:    meta.TotalChunks,
		LastIndexed:    meta.LastIndexed,
		MetadataSize:   fileSize(filepath.Join(meta.ProjectPath, project.FileName)),
		BM25Size:       0, // the local vector store keeps its sparse index in memory only
		VectorSize:     0, // and its dense index likewise, so neither has an on-disk footprint
		EmbedderType:   embedderBackendLabel(meta),
		EmbedderStatus: embedderStatus,
		EmbedderModel:  meta.EmbeddingModel,
		WatcherStatus:  "n/a",
	}
	info.TotalSize = info.MetadataSize + hashCacheSize(meta.ProjectPath)

	return renderer.Render(info)
}

// embedderBackendLabel reports the hybrid vs dense-only index kind, since
// ProjectMetadata doesn't separately record which embedder backend
// produced its vectors.
func embedderBackendLabel(meta *project.Metadata) string {
	if meta.IsHybrid {
		return "hybrid (dense + BM25)"
	}
	return "dense"
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func hashCacheSize(projectPath string) int64 {
	return fileSize(filepath.Join(projectPath, hashcache.FileName))
}
