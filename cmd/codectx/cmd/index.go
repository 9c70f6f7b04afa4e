package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/index"
	"github.com/codectx/codectx/internal/indexlog"
	"github.com/codectx/codectx/internal/logging"
	"github.com/codectx/codectx/internal/progress"
	"github.com/codectx/codectx/internal/ui"
	"github.com/codectx/codectx/internal/watcher"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI  bool
		hybrid bool
		clean  bool
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This walks the working tree, diffs it against the project's hash cache,
chunks and embeds what changed, and upserts the result into the vector
store's collection for this project.

Use --clean to drop the existing collection and reindex from scratch.
Use --hybrid when creating a new collection to also build a sparse index.
Use --watch to keep reindexing as files change, until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if err := runIndex(ctx, cmd, path, noTUI, hybrid, clean); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return runWatch(ctx, cmd, path, noTUI, hybrid)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&hybrid, "hybrid", false, "Build a sparse index alongside the dense one for new collections")
	cmd.Flags().BoolVar(&clean, "clean", false, "Drop the existing collection and hash cache, then reindex from scratch")
	cmd.Flags().BoolVar(&watch, "watch", false, "After the initial index, watch for changes and reindex incrementally")

	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, noTUI, hybrid, clean bool) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	root, err := resolveProjectRoot(path)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", root)
	}

	cfg := loadConfig(root)

	var runLog *indexlog.Logger
	if l, logErr := indexlog.New(root); logErr == nil {
		runLog = l
		defer runLog.Close()
		_ = runLog.Info("run_started", map[string]any{"hybrid": hybrid, "clean": clean})
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithProjectDir(root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}
	controller, err := index.New(deps)
	if err != nil {
		return fmt.Errorf("failed to create index controller: %w", err)
	}

	reporter := progress.NewChannelReporter(32)
	done := make(chan struct{})
	go func() {
		ui.DrainProgress(renderer, reporter.Events())
		close(done)
	}()

	opts := index.Options{
		ProjectPath:      root,
		Hybrid:           hybrid,
		Clean:            clean,
		GitIdentifier:    gitIdentifier(root),
		EmbeddingModel:   cfg.Embeddings.Model,
		Extensions:       indexExtensions,
		ExcludePatterns:  cfg.Paths.Exclude,
		RespectGitignore: true,
	}

	result, runErr := controller.Run(ctx, opts, reporter)
	reporter.Close()
	<-done

	if runErr != nil {
		if runLog != nil {
			_ = runLog.Error("run_failed", map[string]any{"error": runErr.Error()})
		}
		return fmt.Errorf("indexing failed: %w", runErr)
	}

	if runLog != nil {
		_ = runLog.Info("run_completed", map[string]any{
			"collection":    result.CollectionName,
			"indexed_files": result.IndexedFiles,
			"total_chunks":  result.TotalChunks,
		})
	}

	renderer.Complete(ui.CompletionStatsFromResult(result, ui.EmbedderInfo{
		Backend:    cfg.VectorStore.Backend,
		Model:      cfg.Embeddings.Model,
		Dimensions: deps.Embedder.GetDimension(),
	}))

	slog.Info("index_command_complete",
		slog.String("collection", result.CollectionName),
		slog.String("status", result.Status))
	return nil
}

// runWatch starts a HybridWatcher over root and reindexes on every
// debounced batch of file events, until ctx is cancelled. A reindex
// already in flight absorbs events that arrive during it, since the
// hash cache diff limits each run to what's actually changed.
func runWatch(ctx context.Context, cmd *cobra.Command, path string, noTUI, hybrid bool) error {
	root, err := resolveProjectRoot(path)
	if err != nil {
		return err
	}
	cfg := loadConfig(root)

	opts := watcher.DefaultOptions()
	if d, err := time.ParseDuration(cfg.Performance.WatchDebounce); err == nil && d > 0 {
		opts.DebounceWindow = d
	}

	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx, root); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes (Ctrl+C to stop)...\n", root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		case _, ok := <-w.Events():
			if !ok {
				return nil
			}
			if err := runIndex(ctx, cmd, path, noTUI, hybrid, false); err != nil {
				slog.Warn("reindex failed", slog.String("error", err.Error()))
			}
		}
	}
}

// indexExtensions is the language set codectx's chunker understands.
var indexExtensions = []string{
	".go", ".js", ".jsx", ".ts", ".tsx", ".py", ".rs", ".java", ".rb", ".c", ".h", ".cpp", ".hpp",
	".md", ".mdx", ".txt", ".yaml", ".yml", ".json",
}
