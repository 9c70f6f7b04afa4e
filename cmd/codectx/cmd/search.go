package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/logging"
	"github.com/codectx/codectx/internal/output"
	"github.com/codectx/codectx/internal/project"
	"github.com/codectx/codectx/internal/search"
)

type searchOptions struct {
	limit      int
	format     string
	filterExpr string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase using hybrid search: BM25 keyword
matching fused with semantic similarity via Reciprocal Rank Fusion.

Examples:
  codectx search "authentication middleware"
  codectx search "handleRequest" --limit 5
  codectx search "error handling" --filter 'fileExtension == ".go"'
  codectx search "setup instructions" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.filterExpr, "filter", "", `Filter expression, e.g. fileExtension == ".go"`)

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	root, err := resolveProjectRoot(".")
	if err != nil {
		return err
	}

	meta, err := project.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load project metadata: %w", err)
	}
	if meta == nil {
		return fmt.Errorf("no index found. Run 'codectx index' first")
	}

	cfg := loadConfig(root)
	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}

	engine, err := search.NewEngine(deps.Store, deps.Embedder)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	outcome, err := engine.Search(ctx, search.Query{
		CollectionName: meta.CollectionName,
		Text:           query,
		Limit:          opts.limit,
		FilterExpr:     opts.filterExpr,
		Dimension:      meta.EmbeddingDimension,
		Hybrid:         meta.IsHybrid,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.Int("results", len(outcome.Results)), slog.Bool("degraded", outcome.DegradedMode))

	if opts.format == "json" {
		return formatSearchJSON(cmd, outcome)
	}
	return formatSearchText(cmd, query, outcome)
}

type searchJSONResult struct {
	RelativePath string  `json:"relative_path"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Score        float64 `json:"score"`
	Content      string  `json:"content"`
}

func formatSearchJSON(cmd *cobra.Command, outcome search.Outcome) error {
	results := make([]searchJSONResult, len(outcome.Results))
	for i, r := range outcome.Results {
		results[i] = searchJSONResult{
			RelativePath: r.RelativePath,
			StartLine:    r.StartLine,
			EndLine:      r.EndLine,
			Score:        r.Score,
			Content:      r.Content,
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func formatSearchText(cmd *cobra.Command, query string, outcome search.Outcome) error {
	out := output.New(cmd.OutOrStdout())

	if len(outcome.Results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	if outcome.DegradedMode {
		out.Warning("collection has no sparse index; falling back to dense-only search")
	}

	out.Statusf("", "Found %d results for %q:", len(outcome.Results), query)
	out.Newline()

	for i, r := range outcome.Results {
		location := r.RelativePath
		if r.StartLine > 0 {
			location = fmt.Sprintf("%s:%d", r.RelativePath, r.StartLine)
		}
		out.Statusf("", "%d. %s (score: %.3f)", i+1, location, r.Score)
		for _, line := range snippet(r.Content, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	return nil
}

func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
