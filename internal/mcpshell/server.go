// Package mcpshell exposes codectx's index and search operations as MCP
// tools, so an AI coding assistant can call them directly instead of
// shelling out to the CLI. It stays a thin collaborator: every tool
// handler delegates straight to index.Controller or search.Engine and
// formats the result, with no search or indexing logic of its own.
package mcpshell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codectx/codectx/internal/index"
	"github.com/codectx/codectx/internal/progress"
	"github.com/codectx/codectx/internal/project"
	"github.com/codectx/codectx/internal/search"
	"github.com/codectx/codectx/pkg/version"
)

// Server bridges AI clients to a single project's index controller and
// search engine over the MCP protocol.
type Server struct {
	mcp        *mcp.Server
	controller *index.Controller
	engine     *search.Engine
	projectDir string
	logger     *slog.Logger
}

// NewServer creates a Server for the given project directory, controller,
// and search engine. None of the arguments may be nil.
func NewServer(projectDir string, controller *index.Controller, engine *search.Engine) (*Server, error) {
	if controller == nil {
		return nil, errors.New("mcpshell: controller is required")
	}
	if engine == nil {
		return nil, errors.New("mcpshell: search engine is required")
	}

	s := &Server{
		controller: controller,
		engine:     engine,
		projectDir: projectDir,
		logger:     slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "codectx",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server, for Run/transport wiring.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves the MCP protocol over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_project",
		Description: "Index (or reindex) the current project so search_project has something to query. Safe to call repeatedly; only changed files are re-embedded.",
	}, s.handleIndexProject)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_project",
		Description: "Hybrid (BM25 + semantic) search over the project's index. Use this instead of grep for meaning-based code and documentation lookups.",
	}, s.handleSearchProject)
}

// IndexProjectInput is the index_project tool's input schema.
type IndexProjectInput struct {
	Clean bool `json:"clean,omitempty" jsonschema:"drop the existing collection and reindex from scratch"`
}

// IndexProjectOutput is the index_project tool's output schema.
type IndexProjectOutput struct {
	Status       string `json:"status"`
	IndexedFiles int    `json:"indexed_files"`
	TotalChunks  int    `json:"total_chunks"`
	Deleted      int    `json:"deleted"`
	Failures     int    `json:"failures"`
}

func (s *Server) handleIndexProject(ctx context.Context, _ *mcp.CallToolRequest, input IndexProjectInput) (
	*mcp.CallToolResult, IndexProjectOutput, error,
) {
	reporter := progress.NewChannelReporter(8)
	go func() {
		for range reporter.Events() {
		}
	}()

	result, err := s.controller.Run(ctx, index.Options{
		ProjectPath:      s.projectDir,
		Clean:            input.Clean,
		RespectGitignore: true,
	}, reporter)
	reporter.Close()
	if err != nil {
		return nil, IndexProjectOutput{}, fmt.Errorf("index_project: %w", err)
	}

	return nil, IndexProjectOutput{
		Status:       result.Status,
		IndexedFiles: result.IndexedFiles,
		TotalChunks:  result.TotalChunks,
		Deleted:      result.Deleted,
		Failures:     result.Failures,
	}, nil
}

// SearchProjectInput is the search_project tool's input schema.
type SearchProjectInput struct {
	Query  string `json:"query" jsonschema:"the search query"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Filter string `json:"filter,omitempty" jsonschema:"post-filter expression, e.g. fileExtension == \".go\""`
}

// SearchProjectOutput is the search_project tool's output schema.
type SearchProjectOutput struct {
	Results  []SearchResultOutput `json:"results"`
	Degraded bool                 `json:"degraded"`
}

// SearchResultOutput is one search hit in MCP-friendly shape.
type SearchResultOutput struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
}

func (s *Server) handleSearchProject(ctx context.Context, _ *mcp.CallToolRequest, input SearchProjectInput) (
	*mcp.CallToolResult, SearchProjectOutput, error,
) {
	if input.Query == "" {
		return nil, SearchProjectOutput{}, errors.New("search_project: query is required")
	}

	meta, err := project.Load(s.projectDir)
	if err != nil {
		return nil, SearchProjectOutput{}, fmt.Errorf("search_project: %w", err)
	}
	if meta == nil {
		return nil, SearchProjectOutput{}, errors.New("search_project: project is not indexed yet, call index_project first")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	outcome, err := s.engine.Search(ctx, search.Query{
		CollectionName: meta.CollectionName,
		Text:           input.Query,
		Limit:          limit,
		FilterExpr:     input.Filter,
		Dimension:      meta.EmbeddingDimension,
		Hybrid:         meta.IsHybrid,
	})
	if err != nil {
		return nil, SearchProjectOutput{}, fmt.Errorf("search_project: %w", err)
	}

	out := SearchProjectOutput{
		Results:  make([]SearchResultOutput, len(outcome.Results)),
		Degraded: outcome.DegradedMode,
	}
	for i, r := range outcome.Results {
		out.Results[i] = SearchResultOutput{
			Path:      r.RelativePath,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Score:     r.Score,
			Content:   r.Content,
		}
	}
	return nil, out, nil
}
