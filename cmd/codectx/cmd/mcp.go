package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/index"
	"github.com/codectx/codectx/internal/mcpshell"
	"github.com/codectx/codectx/internal/search"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp [path]",
		Short: "Serve index_project/search_project as MCP tools over stdio",
		Long: `Run codectx as an MCP server, exposing index_project and
search_project tools so an AI coding assistant can call them directly
instead of shelling out to the CLI.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runMCP(cmd, path)
		},
	}
	return cmd
}

func runMCP(cmd *cobra.Command, path string) error {
	root, err := resolveProjectRoot(path)
	if err != nil {
		return err
	}
	cfg := loadConfig(root)

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}
	controller, err := index.New(deps)
	if err != nil {
		return fmt.Errorf("failed to create index controller: %w", err)
	}
	engine, err := search.NewEngine(deps.Store, deps.Embedder)
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	server, err := mcpshell.NewServer(root, controller, engine)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}
	return server.Run(cmd.Context())
}
