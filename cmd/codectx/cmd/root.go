// Package cmd provides the CLI commands for codectx.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/logging"
	"github.com/codectx/codectx/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codectx CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codectx",
		Short: "Local hybrid search engine for codebases",
		Long: `codectx indexes a project's source tree and serves hybrid
(BM25 + semantic) search over it, entirely locally.

Run 'codectx index' in a project directory, then 'codectx search <query>'
to find relevant code.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("codectx version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the codectx log directory")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
