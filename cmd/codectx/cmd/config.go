package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codectx/codectx/internal/config"
	"github.com/codectx/codectx/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/global configuration file.

User configuration contains machine-wide defaults that apply to every
project indexed on this machine, such as the embedding endpoint and
model, vector store backend, and performance tuning.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/codectx/config.yaml)
  3. Project config (.codectx.yaml)
  4. Environment variables (CODECTX_*)`,
		Example: `  # Create user config with defaults
  codectx config init

  # Print user config file path
  codectx config path

  # Back up the current user config
  codectx config backup

  # Restore a previous backup
  codectx config restore ~/.config/codectx/config.yaml.bak.20260101-120000`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user/global configuration file with default settings.

The file is created at ~/.config/codectx/config.yaml (or
$XDG_CONFIG_HOME/codectx/config.yaml if XDG_CONFIG_HOME is set).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Back up and overwrite an existing configuration")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func newConfigBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the user config file",
		Long:  `Write a timestamped copy of the user config file, keeping the most recent backups and pruning older ones.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigBackup(cmd)
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore the user config file from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigRestore(cmd, args[0])
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	configPath := config.GetUserConfigPath()
	configDir := config.GetUserConfigDir()

	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Newline()
			out.Status("💡", "Use --force to back up and overwrite it")
			return nil
		}

		backupPath, err := config.BackupUserConfig()
		if err != nil {
			return fmt.Errorf("failed to back up existing config: %w", err)
		}
		out.Successf("Backed up existing config to %s", backupPath)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	if err := config.NewConfig().WriteYAML(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", configPath)
	return nil
}

func runConfigBackup(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	backupPath, err := config.BackupUserConfig()
	if err != nil {
		return fmt.Errorf("failed to back up config: %w", err)
	}
	if backupPath == "" {
		out.Warning("No user configuration exists to back up")
		out.Statusf("💡", "Run 'codectx config init' to create one")
		return nil
	}

	out.Success("Backed up user configuration")
	out.Statusf("💾", "Backup: %s", backupPath)
	return nil
}

func runConfigRestore(cmd *cobra.Command, backupPath string) error {
	out := output.New(cmd.OutOrStdout())

	if err := config.RestoreUserConfig(backupPath); err != nil {
		return fmt.Errorf("failed to restore config: %w", err)
	}

	out.Success("Restored user configuration")
	out.Statusf("📁", "Location: %s", config.GetUserConfigPath())
	return nil
}
