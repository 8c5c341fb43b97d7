// ABOUTME: CLI commands for inspecting and initializing configuration.
// ABOUTME: Runs without opening storage.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/harperreed/vitals/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Show or initialize configuration",
	Annotations: map[string]string{skipApp: "true"},
	Long: `Show or initialize vitals configuration.

Settings come from ~/.config/vitals/config.yaml (or $XDG_CONFIG_HOME), then
VITALS_* environment variables, then command-line flags.

ENVIRONMENT:

  VITALS_BACKEND, VITALS_DATA_DIR, VITALS_POSTGRES_DSN, VITALS_USER,
  VITALS_LOG_LEVEL, VITALS_LOG_FORMAT, VITALS_LOCK, VITALS_VALKEY_ADDR,
  VITALS_HTTP_ADDR, VITALS_MAX_UPLOAD_MB, VITALS_S3_ENDPOINT,
  VITALS_S3_ACCESS_KEY, VITALS_S3_SECRET_KEY, VITALS_S3_SECURE`,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.S3.SecretKey != "" {
			shown.S3.SecretKey = "********"
		}
		data, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", configPath())
		fmt.Fprintf(out, "# data dir: %s\n", cfg.GetDataDir())
		fmt.Fprint(out, string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a config file with default settings",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipApp: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().SaveTo(path); err != nil {
			return err
		}
		color.Green("✓ Wrote %s", path)
		return nil
	},
}

func configPath() string {
	if flagConfig != "" {
		return config.ExpandPath(flagConfig)
	}
	return config.GetConfigPath()
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
