package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ntpdate/pkg/config"
	"ntpdate/pkg/syncer"
	"ntpdate/pkg/ui"
)

// defaultConfigPath is where config init writes when --config is not given
const defaultConfigPath = ".ntpdate.yaml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage ntpdate configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (NTPDATE_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.ntpdate.yaml'
unless a different path is specified with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration and retry schedule",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration from all sources.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Retry policy consistency
  - Non-retryable error kinds`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# ntpdate configuration file
#
# Environment variables prefixed with NTPDATE_ override these values,
# for example NTPDATE_HOST or NTPDATE_RETRIES.

ntp:
  # Remote NTP host to query
  host: "pool.ntp.org"

  # Timeout for a single query
  timeout: 5s

  # NTP protocol version (2-4)
  version: 4

retry:
  # Retry a failed query up to this many times (0 disables retrying)
  retries: 30

  # Wait before the first retry
  initial_delay: 1s

  # Each later wait is the previous one times this factor (must be > 1)
  backoff_factor: 2.0

  # Upper bound for a single wait, 0 means unbounded
  max_delay: 0s

  # Error kinds that are never retried. Known kinds: network, timeout,
  # rate_limit, not_found, config, permission, command, cancelled, unknown
  non_retryable:
    - not_found
    - config

clock:
  # Set the system clock to the remote time
  set_system: false

  # Also write the hardware clock from the system clock
  # Requires set_system
  set_hwclock: false

logging:
  # Log level: debug, info, warn, error, disabled
  level: "info"

  # Log file path (optional), rotated by size
  file: ""

  # Maximum log file size in MB
  max_size: 10

  # Maximum number of old log files to keep
  max_backups: 3

  # Maximum age of log files in days
  max_age: 7

  compress: false
  no_color: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	out := ui.NewPrinter(cmd.OutOrStdout(), noColor)

	configPath := configFile
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err == nil {
		out.Line("To overwrite, first remove the existing file:")
		out.Line("  rm " + configPath)
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	out.Success("Configuration file created: " + configPath)
	out.Line("")
	out.Line("Next steps:")
	out.Line("1. Edit the configuration file")
	out.Line("2. Run 'ntpdate config validate' to check it")
	out.Line("3. Run 'ntpdate' to query the configured host")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := ui.NewPrinter(cmd.OutOrStdout(), noColor)

	cfg, err := config.Load(configFile, changedFlags(cmd.Flags(), nil))
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	out.Highlight("Current Configuration")
	out.Line("")
	fmt.Fprint(cmd.OutOrStdout(), string(data))

	retryCfg, err := syncer.RetryConfig(cfg, nil)
	if err != nil {
		return err
	}

	out.Line("")
	out.Highlight("Retry Schedule")
	out.Schedule(retryCfg.Schedule(), retryCfg.TotalDelay())

	out.Line("")
	out.Line("Configuration sources (in order of priority):")
	out.Line("1. Command line flags")
	out.Line("2. Environment variables (NTPDATE_*)")
	if configFile != "" {
		out.Line("3. Configuration file: " + configFile)
	} else {
		out.Line("3. Configuration file: (searched default locations)")
	}
	out.Line("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := ui.NewPrinter(cmd.OutOrStdout(), noColor)

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return fmt.Errorf("configuration file not readable: %w", err)
		}
		out.Info("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, changedFlags(cmd.Flags(), nil))
	if err != nil {
		out.Error("Configuration has errors")
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				out.Line("  - " + e.Error())
			}
		}
		return err
	}

	retryCfg, err := syncer.RetryConfig(cfg, nil)
	if err != nil {
		return err
	}
	if err := retryCfg.Validate(); err != nil {
		return err
	}

	if cfg.Clock.SetSystem && os.Geteuid() != 0 {
		out.Warning("Configuration warnings")
		out.Line("  - set_system is enabled but not running as root")
		out.Line("")
	}

	out.Success("Configuration is valid")

	out.Line("")
	out.Line("Configuration summary:")
	out.Line(fmt.Sprintf("  Host: %s", cfg.NTP.Host))
	out.Line(fmt.Sprintf("  Attempts: %d (%d retries)", retryCfg.MaxAttempts, cfg.Retry.Retries))
	out.Line(fmt.Sprintf("  Worst case wait: %s", retryCfg.TotalDelay()))
	out.Line(fmt.Sprintf("  Log level: %s", cfg.Logging.Level))
	return nil
}
