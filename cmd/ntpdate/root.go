package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ntpdate/pkg/clock"
	"ntpdate/pkg/config"
	"ntpdate/pkg/logger"
	"ntpdate/pkg/ntp"
	"ntpdate/pkg/retry"
	"ntpdate/pkg/syncer"
	"ntpdate/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool

	// Sync flags
	setSystem     bool
	setHWClock    bool
	retries       int
	backoffFactor float64
	initialDelay  time.Duration
	timeout       time.Duration
)

// rootCmd queries a time server and optionally sets the local clocks
var rootCmd = &cobra.Command{
	Use:   "ntpdate [flags] [host]",
	Short: "Report or set the clock from a remote NTP host",
	Long: `ntpdate queries a remote NTP host and reports the local clock offset.

With --set-system the system clock is set to the remote time, and with
--set-hwclock the hardware clock is then written from the system clock.
Failed queries are retried with exponential backoff: the first retry waits
--initial-delay, and each later wait is --backoff-factor times the previous.

Assumes BSD or GNU date(1) and util-linux hwclock(8) where applicable.`,
	Args:          cobra.MaximumNArgs(1),
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.NewPrinter(os.Stderr, noColor).Error("fatal", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.ntpdate.yaml or $HOME/.config/ntpdate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	defaults := config.DefaultConfig()
	flags := rootCmd.Flags()
	flags.BoolVar(&setSystem, "set-system", false, "set system clock to remote time")
	flags.BoolVar(&setHWClock, "set-hwclock", false, "additionally set the hardware clock; may do nothing on platforms without hwclock(8)")
	flags.IntVar(&retries, "retries", defaults.Retry.Retries, "retry on failure up to N times")
	flags.Float64Var(&backoffFactor, "backoff-factor", defaults.Retry.BackoffFactor, "multiply the wait by this factor after each failed attempt")
	flags.DurationVar(&initialDelay, "initial-delay", defaults.Retry.InitialDelay, "wait before the first retry")
	flags.DurationVar(&timeout, "timeout", defaults.NTP.Timeout, "timeout for a single NTP query")

	rootCmd.SetVersionTemplate(`ntpdate {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// changedFlags collects the flags set on the command line, keyed the way
// config.MergeCommandLineFlags expects. Unset flags are left out so they do
// not override the config file or environment.
func changedFlags(fs *pflag.FlagSet, args []string) map[string]interface{} {
	flags := make(map[string]interface{})
	if len(args) > 0 {
		flags["host"] = strings.TrimSpace(args[0])
	}

	fs.Visit(func(f *pflag.Flag) {
		var (
			v   interface{}
			err error
		)
		switch f.Name {
		case "set-system", "set-hwclock", "no-color":
			v, err = fs.GetBool(f.Name)
		case "retries":
			v, err = fs.GetInt(f.Name)
		case "backoff-factor":
			v, err = fs.GetFloat64(f.Name)
		case "initial-delay", "timeout":
			v, err = fs.GetDuration(f.Name)
		case "log-level":
			v, err = fs.GetString(f.Name)
		default:
			return
		}
		if err == nil {
			flags[f.Name] = v
		}
	})

	return flags
}

// loadConfig loads configuration for cmd and builds its logger
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configFile, changedFlags(cmd.Flags(), args))
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Logging.NoColor && !ui.IsTerminal(os.Stderr) {
		cfg.Logging.NoColor = true
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	retryCfg, err := syncer.RetryConfig(cfg, log)
	if err != nil {
		return err
	}

	s := syncer.New(
		ntp.NewClient(cfg.NTP.Timeout, cfg.NTP.Version, log),
		clock.NewSystem(nil, log),
		retry.NewExecutor(retryCfg),
		log,
	)

	log.InfoWithFields("querying time server", map[string]interface{}{
		"host":        cfg.NTP.Host,
		"retries":     cfg.Retry.Retries,
		"max_wait":    retryCfg.TotalDelay().String(),
		"set_system":  cfg.Clock.SetSystem,
		"set_hwclock": cfg.Clock.SetHWClock,
	})

	result, err := s.Run(cmd.Context(), syncer.Options{
		Host:       cfg.NTP.Host,
		SetSystem:  cfg.Clock.SetSystem,
		SetHWClock: cfg.Clock.SetHWClock,
	})
	if err != nil {
		if n, ok := retry.RetryCountOf(err); ok && retry.ReasonOf(err) == retry.ReasonExhausted {
			return fmt.Errorf("gave up after %d retries: %w", n, err)
		}
		return err
	}

	out := ui.NewPrinter(cmd.OutOrStdout(), cfg.Logging.NoColor)
	if result.Synced {
		out.Success(result.Summary())
	} else {
		out.Line(result.Summary())
	}
	return nil
}
