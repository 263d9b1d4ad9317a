package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/wyattjoh/next-dev-utils/internal/config"
	"github.com/wyattjoh/next-dev-utils/internal/fault"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/security"
	"go.uber.org/zap"
)

// Command-line flags that can override config file settings
var (
	configFile string = "" // Path to config file
	logLevel   string = "" // Empty means use config file value
	logFile    string = "" // Empty means use config file value
	verbose    bool
)

// Set by initRuntime once flags are parsed.
var (
	configPath    string
	runID         string
	runLog        *zap.SugaredLogger
	loggerCleanup = func() {}
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newCLI().ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(err)
	}
	loggerCleanup()
	os.Exit(exitCode(err))
}

// newCLI returns the root command with input validation installed.
func newCLI() *cobra.Command {
	rootCmd := createRootCommand()
	security.Attach(rootCmd, security.DefaultLimits())
	return rootCmd
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "next-dev-utils",
		Short: "Pack and share local builds of Next.js",
		Long: `next-dev-utils packs packages from a local checkout into archives and
delivers them by URL: uploaded to an S3 compatible bucket, served from this
machine, or only described with --dry-run.

Use 'next-dev-utils pack' inside any package directory, or 'next-dev-utils
pack-next' to pack the framework together with its native binaries.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initRuntime,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path to tee logs (overrides configuration file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Debug logging and subprocess output")

	rootCmd.AddCommand(createPackCommand())
	rootCmd.AddCommand(createPackNextCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createCleanupCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createInstallCompletionCommand())

	return rootCmd
}

// initRuntime loads configuration and sets up logging after flag parsing.
func initRuntime(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}

	globalConfig, err := config.LoadGlobalConfig(path)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		globalConfig.Logging.Level = logLevel
	}
	if verbose {
		globalConfig.Logging.Level = "debug"
	}
	if logFile != "" {
		globalConfig.Logging.File = logFile
	}
	config.SetGlobal(globalConfig)
	configPath = path

	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    globalConfig.Logging.Level,
		FilePath: globalConfig.Logging.File,
	})
	if err != nil {
		return err
	}
	loggerCleanup = cleanup

	runID = uuid.New().String()
	runLog = logger.With("run", runID[:8])
	if path != "" {
		runLog.Debugf("Using configuration from: %s", path)
	}
	runLog.Debugf("Config: workers=%d, temp_dir=%s, digest=%s, retry=%s",
		config.Workers(), config.TempDir(), globalConfig.Digest.Algorithm, globalConfig.Upload.Retry)
	return nil
}

func reportError(err error) {
	label := "Error:"
	if fault.KindOf(err) == fault.Recoverable {
		label = "Warning:"
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint(label), err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// logr is runLog, or the global logger before initRuntime has run.
func logr() *zap.SugaredLogger {
	if runLog != nil {
		return runLog
	}
	return logger.Logger()
}
