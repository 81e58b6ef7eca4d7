// Package cli provides the command-line interface for modrules
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zakazane/modrules/internal/state"
	"github.com/zakazane/modrules/pkg/config"
	"github.com/zakazane/modrules/pkg/logger"
	"github.com/zakazane/modrules/pkg/types"
)

// EnvPrefix prefixes every environment variable the CLI reads
const EnvPrefix = "MODRULES"

// CLI holds the command tree and everything the commands share. It carries
// no package-level state, so tests can run several instances side by side.
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	manager  *config.Manager
	state    *state.Manager
	logger   logger.Logger
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &CLI{
		config:   cfg,
		viper:    viper.New(),
		manager:  config.NewManager(),
		logger:   logger.NewNopLogger(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	c.setupCommands()
	return c
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	c := NewCLI(cfg)
	c.output = output
	c.errorOut = errorOut
	c.rootCmd.SetOut(output)
	c.rootCmd.SetErr(errorOut)
	return c
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

// Execute is the entry point used by the modrules binary
func Execute(version string) error {
	cfg := NewConfig()
	cfg.Version = version
	return NewCLI(cfg).Execute(os.Args[1:])
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "modrules",
		Short: "Evaluate build-module descriptors for a build context",
		Long: `modrules turns module descriptors into dependency lists and
version-gated compile definitions for one build context (editor or
runtime build, host engine version).`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("modrules v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newResolveCmd())
	c.rootCmd.AddCommand(c.newValidateCmd())
	c.rootCmd.AddCommand(c.newListCmd())
	c.rootCmd.AddCommand(c.newStatusCmd())
	c.rootCmd.AddCommand(c.newInitCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "descriptor file (default: modrules.config.json in --root)")
	flags.StringVar(&c.config.ProjectRoot, "root", ".", "project root directory")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")

	_ = c.viper.BindPFlag("config", flags.Lookup("config"))
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	c.viper.SetEnvPrefix(EnvPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()

	if err := c.viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	c.config.ConfigFile = c.viper.GetString("config")

	c.logger = c.newLogger(c.config.Verbosity, "")
	c.state = state.NewManager(c.config.ProjectRoot, c.logger)
	return nil
}

// newLogger creates a logger writing to the CLI's error output and, if
// logFile is set, to that file as well
func (c *CLI) newLogger(level, logFile string) logger.Logger {
	if c.errorOut == os.Stderr {
		return logger.CreateLogger(logFile, level)
	}
	out := c.errorOut
	if logFile != "" {
		if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = io.MultiWriter(c.errorOut, file)
		}
	}
	return logger.CreateLoggerWithOutput(level, out)
}

// descriptorPath returns the descriptor file to use, or "" when none exists
func (c *CLI) descriptorPath() string {
	if c.config.ConfigFile != "" {
		return c.config.ConfigFile
	}
	path, err := config.FindConfig(c.config.ProjectRoot)
	if err != nil {
		return ""
	}
	return path
}

// loadDescriptorSet loads the descriptor file, falling back to the built-in
// plugin descriptors when no file exists. The returned path is empty for
// the built-in set.
func (c *CLI) loadDescriptorSet() (*types.DescriptorSet, string, error) {
	path := c.descriptorPath()
	if path == "" {
		c.logger.Debug("No descriptor file found, using built-in descriptors",
			logger.WithField("root", c.config.ProjectRoot))
		return c.manager.GetDefaultConfig(), "", nil
	}

	set, err := c.manager.LoadConfig(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load %s: %w", path, err)
	}
	c.applyLogging(set)
	c.logger.Debug("Loaded descriptor file", logger.WithField("file", path))
	return set, path, nil
}

// applyLogging honours the logging section of a descriptor file. An
// explicit --verbosity flag takes precedence over the file's level.
func (c *CLI) applyLogging(set *types.DescriptorSet) {
	if set.Logging == nil {
		return
	}
	level := c.config.Verbosity
	if set.Logging.Level != "" && !c.rootCmd.PersistentFlags().Changed("verbosity") {
		level = string(set.Logging.Level)
	}
	logFile := set.Logging.File
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(c.config.ProjectRoot, logFile)
	}
	if logFile == "" && level == c.config.Verbosity {
		return
	}
	c.logger = c.newLogger(level, logFile)
}

func (c *CLI) defaultConfigPath(format string) string {
	if c.config.ConfigFile != "" {
		return c.config.ConfigFile
	}
	name := config.DefaultFileName
	if format == "yaml" {
		name = "modrules.config.yaml"
	}
	return filepath.Join(c.config.ProjectRoot, name)
}

// Helper methods for user-facing output

func (c *CLI) printSuccess(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.GreenString("[modrules]"), message)
}

func (c *CLI) printError(message string) {
	fmt.Fprintf(c.errorOut, "%s %s\n", color.RedString("[modrules]"), message)
}

func (c *CLI) printInfo(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.CyanString("[modrules]"), message)
}

func (c *CLI) printWarning(message string) {
	fmt.Fprintf(c.output, "%s %s\n", color.YellowString("[modrules]"), message)
}
