package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jward/genstore"
	"github.com/jward/genstore/internal/config"
)

var (
	flagDB       string
	flagConfig   string
	flagFormat   string
	flagBackend  string
	flagReadOnly bool
	flagDebug    bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// Loaded once per invocation by the root PersistentPreRunE.
var (
	cfg    config.Config
	logger *zap.SugaredLogger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "genstore",
	Short:         "Embedded genealogical object store",
	Long:          "genstore opens, inspects and maintains a family tree store: people, families, events, places, sources, repositories, media and notes.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		c, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		cfg = c
		logger, err = newLogger(cfg.LogLevel, flagDebug)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "store directory (default: .genstore in the current directory)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML settings file")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "storage engine: sqlite|badger (overrides the settings file)")
	rootCmd.PersistentFlags().BoolVar(&flagReadOnly, "readonly", false, "open the store read-only")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose development logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(backlinksCmd)
	rootCmd.AddCommand(surnamesCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(lockCmd)
}

// newLogger builds the diagnostics logger. Logs go to stderr so stdout stays
// machine-readable.
func newLogger(level string, debug bool) (*zap.SugaredLogger, error) {
	if debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
		return l.Sugar(), nil
	}
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zc.Level = lvl
	}
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return l.Sugar(), nil
}

// resolveDBPath returns the store directory from the --db flag or the default.
func resolveDBPath() (string, error) {
	dir := flagDB
	if dir == "" {
		dir = ".genstore"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	return abs, nil
}

// storeOptions merges the settings file with the command-line overrides.
func storeOptions(readOnly bool) []genstore.Option {
	backend := cfg.Backend
	if flagBackend != "" {
		backend = flagBackend
	}
	var opts []genstore.Option
	if backend != "" {
		opts = append(opts, genstore.WithBackend(backend))
	}
	if readOnly || flagReadOnly || cfg.ReadOnly {
		opts = append(opts, genstore.ReadOnly())
	}
	if cfg.UndoCapacity > 0 {
		opts = append(opts, genstore.WithUndoCapacity(cfg.UndoCapacity))
	}
	if cfg.Language != "" {
		opts = append(opts, genstore.WithLanguage(cfg.Language))
	}
	for k, format := range cfg.Formats() {
		opts = append(opts, genstore.WithIDFormat(k, format))
	}
	if logger != nil {
		opts = append(opts, genstore.WithLogger(logger))
	}
	return opts
}

// openStore opens an existing store. Commands that only read pass
// readOnly=true so they never take the lock.
func openStore(readOnly bool) (*genstore.DB, error) {
	dir, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("store not found: %s (run 'genstore init' first)", dir)
	}
	return genstore.Open(dir, storeOptions(readOnly)...)
}
