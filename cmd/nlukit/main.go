// Package main provides the nlukit CLI entry point.
// nlukit manages an NLU knowledge base: entities, values, annotated samples,
// dataset export and synchronization with an external NLU provider.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chatforge/nlukit/internal/config"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "nlukit",
		Short: "NLU knowledge-base synchronization and retrieval engine",
		Long: `nlukit manages the knowledge base behind an NLU pipeline: entities,
their values and synonyms, annotated training samples, dataset export in the
Rasa format, and best-effort synchronization with an external NLU provider.

Configuration comes from NLUKIT_* environment variables, optionally overlaid
with a YAML file via --config.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newTrainCommand())
	root.AddCommand(newEvaluateCommand())
	root.AddCommand(newParseCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds the configuration from the environment plus the optional
// --config YAML overlay.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
