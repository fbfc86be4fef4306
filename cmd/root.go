// Package cmd wires the codeflow CLI: an interactive chat client for a
// generative coding agent backend, plus offline replay of cached sessions.
package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"codeflow/internal/settings"
)

var (
	flagConfigDir string
	flagLogLevel  string

	settingsManager *settings.Manager
)

// NewRootCmd creates the root command for codeflow.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "codeflow",
		Short:         "Streaming chat client for a generative coding agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "",
		"config directory (default ~/.codeflow)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"log level: debug, info, warn, error (overrides settings)")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func setup() error {
	var err error
	if flagConfigDir != "" {
		settingsManager, err = settings.NewManagerAt(flagConfigDir)
	} else {
		settingsManager, err = settings.NewManager()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize settings: %w", err)
	}

	level := settingsManager.GetSettings().LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	return nil
}
