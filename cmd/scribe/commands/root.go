package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Meeting assistant: live transcription, notes, wiki publishing, and retrieval chat",
	Long: `scribe - a meeting-assistant pipeline.

Captures speech from two recognizers (a low-latency diarized stream and a
windowed batch model), merges them into one canonical meeting log,
summarizes with a language model, and publishes/searches the result
through a Confluence-style wiki with a retrieval chat agent.

Commands:
  serve    Run the API server (session control, notes, summaries, chat)
  review   Review labeled wiki pages and post review comments
  history  Summarize reviewed pages into a history comment
  version  Show version information

Configuration is a YAML file (default scribe.yaml); credentials may also
come from environment variables (OPENAI_API_KEY, CONFLUENCE_EMAIL,
CONFLUENCE_TOKEN, GRAPH_CLIENT_SECRET).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "scribe.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// setupLogger installs the process-wide slog handler.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
