// Command apron runs the apron response engine: an HTTP server for
// controller consoles and an interactive terminal agent sharing the same
// pipeline.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/airside-ops/apron/pkg/version"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "apron",
	Short: "Apron emergency response engine",
	Long: `Apron turns free-form controller reports about apron and runway
emergencies (fuel spills, bird strikes, foreign object debris) into a
guided response procedure: structured incident facts, risk scoring,
drill-compliant phase tracking, and a final disposal report.`,
	Version:       version.GitCommit,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		loaded := loadEnv(envFile)
		setupLogging(cmd.Name() == "run-agent")
		if loaded {
			slog.Info("Loaded environment", "path", envFile)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runAgentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadEnv loads the optional .env file. A missing file at the default
// path is the normal case and stays silent.
func loadEnv(path string) bool {
	if err := godotenv.Load(path); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Could not load env file", "path", path, "error", err)
		}
		return false
	}
	return true
}

// setupLogging installs the process logger from LOG_LEVEL and LOG_FORMAT.
// The interactive agent owns stdout, so it defaults to warn unless the
// operator asks for more.
func setupLogging(interactive bool) {
	level := slog.LevelInfo
	if interactive {
		level = slog.LevelWarn
	}
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
