package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fentz26/litscreen/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	apiAddr  string
	cfgFile  string
	logLevel string

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "litscreen",
	Short: "litscreen - literature screening pipeline",
	Long: `litscreen deduplicates bibliographic exports and screens them against
keyword blacklists and optional AI criteria. Run it one-shot with "screen" or
as a server with "serve" and drive it with submit, status, fetch and tui.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, used, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		slog.SetDefault(newLogger(level))
		if used != "" {
			slog.Debug("using config file", "path", used)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:5000", "API server address")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./litscreen.yaml or ~/.config/litscreen/litscreen.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
