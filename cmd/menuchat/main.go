// Command menuchat runs the restaurant menu chat client and its demo backend.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/menuchat/internal/config"
	"github.com/xiaot623/gogo/menuchat/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "menuchat",
	Short: "Chat with the restaurant menu assistant",
	Long: `menuchat streams answers about the restaurant menu over a websocket.

Examples:
  menuchat serve                 # Start the demo chat backend on :8000
  menuchat chat                  # Chat from the terminal
  menuchat chat --url ws://host:8000/ws/chat`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
	logFile    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overlaid on environment settings")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this rotating file")
}

// loadConfig builds the configuration from env, the optional file and flags.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}
	return cfg, nil
}

// newLogger returns the root logger and a cleanup func.
func newLogger(cfg *config.Config) (zerolog.Logger, func()) {
	logger, closer := logging.New(cfg.Logging)
	return logger, func() { closer.Close() }
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
