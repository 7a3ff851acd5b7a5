// Command tutor serves the AI-tutor session page and drives its sessions.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/babelforce/tutor-go/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type rootArgs struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
}

var args rootArgs

var rootCmd = &cobra.Command{
	Use:           "tutor",
	Short:         "Host for live AI-tutor sessions",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&args.configFile, "config", "", "config file (default ./tutor.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&args.envFile, "env-file", "", "env file (default ./.env if present)")
	rootCmd.PersistentFlags().StringVar(&args.logLevel, "log-level", "", "log level, overrides config")
	rootCmd.PersistentFlags().StringVar(&args.logFormat, "log-format", "", "log format (text|json), overrides config")

	rootCmd.AddCommand(serveCmd, watchCmd)
}

// loadConfig loads the layered config, applies flag overrides and installs
// the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Sources{
		ConfigFile: args.configFile,
		EnvFile:    args.envFile,
	})
	if err != nil {
		return nil, err
	}

	if args.logLevel != "" {
		cfg.Log.Level = args.logLevel
	}
	if args.logFormat != "" {
		cfg.Log.Format = args.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return cfg, nil
}

func newLogger(w io.Writer, c config.Log) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level [%s]: %w", c.Level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
}
