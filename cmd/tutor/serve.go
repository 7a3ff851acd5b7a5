package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/babelforce/tutor-go/backend"
	"github.com/babelforce/tutor-go/metrics"
	"github.com/babelforce/tutor-go/view"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tutor page and run the session controller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
		}

		m := metrics.New()

		client, err := backend.New(
			cfg.Backend.URL,
			backend.WithAPIKey(cfg.Backend.APIKey),
			backend.WithStartPath(cfg.Backend.StartPath),
			backend.WithEndPath(cfg.Backend.EndPath),
			backend.WithHealthPath(cfg.Backend.HealthPath),
			backend.WithStatusPath(cfg.Backend.StatusPath),
			backend.WithRequestObserver(m.ObserveRequest),
		)
		if err != nil {
			return err
		}

		host := view.New(client, view.Config{
			Addr:           cfg.HTTP.Addr,
			RequestTimeout: cfg.Backend.Timeout,
			StatusInterval: cfg.Backend.StatusInterval,
			PollInterval:   cfg.Connectivity.Interval,
			PollTimeout:    cfg.Connectivity.Timeout,
			JournalSize:    cfg.Journal.Size,
			Metrics:        m,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("starting tutor host",
			slog.String("addr", cfg.HTTP.Addr),
			slog.String("backend", cfg.Backend.URL),
		)

		return host.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides http.addr")
}
