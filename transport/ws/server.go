package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	tutor "github.com/babelforce/tutor-go"
)

type ServerConfig struct {
	Config

	// CheckOrigin defaults to gorilla's same-origin check.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades each request and hands the transport to accept, which runs
// on its own goroutine. The request is served until the connection is gone.
func Handler(config ServerConfig, accept func(ctx context.Context, t tutor.Transport)) http.HandlerFunc {
	config.Defaults()

	var upgrader = websocket.Upgrader{
		CheckOrigin: config.CheckOrigin,
	}

	baseLogger := config.Logger.With(
		slog.String("transport", "websocket"),
		slog.String("component", "server"),
	)

	return func(w http.ResponseWriter, r *http.Request) {
		logger := baseLogger.With(
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("path", r.URL.Path),
		)

		logger.Debug("handling websocket upgrade")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("upgrade failed", slog.Any("err", err))
			return
		}

		ctx := r.Context()
		t := newTransport(conn, config.Config, logger)
		go accept(ctx, t)
		t.processConnection(ctx)
	}
}
