package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/proto"
	"github.com/babelforce/tutor-go/transport/ws"
	"github.com/babelforce/tutor-go/view"
)

type watchArgs struct {
	url   string
	grant bool
}

var watch = watchArgs{
	url: "ws://127.0.0.1:8080/ws",
}

// watchCmd attaches a headless view to a running host. It logs every snapshot
// and answers media prompts with --grant.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running host's session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		t, err := ws.Connect(ctx, ws.ClientConfig{Dial: ws.DialConfig{URL: watch.url}})
		if err != nil {
			return err
		}

		return runWatch(ctx, t, watch.grant, slog.Default())
	},
}

func init() {
	watchCmd.Flags().StringVar(&watch.url, "url", watch.url, "websocket url of the host")
	watchCmd.Flags().BoolVar(&watch.grant, "grant", false, "grant media permission prompts")
}

func runWatch(ctx context.Context, t tutor.Transport, grant bool, logger *slog.Logger) error {
	defer func() {
		_ = t.Close(context.Background())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pkg, ok := <-t.Control().ReadChan():
			if !ok {
				return fmt.Errorf("host went away")
			}

			msg, err := proto.ParseMessage(pkg.Data)
			if err != nil {
				logger.Error("parsing message failed", slog.Any("err", err))
				continue
			}

			switch m := msg.(type) {
			case *proto.Event:
				if m.Event != view.EventSnapshot {
					continue
				}
				s, err := proto.As[tutor.Snapshot](m.Data)
				if err != nil {
					logger.Error("bad snapshot", slog.Any("err", err))
					continue
				}
				logSnapshot(logger, s)

			case *proto.Request:
				if m.Method != view.MethodMediaPermission {
					continue
				}
				logger.Info("answering media prompt", slog.Bool("granted", grant))
				data, err := json.Marshal(m.Ok(&view.PermissionResult{Granted: grant}))
				if err != nil {
					return err
				}
				if err := t.Control().Write(data); err != nil {
					return err
				}
			}
		}
	}
}

func logSnapshot(logger *slog.Logger, s *tutor.Snapshot) {
	attrs := []any{
		slog.Any("state", s.State),
		slog.Any("connectivity", s.Connectivity),
		slog.Bool("can_start", s.CanStart),
	}
	if s.Descriptor != nil {
		attrs = append(attrs, slog.String("session_id", s.Descriptor.ID), slog.String("join_url", s.Descriptor.JoinURL))
	}
	if s.Error != nil {
		attrs = append(attrs, slog.Any("error_kind", s.Error.Kind), slog.String("error", s.Error.Message))
	}
	if s.Renderable {
		attrs = append(attrs, slog.Uint64("render_token", s.RenderToken))
	}
	logger.Info("snapshot", attrs...)
}
