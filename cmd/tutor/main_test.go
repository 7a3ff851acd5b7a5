package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/config"
	"github.com/babelforce/tutor-go/proto"
	"github.com/babelforce/tutor-go/transport/direct"
	"github.com/babelforce/tutor-go/view"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, config.Log{Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "shown", line["msg"])
	require.Equal(t, "v", line["k"])

	_, err = newLogger(&buf, config.Log{Level: "loud"})
	require.Error(t, err)
}

func TestRunWatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	host, watcher := direct.NewPair()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	errc := make(chan error, 1)
	go func() {
		errc <- runWatch(ctx, watcher, true, logger)
	}()

	evt, err := json.Marshal(proto.NewEvent(view.EventSnapshot, tutor.Snapshot{State: tutor.StateLive}))
	require.NoError(t, err)
	require.NoError(t, host.Control().Write(evt))

	req := proto.NewRequest(view.MethodMediaPermission, nil)
	data, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, host.Control().Write(data))

	pkg := <-host.Control().ReadChan()
	msg, err := proto.ParseMessage(pkg.Data)
	require.NoError(t, err)
	res, ok := msg.(*proto.Response)
	require.True(t, ok)
	require.Equal(t, req.ID, res.Response)

	result, err := proto.As[view.PermissionResult](res.Result)
	require.NoError(t, err)
	require.True(t, result.Granted)

	// the host leaving ends the watch
	require.NoError(t, host.Close(ctx))
	require.Error(t, <-errc)
	require.Contains(t, buf.String(), "state=live")
}
