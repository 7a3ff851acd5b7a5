package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	tutor "github.com/babelforce/tutor-go"
)

type ClientConfig struct {
	Dial   DialConfig
	Config Config
}

func (c *ClientConfig) Defaults() {
	c.Config.Defaults()
	c.Dial.Defaults()
}

type DialConfig struct {
	URL            string
	ConnectTimeout time.Duration
	Headers        http.Header
}

func (d *DialConfig) Defaults() {
	if d.ConnectTimeout == 0 {
		d.ConnectTimeout = 10 * time.Second
	}
}

func (d *DialConfig) doDial(ctx context.Context) (*websocket.Conn, *http.Response, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, nil, err
	}

	var header = http.Header{}
	for k, v := range d.Headers {
		for _, vv := range v {
			header.Add(k, vv)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.ConnectTimeout)
	defer cancel()
	return websocket.DefaultDialer.DialContext(dialCtx, u.String(), header)
}

// Connect dials the endpoint. The connection is served until ctx is done or the
// transport is closed.
func Connect(ctx context.Context, config ClientConfig) (*WebsocketTransport, error) {
	config.Defaults()

	logger := config.Config.Logger.With(
		slog.String("transport", "websocket"),
		slog.String("component", "client"),
		slog.String("endpoint", config.Dial.URL),
	)

	logger.Debug("Connecting to websocket endpoint")

	conn, resp, err := config.Dial.doDial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.Dial.URL, err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	logger = logger.With(slog.String("remote_addr", conn.RemoteAddr().String()))
	logger.Debug("Websocket connection established")

	t := newTransport(conn, config.Config, logger)
	go t.processConnection(ctx)

	return t, nil
}

func Client(config ClientConfig) tutor.TransportFactory {
	return func(ctx context.Context) (tutor.Transport, error) {
		return Connect(ctx, config)
	}
}
