package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	tutor "github.com/babelforce/tutor-go"
)

// closeGrace bounds how long we wait for the peer to answer a close frame.
const closeGrace = 5 * time.Second

type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) Defaults() {
	if c.PingInterval == 0 {
		c.PingInterval = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func isControl(frameType int) bool {
	return frameType == websocket.CloseMessage || frameType == websocket.PingMessage || frameType == websocket.PongMessage
}

type wsMessage struct {
	mt   int
	data []byte
}

// WebsocketTransport carries proto messages as text frames. Binary frames are
// ignored.
type WebsocketTransport struct {
	conn      *websocket.Conn
	cc        *controlChannel
	msgOut    chan wsMessage
	done      chan struct{}
	stop      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
	config    Config
	logger    *slog.Logger
}

func (w *WebsocketTransport) Closed() <-chan struct{} {
	return w.done
}

func (w *WebsocketTransport) Control() tutor.DataChannel {
	return w.cc
}

// Close sends a close frame and waits until the connection is gone or ctx is
// done. The connection is torn down regardless once closeGrace has passed.
func (w *WebsocketTransport) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closing)
	})

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (w *WebsocketTransport) writeControl(mt int, data []byte) error {
	err := w.conn.WriteControl(mt, data, time.Now().Add(w.config.WriteTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (w *WebsocketTransport) shutdown() {
	w.logger.Debug("send control", slog.Int("mt", websocket.CloseMessage))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closed")
	if err := w.writeControl(websocket.CloseMessage, msg); err != nil {
		w.logger.Debug("write close failed", slog.Any("err", err))
		return
	}

	select {
	case <-w.done:
	case <-time.After(closeGrace):
		w.logger.Warn("peer did not answer close frame")
	}
}

// readLoop forwards text frames to the control channel until the connection
// fails. Control frames are handled by the connection's handlers.
func (w *WebsocketTransport) readLoop() {
	defer close(w.done)
	defer close(w.cc.input)

	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				w.logger.Debug("connection was closed by other peer", slog.Any("err", err))
			case errors.Is(err, net.ErrClosed):
				w.logger.Debug("connection closed", slog.Any("err", err))
			default:
				w.logger.Error("read failed", slog.Any("err", err))
			}
			return
		}

		if mt != websocket.TextMessage {
			w.logger.Warn("ignoring non-text frame", slog.Int("mt", mt), slog.Int("len", len(data)))
			continue
		}

		select {
		case w.cc.input <- tutor.DataPackage{Data: data, ReceivedAt: time.Now().UnixMilli()}:
		case <-w.stop:
			return
		}
	}
}

func (w *WebsocketTransport) processConnection(ctx context.Context) {
	defer func() {
		close(w.stop)
		if err := w.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			w.logger.Error("connection close failed", slog.Any("err", err))
		}
		<-w.done
		w.logger.Debug("transport processing done")
	}()

	go w.readLoop()

	pingTicker := time.NewTicker(w.config.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-w.done:
			return

		case <-ctx.Done():
			w.shutdown()
			return

		case <-w.closing:
			w.shutdown()
			return

		case <-pingTicker.C:
			if err := w.writeControl(websocket.PingMessage, nil); err != nil {
				w.logger.Error("write ping failed", slog.Any("err", err))
				return
			}

		case msg := <-w.msgOut:
			if isControl(msg.mt) {
				if err := w.writeControl(msg.mt, msg.data); err != nil {
					w.logger.Error("write control failed", slog.Any("err", err))
					return
				}
				continue
			}

			w.logger.Debug("send text", slog.String("data", string(msg.data)))
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
			if err := w.conn.WriteMessage(msg.mt, msg.data); err != nil {
				w.logger.Error("write text failed", slog.Any("err", err))
				return
			}
		}
	}
}

var _ tutor.Transport = &WebsocketTransport{}

func newTransport(conn *websocket.Conn, config Config, logger *slog.Logger) *WebsocketTransport {
	var (
		msgOut = make(chan wsMessage)
		done   = make(chan struct{})
	)

	conn.SetPingHandler(func(message string) error {
		logger.Debug("received ping")
		err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(config.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Timeout() {
			return nil
		}
		return err
	})

	conn.SetPongHandler(func(string) error {
		logger.Debug("received pong")
		return nil
	})

	return &WebsocketTransport{
		conn:    conn,
		cc:      newControlChannel(msgOut, done),
		msgOut:  msgOut,
		done:    done,
		stop:    make(chan struct{}),
		closing: make(chan struct{}),
		config:  config,
		logger:  logger,
	}
}
