// Package view serves the browser front-end of a tutor session. The browser is
// a thin view: it renders snapshots pushed over a websocket, forwards user
// actions as requests and answers media permission prompts.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/connectivity"
	"github.com/babelforce/tutor-go/journal"
	"github.com/babelforce/tutor-go/media"
	"github.com/babelforce/tutor-go/metrics"
)

const shutdownTimeout = 5 * time.Second

// Backend is what the host needs from the product backend.
type Backend interface {
	tutor.SessionClient
	connectivity.Checker
}

type Config struct {
	Addr string

	RequestTimeout time.Duration
	StatusInterval time.Duration
	PollInterval   time.Duration
	PollTimeout    time.Duration
	JournalSize    int

	// Metrics is created when nil. Pass one in to share it with the backend
	// client's request observer.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (c *Config) Defaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Host owns the controller, its connectivity monitor and the connected views.
type Host struct {
	config     Config
	logger     *slog.Logger
	controller *tutor.Controller
	monitor    *connectivity.Monitor
	hub        *Hub
	journal    *journal.Journal
	metrics    *metrics.Metrics

	runOnce sync.Once
}

func (h *Host) Controller() *tutor.Controller {
	return h.controller
}

func (h *Host) Hub() *Hub {
	return h.hub
}

func (h *Host) Journal() *journal.Journal {
	return h.journal
}

// Run listens on the configured address and serves until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.config.Addr, err)
	}
	return h.Serve(ctx, ln)
}

// Serve runs the controller, the monitor and the HTTP server on ln until ctx
// is done. Teardown stops polling before the views and the controller go away.
func (h *Host) Serve(ctx context.Context, ln net.Listener) error {
	started := false
	h.runOnce.Do(func() { started = true })
	if !started {
		_ = ln.Close()
		return errors.New("host: already served")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := h.controller.Run(ctx); err != nil {
			h.logger.Error("controller failed", slog.Any("err", err))
		}
	}()
	h.monitor.Start(ctx)

	srv := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	h.logger.Info("listening", slog.String("addr", ln.Addr().String()))

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	h.tearDown(srv)
	cancel()
	<-h.controller.Done()

	h.logger.Info("shut down")
	return err
}

func (h *Host) tearDown(srv *http.Server) {
	h.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	h.monitor.Stop()

	if err := h.hub.Shutdown(ctx); err != nil {
		h.logger.Error("failed to close views", slog.Any("err", err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		h.logger.Error("failed to shut down http server", slog.Any("err", err))
	}

	h.controller.Close()
}

// New assembles a host around backend. Nothing runs until Serve or Run.
func New(backend Backend, config Config) *Host {
	config.Defaults()

	var (
		logger = config.Logger.With(slog.String("component", "host"))
		m      = config.Metrics
		j      = journal.New(config.JournalSize, journal.WithLogger(config.Logger))
		hub    = newHub(config.Logger, func(n int) { m.Viewers.Set(float64(n)) })
	)

	controllerOpts := []tutor.Option{
		tutor.WithLogger(config.Logger),
		tutor.WithObserver(j.Record),
		tutor.WithObserver(m.Observe),
	}
	if config.RequestTimeout > 0 {
		controllerOpts = append(controllerOpts, tutor.WithRequestTimeout(config.RequestTimeout))
	}
	if config.StatusInterval != 0 {
		controllerOpts = append(controllerOpts, tutor.WithStatusInterval(config.StatusInterval))
	}

	controller := tutor.NewController(
		backend,
		media.NewGate(hub, config.Logger),
		controllerOpts...,
	)
	hub.bind(controller)

	monitor := connectivity.NewMonitor(
		backend,
		connectivity.WithInterval(config.PollInterval),
		connectivity.WithTimeout(config.PollTimeout),
		connectivity.WithLogger(config.Logger),
		connectivity.WithListener(func(s connectivity.State) {
			if err := controller.SetConnectivity(s); err != nil {
				logger.Debug("connectivity update dropped", slog.Any("err", err))
			}
		}),
	)

	return &Host{
		config:     config,
		logger:     logger,
		controller: controller,
		monitor:    monitor,
		hub:        hub,
		journal:    j,
		metrics:    m,
	}
}
