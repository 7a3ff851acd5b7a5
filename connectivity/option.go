package connectivity

import (
	"log/slog"
	"time"
)

type monitorOptions struct {
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	listeners []Listener
}

type Option func(opts *monitorOptions)

func WithInterval(d time.Duration) Option {
	return func(opts *monitorOptions) {
		if d > 0 {
			opts.interval = d
		}
	}
}

// WithTimeout bounds a single health check.
func WithTimeout(d time.Duration) Option {
	return func(opts *monitorOptions) {
		if d > 0 {
			opts.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(opts *monitorOptions) {
		opts.logger = logger
	}
}

// WithListener registers a callback invoked on every state change, from the
// poll goroutine.
func WithListener(l Listener) Option {
	return func(opts *monitorOptions) {
		opts.listeners = append(opts.listeners, l)
	}
}
