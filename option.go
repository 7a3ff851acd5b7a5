package tutor

import (
	"log/slog"
	"time"
)

// DefaultRequestTimeout bounds each backend call made by the controller.
const DefaultRequestTimeout = 30 * time.Second

// DefaultStatusInterval is how often a live session's remote status is read.
const DefaultStatusInterval = 15 * time.Second

type controllerOptions struct {
	logger         *slog.Logger
	requestTimeout time.Duration
	statusInterval time.Duration
	observers      []Observer
}

type Option func(opts *controllerOptions)

func withDefaults() Option {
	return withOptions(
		WithLogger(slog.Default()),
		WithRequestTimeout(DefaultRequestTimeout),
		WithStatusInterval(DefaultStatusInterval),
	)
}

func withOptions(os ...Option) Option {
	return func(opts *controllerOptions) {
		for _, o := range os {
			o(opts)
		}
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(opts *controllerOptions) {
		opts.requestTimeout = timeout
	}
}

// WithStatusInterval sets how often a live session is checked for having ended
// remotely. Zero or less turns the check off.
func WithStatusInterval(interval time.Duration) Option {
	return func(opts *controllerOptions) {
		opts.statusInterval = interval
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(opts *controllerOptions) {
		opts.logger = logger
	}
}

// WithObserver registers an observer for the controller's whole lifetime.
func WithObserver(o Observer) Option {
	return func(opts *controllerOptions) {
		opts.observers = append(opts.observers, o)
	}
}
