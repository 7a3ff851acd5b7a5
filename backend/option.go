package backend

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultStartPath  = "/api/chat/start"
	DefaultEndPath    = "/chat/end/{conversation_id}"
	DefaultHealthPath = "/"
	DefaultStatusPath = "/api/chat/status/{conversation_id}"
)

// RequestObserver is called once per backend call with its outcome.
type RequestObserver func(op string, took time.Duration, err error)

type clientOptions struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	startPath  string
	endPath    string
	healthPath string
	statusPath string
	observer   RequestObserver
}

type Option func(opts *clientOptions)

func withDefaults() Option {
	return withOptions(
		WithLogger(slog.Default()),
		WithHTTPClient(newDefaultHTTPClient()),
		WithStartPath(DefaultStartPath),
		WithEndPath(DefaultEndPath),
		WithHealthPath(DefaultHealthPath),
		WithStatusPath(DefaultStatusPath),
	)
}

func withOptions(os ...Option) Option {
	return func(opts *clientOptions) {
		for _, o := range os {
			o(opts)
		}
	}
}

func WithAPIKey(key string) Option {
	return func(opts *clientOptions) {
		opts.apiKey = key
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(opts *clientOptions) {
		opts.httpClient = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(opts *clientOptions) {
		opts.logger = logger
	}
}

func WithStartPath(p string) Option {
	return func(opts *clientOptions) {
		opts.startPath = p
	}
}

// WithEndPath sets the end endpoint. The placeholder {conversation_id} is
// replaced by the escaped session id.
func WithEndPath(p string) Option {
	return func(opts *clientOptions) {
		opts.endPath = p
	}
}

func WithHealthPath(p string) Option {
	return func(opts *clientOptions) {
		opts.healthPath = p
	}
}

// WithStatusPath sets the status endpoint. The placeholder {conversation_id}
// is replaced like in WithEndPath.
func WithStatusPath(p string) Option {
	return func(opts *clientOptions) {
		opts.statusPath = p
	}
}

func WithRequestObserver(o RequestObserver) Option {
	return func(opts *clientOptions) {
		opts.observer = o
	}
}
