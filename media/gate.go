// Package media asks the platform for camera and microphone access.
package media

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

type Permission string

const (
	PermissionUnrequested Permission = "unrequested"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

var (
	ErrDenied      = errors.New("media: permission denied")
	ErrUnavailable = errors.New("media: capture devices unavailable")
)

// Prompter shows the platform's audio+video capture prompt. A nil error means
// access was granted.
type Prompter interface {
	Prompt(ctx context.Context) error
}

type PrompterFunc func(ctx context.Context) error

func (f PrompterFunc) Prompt(ctx context.Context) error {
	return f(ctx)
}

// Static answers every prompt with p.
func Static(p Permission) Prompter {
	return PrompterFunc(func(context.Context) error {
		if p == PermissionGranted {
			return nil
		}
		return ErrDenied
	})
}

// Gate wraps a Prompter so that concurrent requests share one prompt.
type Gate struct {
	prompter Prompter
	flight   singleflight.Group
	logger   *slog.Logger
}

// Request resolves to Granted or Denied. Refusal and missing devices are both
// Denied since the remedy is the same.
func (g *Gate) Request(ctx context.Context) Permission {
	v, _, shared := g.flight.Do("capture", func() (any, error) {
		g.logger.Debug("prompting for camera and microphone")
		if err := g.prompter.Prompt(ctx); err != nil {
			g.logger.Info("media permission denied", slog.Any("err", err))
			return PermissionDenied, nil
		}
		g.logger.Debug("media permission granted")
		return PermissionGranted, nil
	})
	if shared {
		g.logger.Debug("media permission request coalesced")
	}
	return v.(Permission)
}

func NewGate(prompter Prompter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		prompter: prompter,
		logger:   logger.With(slog.String("component", "media")),
	}
}
