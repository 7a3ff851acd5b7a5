package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babelforce/tutor-go/backend"
	"github.com/babelforce/tutor-go/connectivity"
	"github.com/babelforce/tutor-go/media"
)

// SessionClient creates, watches and ends remote conversations.
type SessionClient interface {
	Start(ctx context.Context, subject string, grade int) (*backend.SessionDescriptor, error)
	Status(ctx context.Context, sessionID string) (backend.SessionStatus, error)
	End(ctx context.Context, sessionID string) (*backend.EndResult, error)
}

// PermissionGate acquires camera and microphone access.
type PermissionGate interface {
	Request(ctx context.Context) media.Permission
}

// Controller owns the lifecycle of one tutor session at a time.
//
// All state below the loop-owned marker is only touched by the goroutine
// executing Run. Actions and async completions are posted to that loop as
// closures; completions carry the generation that issued them and are dropped
// when it is no longer current.
type Controller struct {
	client         SessionClient
	gate           PermissionGate
	logger         *slog.Logger
	requestTimeout time.Duration
	statusInterval time.Duration

	cmds      chan func()
	closeOnce sync.Once
	close     chan struct{}
	done      chan struct{}
	running   atomic.Bool

	// loop-owned
	runCtx       context.Context
	state        State
	descriptor   *backend.SessionDescriptor
	err          *ErrorState
	permission   media.Permission
	connectivity connectivity.State
	results      *backend.EndResult
	renderToken  uint64
	generation   uint64
	unwatch      context.CancelFunc

	mu           sync.Mutex
	current      Snapshot
	observers    map[uint64]Observer
	nextObserver uint64
}

// Start opens a new session for subject and grade. It is ignored unless the
// backend is reachable and no session is in progress.
func (c *Controller) Start(subject string, grade int) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidArgument)
	}
	if grade <= 0 {
		return fmt.Errorf("%w: grade must be positive, got %d", ErrInvalidArgument, grade)
	}
	return c.dispatch(func() {
		c.start(subject, grade)
	})
}

// End ends the current session. Without a session it does nothing.
func (c *Controller) End() error {
	return c.dispatch(c.end)
}

// RetryPermission prompts for media access again for a retained session.
func (c *Controller) RetryPermission() error {
	return c.dispatch(c.retryPermission)
}

// Reset forgets the current session without contacting the backend.
func (c *Controller) Reset() error {
	return c.dispatch(c.reset)
}

// SetConnectivity feeds the backend connectivity into the controller.
func (c *Controller) SetConnectivity(state connectivity.State) error {
	return c.dispatch(func() {
		if c.connectivity == state {
			return
		}
		c.connectivity = state
		c.publish()
	})
}

func (c *Controller) start(subject string, grade int) {
	logger := c.logger.With(slog.String("subject", subject), slog.Int("grade", grade))

	if c.connectivity != connectivity.StateConnected {
		logger.Debug("ignoring start while backend is not connected", slog.Any("connectivity", c.connectivity))
		return
	}

	switch c.state {
	case StateIdle:
	case StateErrored:
		if c.descriptor != nil {
			// the remote session is still there, only media access is missing
			c.retryPermission()
			return
		}
	default:
		logger.Debug("ignoring start", slog.Any("state", c.state))
		return
	}

	c.generation++
	gen := c.generation
	c.err = nil
	c.results = nil
	c.permission = media.PermissionUnrequested
	c.setState(StateStarting)

	logger.Info("starting session", slog.Uint64("generation", gen))

	ctx := c.runCtx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		desc, err := c.client.Start(ctx, subject, grade)
		c.complete(gen, "start", func() {
			c.onStarted(desc, err)
		})
	}()
}

func (c *Controller) onStarted(desc *backend.SessionDescriptor, err error) {
	if c.state != StateStarting {
		return
	}

	if err != nil {
		c.fail(err)
		return
	}
	if desc == nil || desc.ID == "" || desc.JoinURL == "" {
		c.fail(fmt.Errorf("%w: incomplete session descriptor %+v", backend.ErrMalformedResponse, desc))
		return
	}

	c.descriptor = desc
	c.logger.Info("session created",
		slog.String("session_id", desc.ID),
		slog.Any("status", desc.Status),
	)
	c.awaitPermission()
}

// awaitPermission enters AwaitingPermission and asks the gate.
func (c *Controller) awaitPermission() {
	gen := c.generation
	c.permission = media.PermissionUnrequested
	c.setState(StateAwaitingPermission)

	ctx := c.runCtx
	go func() {
		p := c.gate.Request(ctx)
		c.complete(gen, "permission", func() {
			c.onPermission(p)
		})
	}()
}

func (c *Controller) onPermission(p media.Permission) {
	if c.state != StateAwaitingPermission {
		return
	}

	if p != media.PermissionGranted {
		c.permission = media.PermissionDenied
		c.err = &ErrorState{Kind: ErrorKindPermission, Message: PermissionDeniedMessage}
		c.logger.Info("media permission denied, keeping session", slog.String("session_id", c.descriptor.ID))
		c.setState(StateErrored)
		return
	}

	c.permission = media.PermissionGranted
	c.renderToken++
	c.logger.Info("session live",
		slog.String("session_id", c.descriptor.ID),
		slog.Uint64("render_token", c.renderToken),
	)
	c.setState(StateLive)
	c.watchStatus()
}

// watchStatus polls the remote session until it leaves Live.
func (c *Controller) watchStatus() {
	if c.statusInterval <= 0 {
		return
	}

	var (
		gen      = c.generation
		id       = c.descriptor.ID
		interval = c.statusInterval
	)

	ctx, cancel := context.WithCancel(c.runCtx)
	c.unwatch = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			reqCtx, cancelReq := context.WithTimeout(ctx, c.requestTimeout)
			status, err := c.client.Status(reqCtx, id)
			cancelReq()
			if ctx.Err() != nil {
				return
			}

			c.complete(gen, "status", func() {
				c.onStatus(status, err)
			})
		}
	}()
}

func (c *Controller) onStatus(status backend.SessionStatus, err error) {
	if c.state != StateLive {
		return
	}

	logger := c.logger.With(slog.String("session_id", c.descriptor.ID))

	if err != nil {
		// a missed poll says nothing about the session itself
		logger.Warn("session status check failed", slog.Any("err", err))
		return
	}

	switch status {
	case backend.SessionStatusEnded, backend.SessionStatusCompleted:
		logger.Info("session ended remotely", slog.Any("status", status))
		c.descriptor = nil
		c.permission = media.PermissionUnrequested
		c.err = &ErrorState{Kind: ErrorKindExpired, Message: SessionExpiredMessage}
		c.setState(StateErrored)
	default:
		if c.descriptor.Status == status {
			return
		}
		logger.Debug("session status changed", slog.Any("from", c.descriptor.Status), slog.Any("to", status))
		d := *c.descriptor
		d.Status = status
		c.descriptor = &d
		c.publish()
	}
}

func (c *Controller) retryPermission() {
	if c.state != StateErrored || c.descriptor == nil {
		c.logger.Debug("ignoring permission retry", slog.Any("state", c.state))
		return
	}

	c.generation++
	c.err = nil
	c.awaitPermission()
}

func (c *Controller) end() {
	if c.descriptor == nil {
		return
	}

	switch c.state {
	case StateLive, StateAwaitingPermission, StateErrored:
	default:
		c.logger.Debug("ignoring end", slog.Any("state", c.state))
		return
	}

	c.generation++
	gen := c.generation
	id := c.descriptor.ID
	c.err = nil
	c.setState(StateEnding)

	c.logger.Info("ending session", slog.String("session_id", id))

	ctx := c.runCtx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		res, err := c.client.End(ctx, id)
		c.complete(gen, "end", func() {
			c.onEnded(res, err)
		})
	}()
}

func (c *Controller) onEnded(res *backend.EndResult, err error) {
	if c.state != StateEnding {
		return
	}

	if err != nil {
		// the remote session may still be live, keep it so end can be retried
		c.fail(err)
		return
	}

	c.logger.Info("session ended", slog.String("session_id", c.descriptor.ID))

	c.descriptor = nil
	c.permission = media.PermissionUnrequested
	c.results = res
	c.setState(StateIdle)
}

func (c *Controller) reset() {
	c.generation++
	c.descriptor = nil
	c.err = nil
	c.results = nil
	c.permission = media.PermissionUnrequested
	c.logger.Info("session reset")
	c.setState(StateIdle)
}

func (c *Controller) fail(err error) {
	c.err = requestErrorState(err)
	c.logger.Error("session request failed",
		slog.Any("err", err),
		slog.Any("kind", c.err.Kind),
		slog.Any("state", c.state),
	)
	c.setState(StateErrored)
}

// complete posts fn to the loop unless gen has been superseded by then.
func (c *Controller) complete(gen uint64, op string, fn func()) {
	c.post(func() {
		if gen != c.generation {
			c.logger.Debug("dropping stale completion",
				slog.String("op", op),
				slog.Uint64("generation", gen),
				slog.Uint64("current", c.generation),
			)
			return
		}
		fn()
	})
}

func (c *Controller) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

func (c *Controller) dispatch(fn func()) error {
	select {
	case <-c.close:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.cmds <- fn:
		return nil
	case <-c.close:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	}
}

// Run executes the event loop until ctx is done or Close is called. In-flight
// requests are cancelled when Run returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("controller: already running")
	}
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.runCtx = ctx

	c.logger.Info("controller running")
	defer c.logger.Info("controller stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.close:
			return nil
		case fn := <-c.cmds:
			fn()
		}
	}
}

// Close stops the event loop.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.close)
	})
}

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// NewController creates a controller. Nothing happens until Run is called.
func NewController(client SessionClient, gate PermissionGate, opts ...Option) *Controller {
	var o controllerOptions
	withDefaults()(&o)
	withOptions(opts...)(&o)

	c := &Controller{
		client:         client,
		gate:           gate,
		logger:         o.logger.With(slog.String("component", "controller")),
		requestTimeout: o.requestTimeout,
		statusInterval: o.statusInterval,
		cmds:           make(chan func(), 16),
		close:          make(chan struct{}),
		done:           make(chan struct{}),
		state:          StateIdle,
		permission:     media.PermissionUnrequested,
		connectivity:   connectivity.StateConnecting,
		observers:      make(map[uint64]Observer),
	}

	for _, obs := range o.observers {
		c.nextObserver++
		c.observers[c.nextObserver] = obs
	}
	c.current = c.snapshot()

	return c
}
