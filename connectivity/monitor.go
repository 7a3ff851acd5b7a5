package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Checker checks the backend. A nil error means healthy.
type Checker interface {
	Health(ctx context.Context) error
}

type Listener func(State)

// Monitor polls a Checker and tracks the resulting connectivity.
type Monitor struct {
	checker   Checker
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	listeners []Listener

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins polling. The first poll runs immediately. Calling Start on a
// running or stopped monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil || m.stopped {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	m.logger.Info("starting connectivity monitor", slog.Duration("interval", m.interval))

	go m.run(ctx, m.done)
}

// Stop cancels polling and waits until the poll loop has exited. No state
// change happens after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	m.logger.Info("stopped connectivity monitor")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.poll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.checker.Health(pollCtx)
	cancel()

	// torn down while the check was in flight
	if ctx.Err() != nil {
		m.logger.Debug("discarding health result after teardown")
		return
	}

	next := StateConnected
	if err != nil {
		next = StateDisconnected
		m.logger.Debug("health check failed", slog.Any("err", err))
	}
	m.set(next)
}

func (m *Monitor) set(next State) {
	m.mu.Lock()
	if m.stopped || m.state == next {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	m.mu.Unlock()

	m.logger.Info("connectivity changed", slog.Any("from", prev), slog.Any("to", next))

	for _, l := range m.listeners {
		l(next)
	}
}

func NewMonitor(checker Checker, opts ...Option) *Monitor {
	o := monitorOptions{
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Monitor{
		checker:   checker,
		interval:  o.interval,
		timeout:   o.timeout,
		logger:    o.logger.With(slog.String("component", "connectivity")),
		listeners: o.listeners,
		state:     StateConnecting,
	}
}
