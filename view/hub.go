package view

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/media"
	"github.com/babelforce/tutor-go/proto"
)

type PermissionResult struct {
	Granted bool `json:"granted"`
}

// Hub tracks connected views. It is the media.Prompter of the host: the
// browser owns the capture devices, so prompts go to the most recently
// connected view.
type Hub struct {
	logger    *slog.Logger
	session   Session
	router    *Router
	onViewers func(n int)

	mu       sync.Mutex
	peers    map[string]*Peer
	order    []string
	shutdown bool
	wg       sync.WaitGroup
}

// Accept serves t as a new view until it goes away. It matches the accept
// signature of the websocket handler.
func (h *Hub) Accept(ctx context.Context, t tutor.Transport) {
	p := newPeer(t, h.router, h.logger)

	if !h.register(p) {
		h.logger.Warn("rejecting view, hub is shut down")
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = t.Close(closeCtx)
		return
	}
	defer h.unregister(p)

	unsubscribe, err := h.session.Subscribe(p.enqueue)
	if err != nil {
		h.logger.Error("failed to subscribe view", slog.Any("err", err))
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = t.Close(closeCtx)
		return
	}
	defer unsubscribe()

	p.Run(ctx)
}

func (h *Hub) register(p *Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shutdown {
		return false
	}

	h.wg.Add(1)
	h.peers[p.id] = p
	h.order = append(h.order, p.id)
	h.viewersChanged()
	return true
}

func (h *Hub) unregister(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.peers, p.id)
	for i, id := range h.order {
		if id == p.id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.viewersChanged()
	h.wg.Done()
}

// viewersChanged must be called with mu held.
func (h *Hub) viewersChanged() {
	if h.onViewers != nil {
		h.onViewers(len(h.peers))
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) latest() *Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.order) == 0 {
		return nil
	}
	return h.peers[h.order[len(h.order)-1]]
}

// Prompt asks the most recent view for camera and microphone access. It waits
// for the user's answer without a timeout of its own.
func (h *Hub) Prompt(ctx context.Context) error {
	p := h.latest()
	if p == nil {
		return fmt.Errorf("%w: no view connected", media.ErrUnavailable)
	}

	res, err := p.Request(ctx, MethodMediaPermission, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrUnavailable, err)
	}

	result, err := proto.As[PermissionResult](res.Result)
	if err != nil {
		return fmt.Errorf("%w: %w", media.ErrUnavailable, err)
	}
	if !result.Granted {
		return media.ErrDenied
	}
	return nil
}

var _ media.Prompter = &Hub{}

// Shutdown closes all views and waits for them. New views are rejected
// afterwards.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.shutdown = true
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		h.logger.Debug("closing view", slog.String("peer", p.id))
		if err := p.Close(ctx); err != nil {
			h.logger.Error("failed to close view", slog.Any("err", err))
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// bind attaches the session. It must happen before the first Accept.
func (h *Hub) bind(s Session) {
	h.session = s
	h.router = NewRouter(sessionHandlers(s)...)
}

func newHub(logger *slog.Logger, onViewers func(n int)) *Hub {
	return &Hub{
		logger:    logger.With(slog.String("component", "hub")),
		onViewers: onViewers,
		peers:     make(map[string]*Peer),
	}
}
