package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/proto"
)

const (
	EventSnapshot = "session.snapshot"

	outboxSize = 32
)

var ErrRequestTimeout = errors.New("request: timeout")

// Peer is one connected browser view.
type Peer struct {
	id        string
	transport tutor.Transport
	router    *Router
	outbox    chan tutor.Snapshot

	pendingRequests map[string]*pendingRequest
	gone            bool
	muPending       sync.Mutex

	handlers  sync.WaitGroup
	closeOnce sync.Once
	close     chan struct{}
	done      chan struct{}
	logger    *slog.Logger
}

func (p *Peer) ID() string {
	return p.id
}

func (p *Peer) Log() *slog.Logger {
	return p.logger
}

// enqueue hands a snapshot to the sender. It never blocks since it runs on the
// controller loop. A full outbox loses its oldest snapshot, so the view always
// ends up on the latest state.
func (p *Peer) enqueue(s tutor.Snapshot) {
	for {
		select {
		case p.outbox <- s:
			return
		default:
		}

		select {
		case old := <-p.outbox:
			p.logger.Warn("view is not keeping up, dropping snapshot",
				slog.Any("state", old.State),
				slog.Uint64("generation", old.Generation),
			)
		default:
		}
	}
}

// Notify sends an event.
func (p *Peer) Notify(ctx context.Context, event string, payload any) error {
	evt := proto.NewEvent(event, payload)

	p.logger.Debug(
		"Peer.Notify()",
		slog.String("event_id", evt.ID),
		slog.String("event", evt.Event),
	)

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	if err := p.writeMsgData(ctx, data); err != nil {
		return fmt.Errorf("notify [event=%s, id=%s]: %w", evt.Event, evt.ID, err)
	}
	return nil
}

func (p *Peer) Respond(ctx context.Context, res *proto.Response) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	if err := p.writeMsgData(ctx, data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (p *Peer) writeMsgData(ctx context.Context, data []byte) error {
	written := make(chan error, 1)
	go func() {
		written <- p.transport.Control().Write(data)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("writeMsgData failed: %w", ErrRequestTimeout)
	case err := <-written:
		return err
	}
}

// Close ends the peer and waits until it is gone or ctx is done.
func (p *Peer) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.close)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return nil
	}
}

func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) sendSnapshots(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case s := <-p.outbox:
			if err := p.Notify(ctx, EventSnapshot, s); err != nil {
				p.logger.Error("failed to send snapshot", slog.Any("err", err))
			}
		}
	}
}

func (p *Peer) handleRequest(ctx context.Context, req *proto.Request) {
	defer p.handlers.Done()

	res := p.router.Handle(ctx, p, req)
	if err := p.Respond(ctx, res); err != nil {
		p.logger.Error("failed to write response", slog.Any("err", err), slog.String("method", req.Method))
	}
}

func (p *Peer) handleIncoming(ctx context.Context, data []byte) {
	msg, err := proto.ParseMessage(data)
	if err != nil {
		p.logger.Error("parsing message failed", slog.Any("err", err))
		return
	}

	switch m := msg.(type) {
	case *proto.Request:
		p.handlers.Add(1)
		go p.handleRequest(ctx, m)
	case *proto.Response:
		p.resolvePendingRequest(m)
	case *proto.Event:
		p.logger.Debug("ignoring event", slog.String("event", m.Event))
	}
}

func (p *Peer) end() {
	p.failPendingRequests(tutor.ErrTransportClosed)
	p.handlers.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.transport.Close(ctx); err != nil {
		p.logger.Error("failed to close transport", slog.Any("err", err))
	}

	p.logger.Info("view disconnected")
	close(p.done)
}

// Run serves the peer until the transport is gone, ctx is done or Close is
// called.
func (p *Peer) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.logger.Info("view connected")

	stop := make(chan struct{})
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		p.sendSnapshots(ctx, stop)
	}()

	defer func() {
		close(stop)
		cancel()
		<-senderDone
		p.end()
	}()

	var (
		msgIn  = p.transport.Control().ReadChan()
		closed = p.transport.Closed()
	)
	for {
		select {
		case <-p.close:
			return
		case <-ctx.Done():
			return
		case <-closed:
			return
		case pkg, ok := <-msgIn:
			if !ok {
				p.logger.Debug("Peer.Run() control channel closed")
				return
			}
			p.handleIncoming(ctx, pkg.Data)
		}
	}
}

func newPeer(t tutor.Transport, router *Router, logger *slog.Logger) *Peer {
	id := proto.ID()
	return &Peer{
		id:              id,
		transport:       t,
		router:          router,
		outbox:          make(chan tutor.Snapshot, outboxSize),
		pendingRequests: map[string]*pendingRequest{},
		close:           make(chan struct{}),
		done:            make(chan struct{}),
		logger:          logger.With(slog.String("peer", id)),
	}
}
