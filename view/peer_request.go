package view

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/proto"
)

type pendingRequest struct {
	id string
	ch chan *proto.Response
}

func (p *Peer) newPendingRequest(id string) *pendingRequest {
	p.muPending.Lock()
	defer p.muPending.Unlock()

	if p.gone {
		return nil
	}

	pr := &pendingRequest{
		id: id,
		ch: make(chan *proto.Response, 1),
	}

	p.pendingRequests[id] = pr

	return pr
}

func (p *Peer) dropPendingRequest(id string) {
	p.muPending.Lock()
	defer p.muPending.Unlock()
	delete(p.pendingRequests, id)
}

func (p *Peer) resolvePendingRequest(resp *proto.Response) {
	p.muPending.Lock()
	defer p.muPending.Unlock()

	pr, ok := p.pendingRequests[resp.Response]
	if !ok {
		p.logger.Debug("response without pending request", slog.String("response", resp.Response))
		return
	}

	pr.ch <- resp

	delete(p.pendingRequests, resp.Response)
}

// failPendingRequests answers every open request with err. Later requests
// fail right away.
func (p *Peer) failPendingRequests(err error) {
	p.muPending.Lock()
	defer p.muPending.Unlock()

	p.gone = true

	for id, pr := range p.pendingRequests {
		pr.ch <- &proto.Response{
			Version:  proto.Version,
			Response: id,
			Error:    proto.NewError(proto.ErrUnavailable, err),
		}
		delete(p.pendingRequests, id)
	}
}

// Request sends a request to the browser and waits for its answer. A response
// carrying an error is returned as *proto.ResponseError.
func (p *Peer) Request(ctx context.Context, method string, params any) (*proto.Response, error) {
	req := proto.NewRequest(method, params)

	p.logger.Debug(
		"Peer.Request()",
		slog.String("request_id", req.ID),
		slog.String("method", req.Method),
	)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	pending := p.newPendingRequest(req.ID)
	if pending == nil {
		return nil, fmt.Errorf("request [method=%s, id=%s]: %w", req.Method, req.ID, tutor.ErrTransportClosed)
	}
	defer p.dropPendingRequest(req.ID)

	if err := p.writeMsgData(ctx, data); err != nil {
		return nil, fmt.Errorf("request [method=%s, id=%s]: %w", req.Method, req.ID, err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("request [method=%s, id=%s] failed: %w", req.Method, req.ID, ctx.Err())
	case resp := <-pending.ch:
		if !resp.Ok() {
			return nil, resp.Error
		}
		return resp, nil
	}
}
