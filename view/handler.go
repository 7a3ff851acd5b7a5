package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/proto"
)

// Browser to host methods.
const (
	MethodSessionStart    = "session.start"
	MethodSessionEnd      = "session.end"
	MethodSessionReset    = "session.reset"
	MethodSessionGet      = "session.get"
	MethodPermissionRetry = "permission.retry"

	// MethodMediaPermission is sent from the host to the browser.
	MethodMediaPermission = "media.permission"
)

type RequestHandler interface {
	MethodName() string
	Handle(ctx context.Context, p *Peer, req *proto.Request) (*proto.Response, error)
}

type typedRequestHandler[I any, O any] struct {
	name string
	h    func(context.Context, *Peer, *I) (*O, error)
}

func (t *typedRequestHandler[I, O]) MethodName() string {
	return t.name
}

func (t *typedRequestHandler[I, O]) Handle(ctx context.Context, p *Peer, req *proto.Request) (*proto.Response, error) {
	params, err := proto.As[I](req.Params)
	if err != nil {
		return req.NotOk(proto.NewBadRequestError(err)), nil
	}

	out, err := t.h(ctx, p, params)
	if err != nil {
		return nil, fmt.Errorf("handle request: %w", err)
	}

	return req.Ok(out), nil
}

// HandleRequest decodes params into I before calling handler.
func HandleRequest[I any, O any](method string, handler func(context.Context, *Peer, *I) (*O, error)) RequestHandler {
	return &typedRequestHandler[I, O]{
		name: method,
		h:    handler,
	}
}

type RequestMiddlewareFunc func(ctx context.Context, p *Peer, req *proto.Request) error

type requestMiddleware struct {
	next RequestHandler
	fn   RequestMiddlewareFunc
}

func (m *requestMiddleware) MethodName() string {
	return m.next.MethodName()
}

func (m *requestMiddleware) Handle(ctx context.Context, p *Peer, req *proto.Request) (*proto.Response, error) {
	if err := m.fn(ctx, p, req); err != nil {
		return nil, err
	}
	return m.next.Handle(ctx, p, req)
}

func Middleware(fn RequestMiddlewareFunc, next RequestHandler) RequestHandler {
	return &requestMiddleware{next: next, fn: fn}
}

func validateRequest(_ context.Context, _ *Peer, req *proto.Request) error {
	if err := req.Validate(); err != nil {
		return proto.NewBadRequestError(err)
	}
	return nil
}

// Router maps methods to handlers. Unknown methods are answered with 501,
// handler errors are mapped with proto.ToResponseError.
type Router struct {
	handlers map[string]RequestHandler
}

func (r *Router) Add(handlers ...RequestHandler) {
	for _, h := range handlers {
		r.handlers[h.MethodName()] = h
	}
}

func (r *Router) Handle(ctx context.Context, p *Peer, req *proto.Request) *proto.Response {
	start := time.Now()
	logger := p.Log().With(slog.String("method", req.Method), slog.String("request_id", req.ID))

	hdl, ok := r.handlers[req.Method]
	if !ok {
		logger.Warn("unknown method")
		return req.NotOk(proto.NewError(proto.ErrNotImplemented, fmt.Errorf("unknown method: %s", req.Method)))
	}

	res, err := hdl.Handle(ctx, p, req)
	if err != nil {
		re := proto.ToResponseError(err)
		logger.Info("request failed", slog.Any("err", err), slog.Int("code", int(re.Code)))
		return req.NotOk(re)
	}

	logger.Debug("request handled", slog.Duration("took", time.Since(start)), slog.Bool("ok", res.Ok()))
	return res
}

func NewRouter(handlers ...RequestHandler) *Router {
	r := &Router{handlers: make(map[string]RequestHandler)}
	r.Add(handlers...)
	return r
}

// Session is the controller surface the view drives.
type Session interface {
	Start(subject string, grade int) error
	End() error
	Reset() error
	RetryPermission() error
	Snapshot() tutor.Snapshot
	Subscribe(o tutor.Observer) (func(), error)
}

type StartParams struct {
	Subject string `json:"subject"`
	Grade   int    `json:"grade"`
}

type empty struct{}

// actionError maps synchronous controller errors onto response codes.
func actionError(err error) error {
	switch {
	case errors.Is(err, tutor.ErrInvalidArgument):
		return proto.NewBadRequestError(err)
	case errors.Is(err, tutor.ErrClosed):
		return proto.NewError(proto.ErrUnavailable, err)
	default:
		return err
	}
}

// sessionHandlers answer every action with the snapshot current when the
// action was accepted. Later transitions arrive as session.snapshot events.
func sessionHandlers(s Session) []RequestHandler {
	action := func(method string, fn func() error) RequestHandler {
		return Middleware(validateRequest, HandleRequest(method, func(ctx context.Context, p *Peer, _ *empty) (*tutor.Snapshot, error) {
			if err := fn(); err != nil {
				return nil, actionError(err)
			}
			snap := s.Snapshot()
			return &snap, nil
		}))
	}

	return []RequestHandler{
		Middleware(validateRequest, HandleRequest(MethodSessionStart, func(ctx context.Context, p *Peer, params *StartParams) (*tutor.Snapshot, error) {
			if err := s.Start(params.Subject, params.Grade); err != nil {
				return nil, actionError(err)
			}
			snap := s.Snapshot()
			return &snap, nil
		})),
		action(MethodSessionEnd, s.End),
		action(MethodSessionReset, s.Reset),
		action(MethodPermissionRetry, s.RetryPermission),
		action(MethodSessionGet, func() error { return nil }),
	}
}
