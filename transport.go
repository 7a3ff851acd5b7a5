package tutor

import (
	"context"
	"errors"
)

var ErrTransportClosed = errors.New("transport: closed")

type DataPackage struct {
	Data       []byte
	ReceivedAt int64
}

// DataChannel carries encoded proto messages. ReadChan is closed once the
// peer is gone.
type DataChannel interface {
	Write(data []byte) error
	ReadChan() <-chan DataPackage
}

// Transport is one connection between the host and a view.
type Transport interface {
	Closed() <-chan struct{}
	Control() DataChannel
	Close(ctx context.Context) error
}

type TransportFactory func(ctx context.Context) (Transport, error)
