// Package direct connects two endpoints in memory. It backs tests and embedding
// a view in the same process.
package direct

import (
	"context"
	"sync"
	"time"

	tutor "github.com/babelforce/tutor-go"
)

type pipe struct {
	once sync.Once
	done chan struct{}
}

func (p *pipe) close() {
	p.once.Do(func() {
		close(p.done)
	})
}

type dataChannel struct {
	raw  chan tutor.DataPackage // written by the peer
	out  chan tutor.DataPackage // handed to the reader
	peer chan<- tutor.DataPackage
	done <-chan struct{}
}

func (d *dataChannel) Write(data []byte) error {
	select {
	case <-d.done:
		return tutor.ErrTransportClosed
	default:
	}

	pkg := tutor.DataPackage{Data: append([]byte(nil), data...), ReceivedAt: time.Now().UnixMilli()}
	select {
	case d.peer <- pkg:
		return nil
	case <-d.done:
		return tutor.ErrTransportClosed
	}
}

func (d *dataChannel) ReadChan() <-chan tutor.DataPackage {
	return d.out
}

// pump moves packages to the reader and closes ReadChan once the pipe is gone.
func (d *dataChannel) pump() {
	defer close(d.out)
	for {
		select {
		case <-d.done:
			return
		case pkg := <-d.raw:
			select {
			case d.out <- pkg:
			case <-d.done:
				return
			}
		}
	}
}

var _ tutor.DataChannel = &dataChannel{}

type directTransport struct {
	cc *dataChannel
	p  *pipe
}

func (d *directTransport) Closed() <-chan struct{} {
	return d.p.done
}

// Close closes both ends.
func (d *directTransport) Close(_ context.Context) error {
	d.p.close()
	return nil
}

func (d *directTransport) Control() tutor.DataChannel {
	return d.cc
}

var _ tutor.Transport = &directTransport{}

// NewPair returns two connected transports.
func NewPair() (tutor.Transport, tutor.Transport) {
	var (
		p    = &pipe{done: make(chan struct{})}
		aToB = make(chan tutor.DataPackage, 32)
		bToA = make(chan tutor.DataPackage, 32)
	)

	a := &directTransport{
		p: p,
		cc: &dataChannel{
			raw:  bToA,
			out:  make(chan tutor.DataPackage),
			peer: aToB,
			done: p.done,
		},
	}

	b := &directTransport{
		p: p,
		cc: &dataChannel{
			raw:  aToB,
			out:  make(chan tutor.DataPackage),
			peer: bToA,
			done: p.done,
		},
	}

	go a.cc.pump()
	go b.cc.pump()

	return a, b
}
