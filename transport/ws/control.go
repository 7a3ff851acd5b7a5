package ws

import (
	"github.com/gorilla/websocket"

	tutor "github.com/babelforce/tutor-go"
)

type controlChannel struct {
	input  chan tutor.DataPackage
	output chan<- wsMessage
	done   <-chan struct{}
}

func (cc *controlChannel) Write(data []byte) error {
	select {
	case <-cc.done:
		return tutor.ErrTransportClosed
	default:
	}

	select {
	case cc.output <- wsMessage{mt: websocket.TextMessage, data: data}:
		return nil
	case <-cc.done:
		return tutor.ErrTransportClosed
	}
}

func (cc *controlChannel) ReadChan() <-chan tutor.DataPackage {
	return cc.input
}

func newControlChannel(output chan<- wsMessage, done <-chan struct{}) *controlChannel {
	return &controlChannel{
		input:  make(chan tutor.DataPackage, 16),
		output: output,
		done:   done,
	}
}

var _ tutor.DataChannel = &controlChannel{}
