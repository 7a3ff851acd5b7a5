package proto

import (
	"encoding/json"
	"fmt"
)

type Message interface {
	MessageType() string
}

type rawMessage struct {
	Version  string          `json:"version,omitempty"`
	ID       string          `json:"id,omitempty"`
	Method   string          `json:"method,omitempty"`
	Response string          `json:"response,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *ResponseError  `json:"error,omitempty"`
}

// ParseMessage decodes a wire message. Payloads stay as json.RawMessage, use As
// to decode them into a concrete type.
func ParseMessage(raw []byte) (Message, error) {
	var msg rawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	if msg.Event != "" {
		return &Event{
			Version: msg.Version,
			ID:      msg.ID,
			Event:   msg.Event,
			Data:    msg.Data,
		}, nil
	} else if msg.Method != "" {
		return &Request{
			Version: msg.Version,
			ID:      msg.ID,
			Method:  msg.Method,
			Params:  msg.Params,
		}, nil
	} else if msg.Response != "" {
		return &Response{
			Version:  msg.Version,
			Response: msg.Response,
			Result:   msg.Result,
			Error:    msg.Error,
		}, nil
	}

	return nil, fmt.Errorf("unknown message type: %s", raw)
}
