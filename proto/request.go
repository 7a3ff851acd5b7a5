package proto

import "fmt"

type Request struct {
	Version string `json:"version"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (r *Request) MessageType() string {
	return "request"
}

func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("request ID is required")
	}
	if r.Method == "" {
		return fmt.Errorf("request method is required")
	}
	return nil
}

// Ok creates a successful response for a request
func (r *Request) Ok(result any) *Response {
	return &Response{
		Version:  r.Version,
		Response: r.ID,
		Result:   result,
	}
}

// NotOk creates a failure response for a request
func (r *Request) NotOk(err *ResponseError) *Response {
	return &Response{
		Version:  r.Version,
		Response: r.ID,
		Error:    err,
	}
}

func NewRequest(method string, params any) *Request {
	return &Request{
		Version: Version,
		ID:      ID(),
		Method:  method,
		Params:  params,
	}
}

var _ Message = &Request{}
