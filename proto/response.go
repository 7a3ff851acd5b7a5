package proto

type Response struct {
	Version  string         `json:"version,omitempty"`
	Response string         `json:"response"`
	Result   any            `json:"result,omitempty"`
	Error    *ResponseError `json:"error,omitempty"`
}

func (r *Response) MessageType() string {
	return "response"
}

func (r *Response) Ok() bool {
	return r.Error == nil
}

var _ Message = &Response{}
