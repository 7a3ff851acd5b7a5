package backend

import (
	"errors"
	"fmt"
)

// GenericRetryMessage is shown when a failed request carries no usable message.
const GenericRetryMessage = "Something went wrong. Please try again."

var ErrMalformedResponse = errors.New("malformed response")

type ErrorKind string

const (
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindStatus    ErrorKind = "status"
	ErrorKindMalformed ErrorKind = "malformed"
)

// RequestError is returned for every failed backend call.
type RequestError struct {
	Op         string
	URL        string
	Kind       ErrorKind
	StatusCode int
	Message    string // Message is the server-provided message, if any
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Kind == ErrorKindStatus && e.Message != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.URL, e.StatusCode, e.Message)
	case e.Kind == ErrorKindStatus:
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URL, e.Kind, e.Err)
	}
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage is the text to surface to the user for this failure.
func (e *RequestError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericRetryMessage
}

func (e *RequestError) Malformed() bool {
	return e.Kind == ErrorKindMalformed
}

func malformed(op, url, reason string) *RequestError {
	return &RequestError{
		Op:   op,
		URL:  url,
		Kind: ErrorKindMalformed,
		Err:  fmt.Errorf("%w: %s", ErrMalformedResponse, reason),
	}
}
