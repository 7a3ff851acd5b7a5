package tutor

import (
	"errors"

	"github.com/babelforce/tutor-go/backend"
)

var (
	ErrClosed          = errors.New("controller: closed")
	ErrInvalidArgument = errors.New("controller: invalid argument")
)

// PermissionDeniedMessage tells the user how to recover from a media denial.
const PermissionDeniedMessage = "Camera and microphone access is required for the tutor session. Please allow access in your browser and try again."

// SessionExpiredMessage is shown when the provider ended a live session on its
// own, for example after the student left or the call ran too long.
const SessionExpiredMessage = "The tutor session has ended. Start a new session to continue."

type ErrorKind string

const (
	ErrorKindRequest    ErrorKind = "request"
	ErrorKindMalformed  ErrorKind = "malformed"
	ErrorKindPermission ErrorKind = "permission"
	ErrorKindExpired    ErrorKind = "expired"
)

// ErrorState is the user-facing failure of the last action.
type ErrorState struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func requestErrorState(err error) *ErrorState {
	var re *backend.RequestError
	if errors.As(err, &re) {
		kind := ErrorKindRequest
		if re.Malformed() {
			kind = ErrorKindMalformed
		}
		return &ErrorState{Kind: kind, Message: re.UserMessage()}
	}
	if errors.Is(err, backend.ErrMalformedResponse) {
		return &ErrorState{Kind: ErrorKindMalformed, Message: backend.GenericRetryMessage}
	}
	return &ErrorState{Kind: ErrorKindRequest, Message: backend.GenericRetryMessage}
}
