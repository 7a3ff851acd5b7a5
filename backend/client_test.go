package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestStart(t *testing.T) {
	var got startRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat/start", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("x-api-key"))
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"conversation_id":"abc","join_url":"https://x","status":"active"}`)
	}, WithAPIKey("secret"))

	desc, err := c.Start(context.Background(), "physics", 7)
	require.NoError(t, err)
	require.Equal(t, &SessionDescriptor{ID: "abc", JoinURL: "https://x", Status: SessionStatusActive}, desc)
	require.Equal(t, startRequest{Subject: "physics", Grade: 7}, got)
}

func TestStartStatusError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "message field", status: 500, body: `{"message":"quota exceeded"}`, message: "quota exceeded"},
		{name: "detail field", status: 500, body: `{"detail":"Subject and grade are required"}`, message: "Subject and grade are required"},
		{name: "validation detail", status: 422, body: `{"detail":[{"loc":["body","grade"],"msg":"field required","type":"value_error.missing"}]}`, message: "field required"},
		{name: "empty validation detail", status: 422, body: `{"detail":[]}`, message: GenericRetryMessage},
		{name: "no body", status: 502, body: ``, message: GenericRetryMessage},
		{name: "non json", status: 503, body: `<html>down</html>`, message: GenericRetryMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Start(context.Background(), "physics", 7)
			var re *RequestError
			require.ErrorAs(t, err, &re)
			require.Equal(t, ErrorKindStatus, re.Kind)
			require.Equal(t, tt.status, re.StatusCode)
			require.Equal(t, tt.message, re.UserMessage())
		})
	}
}

func TestStartMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing join url", body: `{"conversation_id":"abc","status":"active"}`},
		{name: "missing id", body: `{"join_url":"https://x","status":"active"}`},
		{name: "not json", body: `ok`},
		{name: "already ended", body: `{"conversation_id":"abc","join_url":"https://x","status":"ended"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})

			desc, err := c.Start(context.Background(), "physics", 7)
			require.Nil(t, desc)
			require.ErrorIs(t, err, ErrMalformedResponse)

			var re *RequestError
			require.ErrorAs(t, err, &re)
			require.True(t, re.Malformed())
			require.Equal(t, GenericRetryMessage, re.UserMessage())
		})
	}
}

func TestStartTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Start(context.Background(), "physics", 7)
	var re *RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, ErrorKindTransport, re.Kind)
	require.Equal(t, GenericRetryMessage, re.UserMessage())
}

func TestEnd(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/end/abc", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"status": "completed",
			"teaching_plan": {"understanding_level": "beginner", "topics": [{"name": "Forces and Motion", "priority": 1, "objectives": ["Newton's Laws"]}]},
			"videos": [{"topic": "Forces and Motion", "video_url": "https://v/1", "status": "queued"}]
		}`)
	})

	res, err := c.End(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "completed", res.Status)
	require.NotNil(t, res.TeachingPlan)
	require.Equal(t, "beginner", res.TeachingPlan.UnderstandingLevel)
	require.Len(t, res.TeachingPlan.Topics, 1)
	require.Equal(t, []Video{{Topic: "Forces and Motion", VideoURL: "https://v/1", Status: "queued"}}, res.Videos)

	// no deduplication
	_, err = c.End(context.Background(), "abc")
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestEndEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	res, err := c.End(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, &EndResult{}, res)
}

func TestEndFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.End(context.Background(), "abc")
	var re *RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusInternalServerError, re.StatusCode)
}

func TestEndWaitsForSlowBackend(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = io.WriteString(w, `{"status":"completed"}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.End(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "completed", res.Status)

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.End(ctx, "abc")
	var re *RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, ErrorKindTransport, re.Kind)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// Ending a session runs several provider calls on the backend, each with its
// own 30s budget. Only the caller's context bounds the wait.
func TestEndBeyondThirtySeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(31 * time.Second)
		_, _ = io.WriteString(w, `{"status":"completed"}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := c.End(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "completed", res.Status)
}

func TestDefaultHTTPClientHasNoResponseDeadline(t *testing.T) {
	tr, ok := newDefaultHTTPClient().Transport.(*http.Transport)
	require.True(t, ok)
	require.Zero(t, tr.ResponseHeaderTimeout)
	require.Zero(t, newDefaultHTTPClient().Timeout)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		body   string
		status SessionStatus
	}{
		{body: `{"conversation_id":"abc","status":"active"}`, status: SessionStatusActive},
		{body: `{"conversation_id":"abc","status":"ended"}`, status: SessionStatusEnded},
		{body: `{"status":"completed"}`, status: SessionStatusCompleted},
		{body: `{"status":"waiting"}`, status: SessionStatusPending},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodGet, r.Method)
				require.Equal(t, "/api/chat/status/abc", r.URL.Path)
				_, _ = io.WriteString(w, tt.body)
			})

			status, err := c.Status(context.Background(), "abc")
			require.NoError(t, err)
			require.Equal(t, tt.status, status)
		})
	}
}

func TestStatusFailure(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Conversation abc not found"}`)
		})

		_, err := c.Status(context.Background(), "abc")
		var re *RequestError
		require.ErrorAs(t, err, &re)
		require.Equal(t, http.StatusNotFound, re.StatusCode)
		require.Equal(t, "Conversation abc not found", re.UserMessage())
	})

	t.Run("missing status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"conversation_id":"abc"}`)
		})

		_, err := c.Status(context.Background(), "abc")
		require.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestStatusPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations/a%2Fb", r.URL.EscapedPath())
		_, _ = io.WriteString(w, `{"status":"active"}`)
	}, WithStatusPath("/conversations/{conversation_id}"))

	status, err := c.Status(context.Background(), "a/b")
	require.NoError(t, err)
	require.Equal(t, SessionStatusActive, status)
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"message":"Welcome to StudySauce API"}`)
	})

	require.NoError(t, c.Health(context.Background()))

	healthy.Store(false)
	require.Error(t, c.Health(context.Background()))
}

func TestRequestObserver(t *testing.T) {
	type call struct {
		op  string
		err error
	}
	var calls []call

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}, WithRequestObserver(func(op string, took time.Duration, err error) {
		calls = append(calls, call{op: op, err: err})
	}))

	require.Error(t, c.Health(context.Background()))
	require.Len(t, calls, 1)
	require.Equal(t, "health", calls[0].op)

	var re *RequestError
	require.True(t, errors.As(calls[0].err, &re))
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New("localhost:8002")
	require.Error(t, err)

	_, err = New("http://")
	require.Error(t, err)

	c, err := New("http://localhost:8002/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8002/api/chat/start", c.url(DefaultStartPath))
}

func TestParseSessionStatus(t *testing.T) {
	require.Equal(t, SessionStatusActive, ParseSessionStatus("started"))
	require.Equal(t, SessionStatusActive, ParseSessionStatus("Active"))
	require.Equal(t, SessionStatusPending, ParseSessionStatus(""))
	require.Equal(t, SessionStatusPending, ParseSessionStatus("weird"))
	require.Equal(t, SessionStatusEnded, ParseSessionStatus("ended"))
	require.Equal(t, SessionStatusCompleted, ParseSessionStatus("completed"))
}
