package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/backend"
	"github.com/babelforce/tutor-go/connectivity"
)

func TestObserveCountsTransitions(t *testing.T) {
	m := New()

	m.Observe(tutor.Snapshot{State: tutor.StateIdle, Connectivity: connectivity.StateConnected})
	// connectivity only, same state
	m.Observe(tutor.Snapshot{State: tutor.StateIdle, Connectivity: connectivity.StateDisconnected})
	m.Observe(tutor.Snapshot{State: tutor.StateStarting})
	m.Observe(tutor.Snapshot{State: tutor.StateErrored, Error: &tutor.ErrorState{Kind: tutor.ErrorKindMalformed}})
	m.Observe(tutor.Snapshot{State: tutor.StateStarting})
	m.Observe(tutor.Snapshot{State: tutor.StateAwaitingPermission})
	m.Observe(tutor.Snapshot{State: tutor.StateLive, Renderable: true, Connectivity: connectivity.StateConnected})

	require.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("idle")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("starting")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("live")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("malformed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Live))

	require.Equal(t, 1.0, testutil.ToFloat64(m.Connectivity.WithLabelValues("connected")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.Connectivity.WithLabelValues("disconnected")))
}

func TestObserveRequest(t *testing.T) {
	m := New()

	m.ObserveRequest("start session", 10*time.Millisecond, nil)
	m.ObserveRequest("start session", 20*time.Millisecond, &backend.RequestError{Kind: backend.ErrorKindStatus})
	m.ObserveRequest("end session", time.Millisecond, errors.New("boom"))

	require.Equal(t, 3, testutil.CollectAndCount(m.RequestDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe(tutor.Snapshot{State: tutor.StateIdle})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `tutor_session_transitions_total{state="idle"} 1`))
}
