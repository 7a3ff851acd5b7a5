package proto

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	// create a cause
	cause := NewBadRequestError(fmt.Errorf("grade is required"))
	require.Error(t, cause)

	// convert to response error
	re := ToResponseError(fmt.Errorf("wrapped: %w", cause))
	require.Equal(t, cause, re, "must be the same cause")
	require.Equal(t, ErrStatusBadRequest, re.Code, "code is correct")

	res := NewRequest("session.start", nil).NotOk(re)
	require.False(t, res.Ok())
	require.Equal(t, ErrStatusBadRequest, res.Error.Code, "code is correct")
	require.Equal(t, "grade is required", res.Error.Message, "message is correct")
	require.Nil(t, res.Result, "no result")
	_, err := json.Marshal(&res)
	require.NoError(t, err, "can json encode")

	require.Equal(t, ErrInternalServerError, ToResponseError(fmt.Errorf("boom")).Code)
}

func TestParseMessage(t *testing.T) {
	type startParams struct {
		Subject string `json:"subject"`
		Grade   int    `json:"grade"`
	}

	req := NewRequest("session.start", &startParams{Subject: "physics", Grade: 7})
	data, err := json.Marshal(req)
	require.NoError(t, err)

	msg, err := ParseMessage(data)
	require.NoError(t, err)
	parsed, ok := msg.(*Request)
	require.True(t, ok)
	require.Equal(t, req.ID, parsed.ID)
	require.Equal(t, "session.start", parsed.Method)

	params, err := As[startParams](parsed.Params)
	require.NoError(t, err)
	require.Equal(t, "physics", params.Subject)
	require.Equal(t, 7, params.Grade)

	msg, err = ParseMessage([]byte(`{"version":"1","response":"abc","result":{"granted":true}}`))
	require.NoError(t, err)
	res, ok := msg.(*Response)
	require.True(t, ok)
	require.True(t, res.Ok())

	msg, err = ParseMessage([]byte(`{"version":"1","event":"session.snapshot","data":{"state":"idle"}}`))
	require.NoError(t, err)
	require.Equal(t, "event", msg.MessageType())

	_, err = ParseMessage([]byte(`{"version":"1"}`))
	require.Error(t, err)
}

func TestAsNil(t *testing.T) {
	v, err := As[struct{ A int }](nil)
	require.NoError(t, err)
	require.Equal(t, 0, v.A)

	v, err = As[struct{ A int }](json.RawMessage("null"))
	require.NoError(t, err)
	require.Equal(t, 0, v.A)
}
