package direct

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	tutor "github.com/babelforce/tutor-go"
)

func TestDirectTransport(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		t1, t2 = NewPair()
		c1     = t1.Control()
		c2     = t2.Control()
	)

	require.NoError(t, c1.Write([]byte("hello")))
	require.NoError(t, c2.Write([]byte("world")))

	require.Equal(t, "hello", string((<-c2.ReadChan()).Data))
	require.Equal(t, "world", string((<-c1.ReadChan()).Data))

	require.NoError(t, t1.Close(context.Background()))
	<-t2.Closed()

	_, ok := <-c1.ReadChan()
	require.False(t, ok)
	_, ok = <-c2.ReadChan()
	require.False(t, ok)

	require.ErrorIs(t, c2.Write([]byte("late")), tutor.ErrTransportClosed)
	require.NoError(t, t2.Close(context.Background()))
}

func TestWriteCopiesData(t *testing.T) {
	defer goleak.VerifyNone(t)

	t1, t2 := NewPair()
	defer t1.Close(context.Background())

	data := []byte("abc")
	require.NoError(t, t1.Control().Write(data))
	data[0] = 'x'

	require.Equal(t, "abc", string((<-t2.Control().ReadChan()).Data))
}
