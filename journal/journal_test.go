package journal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tutor "github.com/babelforce/tutor-go"
	"github.com/babelforce/tutor-go/backend"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return epoch
}

func snapshot(gen uint64) tutor.Snapshot {
	return tutor.Snapshot{
		State:      tutor.StateLive,
		Generation: gen,
		Descriptor: &backend.SessionDescriptor{ID: "abc", JoinURL: "https://x", Status: backend.SessionStatusActive},
	}
}

func lineLen(t *testing.T, s tutor.Snapshot) int {
	t.Helper()
	data, err := json.Marshal(Entry{Time: epoch, Snapshot: s})
	require.NoError(t, err)
	return len(data) + 1
}

func TestRecordAndEntries(t *testing.T) {
	j := New(0, WithClock(fixedClock))

	j.Record(snapshot(1))
	j.Record(snapshot(2))

	entries := j.Entries()
	require.Len(t, entries, 2)
	require.EqualValues(t, 1, entries[0].Snapshot.Generation)
	require.EqualValues(t, 2, entries[1].Snapshot.Generation)
	require.Equal(t, "abc", entries[1].Snapshot.Descriptor.ID)
	require.True(t, entries[0].Time.Equal(epoch))

	// reading does not consume
	require.Len(t, j.Entries(), 2)
	require.Equal(t, 2, j.Len())
}

func TestEvictsOldest(t *testing.T) {
	n := lineLen(t, snapshot(1))
	j := New(2*n+n/2, WithClock(fixedClock))

	for gen := uint64(1); gen <= 5; gen++ {
		j.Record(snapshot(gen))
	}

	entries := j.Entries()
	require.Len(t, entries, 2)
	require.EqualValues(t, 4, entries[0].Snapshot.Generation)
	require.EqualValues(t, 5, entries[1].Snapshot.Generation)
}

func TestDropsOversizedSnapshot(t *testing.T) {
	j := New(16, WithClock(fixedClock))

	j.Record(snapshot(1))
	require.Zero(t, j.Len())
	require.Empty(t, j.Entries())
}

func TestReset(t *testing.T) {
	j := New(0, WithClock(fixedClock))
	j.Record(snapshot(1))
	j.Reset()

	require.Zero(t, j.Len())
	require.Nil(t, j.Bytes())

	j.Record(snapshot(2))
	require.Len(t, j.Entries(), 1)
}
