// Package journal keeps the most recent controller snapshots in a bounded
// byte ring, one JSON document per line. Oldest lines are evicted first.
package journal

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	tutor "github.com/babelforce/tutor-go"
)

const DefaultSize = 64 * 1024

type Entry struct {
	Time     time.Time      `json:"time"`
	Snapshot tutor.Snapshot `json:"snapshot"`
}

type Journal struct {
	mu     sync.Mutex
	buf    *ringbuffer.RingBuffer
	size   int
	lines  []int // byte length of every line in buf, oldest first
	logger *slog.Logger
	now    func() time.Time
}

// Record appends s. It is safe to use as a tutor.Observer.
func (j *Journal) Record(s tutor.Snapshot) {
	line, err := json.Marshal(Entry{Time: j.now(), Snapshot: s})
	if err != nil {
		j.logger.Error("failed to encode snapshot", slog.Any("err", err))
		return
	}
	line = append(line, '\n')

	if len(line) > j.size {
		j.logger.Warn("snapshot larger than journal, dropping", slog.Int("len", len(line)))
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for j.size-j.buf.Length() < len(line) {
		j.evict()
	}

	if _, err := j.buf.Write(line); err != nil {
		j.logger.Error("failed to write snapshot", slog.Any("err", err))
		return
	}
	j.lines = append(j.lines, len(line))
}

func (j *Journal) evict() {
	n := j.lines[0]
	j.lines = j.lines[1:]
	_, _ = j.buf.Read(make([]byte, n))
}

// Entries returns the retained entries, oldest first.
func (j *Journal) Entries() []Entry {
	data := j.Bytes()

	entries := make([]Entry, 0, bytes.Count(data, []byte{'\n'}))
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			j.logger.Error("corrupt journal line", slog.Any("err", err))
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// Bytes returns the raw JSON lines without consuming them.
func (j *Journal) Bytes() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := j.buf.Length()
	if n == 0 {
		return nil
	}

	data := make([]byte, n)
	_, _ = j.buf.Read(data)
	_, _ = j.buf.Write(data)
	return data
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.lines)
}

func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.buf.Reset()
	j.lines = nil
}

type Option func(j *Journal)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) {
		j.logger = logger
	}
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// New creates a journal holding at most size bytes of JSON lines. A size of
// zero or less uses DefaultSize.
func New(size int, opts ...Option) *Journal {
	if size <= 0 {
		size = DefaultSize
	}

	j := &Journal{
		buf:    ringbuffer.New(size),
		size:   size,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	j.logger = j.logger.With(slog.String("component", "journal"))
	return j
}
