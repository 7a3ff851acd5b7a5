package tutor

import (
	"slices"

	"github.com/babelforce/tutor-go/backend"
	"github.com/babelforce/tutor-go/connectivity"
	"github.com/babelforce/tutor-go/media"
)

// Snapshot is an immutable view of the controller. Descriptor and Videos are
// copies; TeachingPlan is shared and must be treated as read-only.
type Snapshot struct {
	State        State                      `json:"state"`
	Descriptor   *backend.SessionDescriptor `json:"session,omitempty"`
	Error        *ErrorState                `json:"error,omitempty"`
	RenderToken  uint64                     `json:"render_token"`
	Generation   uint64                     `json:"generation"`
	Connectivity connectivity.State         `json:"connectivity"`
	Permission   media.Permission           `json:"permission"`
	CanStart     bool                       `json:"can_start"`
	CanEnd       bool                       `json:"can_end"`
	Renderable   bool                       `json:"renderable"`
	TeachingPlan *backend.TeachingPlan      `json:"teaching_plan,omitempty"`
	Videos       []backend.Video            `json:"videos,omitempty"`
}

// Observer receives a snapshot after every transition. It runs on the
// controller's loop and must not block.
type Observer func(Snapshot)

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:        c.state,
		RenderToken:  c.renderToken,
		Generation:   c.generation,
		Connectivity: c.connectivity,
		Permission:   c.permission,
		CanStart:     c.connectivity == connectivity.StateConnected && !c.state.busy() && c.state != StateLive,
		CanEnd:       c.descriptor != nil && (c.state == StateLive || c.state == StateAwaitingPermission || c.state == StateErrored),
		Renderable:   c.state == StateLive && c.descriptor != nil,
	}
	if c.descriptor != nil {
		d := *c.descriptor
		s.Descriptor = &d
	}
	if c.err != nil {
		e := *c.err
		s.Error = &e
	}
	if c.results != nil {
		s.TeachingPlan = c.results.TeachingPlan
		s.Videos = slices.Clone(c.results.Videos)
	}
	return s
}

// publish stores the current snapshot and notifies observers.
func (c *Controller) publish() {
	s := c.snapshot()

	c.mu.Lock()
	c.current = s
	observers := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o)
	}
	c.mu.Unlock()

	for _, o := range observers {
		o(s)
	}
}

// Snapshot returns the latest published snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe registers an observer. Registration happens on the event loop, so
// the observer first receives the snapshot current at that point and then every
// later one, in order. The returned func removes it again.
func (c *Controller) Subscribe(o Observer) (unsubscribe func(), err error) {
	var id uint64
	registered := make(chan struct{})

	err = c.dispatch(func() {
		defer close(registered)

		c.mu.Lock()
		c.nextObserver++
		id = c.nextObserver
		c.observers[id] = o
		current := c.current
		c.mu.Unlock()

		o(current)
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-registered:
	case <-c.done:
		return nil, ErrClosed
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}, nil
}
