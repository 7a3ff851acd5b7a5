package tutor

import "log/slog"

type State string

const (
	StateIdle               State = "idle"
	StateStarting           State = "starting"
	StateAwaitingPermission State = "awaiting_permission"
	StateLive               State = "live"
	StateEnding             State = "ending"
	StateErrored            State = "errored"
)

// busy reports whether an action is in flight.
func (s State) busy() bool {
	return s == StateStarting || s == StateAwaitingPermission || s == StateEnding
}

// setState must only be called from the event loop.
func (c *Controller) setState(state State) {
	prev := c.state
	c.state = state
	if prev == StateLive && state != StateLive && c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	c.logger.Debug("Controller.setState",
		slog.Any("from", prev),
		slog.Any("to", state),
		slog.Uint64("generation", c.generation),
	)
	c.publish()
}

func (c *Controller) State() State {
	return c.Snapshot().State
}
