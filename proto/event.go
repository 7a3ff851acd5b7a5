package proto

type Event struct {
	Version string `json:"version"`
	ID      string `json:"id,omitempty"`
	Event   string `json:"event"`
	Data    any    `json:"data,omitempty"`
}

func (e *Event) MessageType() string {
	return "event"
}

func NewEvent(eventName string, data any) *Event {
	return &Event{
		Version: Version,
		ID:      ID(),
		Event:   eventName,
		Data:    data,
	}
}

var _ Message = &Event{}
