package domain

// EventType is the kind of a realtime notification event.
type EventType string

// Event types sent over the notifications websocket.
const (
	EventTypeNew         EventType = "new"
	EventTypeRead        EventType = "read"
	EventTypeReadAll     EventType = "read_all"
	EventTypeClearAll    EventType = "clear_all"
	EventTypeClearApp    EventType = "clear_app"
	EventTypeClearObject EventType = "clear_object"
)

// IsValid checks if the event type is one the agent reacts to.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeNew, EventTypeRead, EventTypeReadAll,
		EventTypeClearAll, EventTypeClearApp, EventTypeClearObject:
		return true
	}
	return false
}

// Event is a server-originated change notice. Only Type is acted upon.
type Event struct {
	Type     EventType `json:"type"`
	ID       string    `json:"id,omitempty"`
	App      string    `json:"app,omitempty"`
	Category string    `json:"category,omitempty"`
	Object   string    `json:"object,omitempty"`
	Content  string    `json:"content,omitempty"`
	Link     string    `json:"link,omitempty"`
}
