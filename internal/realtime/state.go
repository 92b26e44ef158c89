package realtime

// State is the connection state of a Channel.
type State int32

// Channel states. Inert is terminal.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateInert
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInert:
		return "inert"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
