package clpe

import "fmt"

// State is the connection lifecycle of a Client.
type State int32

const (
	StateDisconnected State = iota
	// StateConnecting means connected and ready to stream.
	StateConnecting
	StateStreaming
	// StateFailed is terminal for the Client instance.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText renders the state by name in JSON debug output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
