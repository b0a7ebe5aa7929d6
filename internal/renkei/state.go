package renkei

// ConnState represents the connection state of a motor client
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the state name used in logs and the wire-facing API
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// validTransitions is the full transition table of the connection state
// machine. Loss while connected may route straight to reconnecting (health
// probe failure) or pass through disconnected first (listener EOF).
var validTransitions = map[ConnState][]ConnState{
	StateDisconnected: {StateConnecting, StateReconnecting},
	StateConnecting:   {StateConnected, StateDisconnected},
	StateConnected:    {StateDisconnected, StateReconnecting},
	StateReconnecting: {StateConnecting, StateDisconnected},
}

// ValidTransition reports whether moving from one state to another is
// allowed by the transition table. Same-state moves are not transitions.
func ValidTransition(from, to ConnState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
