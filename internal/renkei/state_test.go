package renkei

import (
	"testing"
)

func TestConnStateString(t *testing.T) {
	tests := []struct {
		state ConnState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateReconnecting, "reconnecting"},
		{ConnState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestValidTransition(t *testing.T) {
	allowed := []struct {
		from, to ConnState
	}{
		{StateDisconnected, StateConnecting},
		{StateDisconnected, StateReconnecting},
		{StateConnecting, StateConnected},
		{StateConnecting, StateDisconnected},
		{StateConnected, StateDisconnected},
		{StateConnected, StateReconnecting},
		{StateReconnecting, StateConnecting},
		{StateReconnecting, StateDisconnected},
	}
	for _, tt := range allowed {
		if !ValidTransition(tt.from, tt.to) {
			t.Errorf("Expected %s -> %s to be valid", tt.from, tt.to)
		}
	}

	denied := []struct {
		from, to ConnState
	}{
		{StateDisconnected, StateConnected},
		{StateConnecting, StateReconnecting},
		{StateConnected, StateConnecting},
		{StateReconnecting, StateConnected},
	}
	for _, tt := range denied {
		if ValidTransition(tt.from, tt.to) {
			t.Errorf("Expected %s -> %s to be rejected", tt.from, tt.to)
		}
	}
}
