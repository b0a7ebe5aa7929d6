package renkei

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestRegistryNotifyOrder(t *testing.T) {
	reg := newRegistry[int](zerolog.Nop())

	var calls []string
	reg.add(func(v int) { calls = append(calls, "first") })
	reg.add(func(v int) { calls = append(calls, "second") })
	reg.add(func(v int) { calls = append(calls, "third") })

	reg.notify(7)

	if len(calls) != 3 {
		t.Fatalf("Expected 3 observer calls, got %d", len(calls))
	}
	if calls[0] != "first" || calls[1] != "second" || calls[2] != "third" {
		t.Errorf("Expected registration order, got %v", calls)
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := newRegistry[string](zerolog.Nop())

	var got []string
	keep := reg.add(func(v string) { got = append(got, "keep:"+v) })
	drop := reg.add(func(v string) { got = append(got, "drop:"+v) })

	reg.remove(drop)
	reg.notify("x")

	if len(got) != 1 || got[0] != "keep:x" {
		t.Errorf("Expected only the remaining observer to fire, got %v", got)
	}
	if reg.len() != 1 {
		t.Errorf("Expected 1 registered observer, got %d", reg.len())
	}

	// Removing twice is harmless
	reg.remove(drop)
	reg.remove(keep)
	if reg.len() != 0 {
		t.Errorf("Expected empty registry, got %d", reg.len())
	}
}

func TestRegistryPanicIsolation(t *testing.T) {
	reg := newRegistry[int](zerolog.Nop())

	called := false
	reg.add(func(v int) { panic("observer exploded") })
	reg.add(func(v int) { called = true })

	reg.notify(1)

	if !called {
		t.Error("Expected the second observer to run despite the first panicking")
	}
}

func TestRegistryObserverValue(t *testing.T) {
	reg := newRegistry[ConnState](zerolog.Nop())

	var seen ConnState
	reg.add(func(state ConnState) { seen = state })
	reg.notify(StateReconnecting)

	if seen != StateReconnecting {
		t.Errorf("Expected observer to receive reconnecting, got %s", seen)
	}
}
