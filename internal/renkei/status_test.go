// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package renkei

import (
	"testing"

	"github.com/rs/zerolog"
)

func positionEvent(percent int) *Message {
	return &Message{Event: EventCurrentPos, Data: map[string]any{"percent": float64(percent)}}
}

func statusReply(data map[string]any) *Message {
	return &Message{Response: CmdGetStatus, Data: data}
}

func TestIngestCurrentPos(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	agg.ingest(&Message{Event: EventCurrentPos, Data: map[string]any{
		"percent":  float64(40),
		"absolute": "0x1F40",
	}})

	snap := agg.snapshot()
	if !snap.PositionKnown || snap.Position != 40 {
		t.Errorf("Expected position 40, got %d (known=%v)", snap.Position, snap.PositionKnown)
	}
	if !snap.AbsoluteKnown || snap.Absolute != 8000 {
		t.Errorf("Expected absolute 8000, got %d (known=%v)", snap.Absolute, snap.AbsoluteKnown)
	}
}

func TestMotionTracking(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	// First report primes the tracker without declaring motion
	agg.ingest(positionEvent(10))
	if agg.motionState() != MotionIdle {
		t.Errorf("Expected idle after first report, got %s", agg.motionState())
	}

	agg.ingest(positionEvent(30))
	if agg.motionState() != MotionOpening {
		t.Errorf("Expected opening, got %s", agg.motionState())
	}

	agg.ingest(positionEvent(20))
	if agg.motionState() != MotionClosing {
		t.Errorf("Expected closing, got %s", agg.motionState())
	}

	// One unchanged report is not yet stable
	agg.ingest(positionEvent(20))
	if agg.motionState() != MotionClosing {
		t.Errorf("Expected still closing after one stable report, got %s", agg.motionState())
	}

	agg.ingest(positionEvent(20))
	if agg.motionState() != MotionIdle {
		t.Errorf("Expected idle after two stable reports, got %s", agg.motionState())
	}
}

func TestErrorEventClearsMotion(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	agg.ingest(positionEvent(10))
	agg.ingest(positionEvent(30))
	if agg.motionState() != MotionOpening {
		t.Fatalf("Expected opening, got %s", agg.motionState())
	}

	agg.ingest(&Message{Event: EventError, Data: map[string]any{"code": float64(302)}})

	snap := agg.snapshot()
	if snap.Motion != MotionIdle {
		t.Errorf("Expected idle after error, got %s", snap.Motion)
	}
	if snap.LastError == nil || snap.LastError.Code != 302 {
		t.Fatal("Expected last error code 302")
	}
	if snap.LastError.Description != "Voltage error" {
		t.Errorf("Expected documented description, got %q", snap.LastError.Description)
	}
	if flags, ok := asInt(snap.Fields["err_flags"]); !ok || flags != 302 {
		t.Error("Expected err_flags to carry the error code")
	}
}

func TestStatusMergeDerivesPosition(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	agg.ingest(statusReply(map[string]any{
		"current_pos": float64(4000),
		"limit_pos":   float64(8000),
	}))

	if pos, ok := agg.position(); !ok || pos != 50 {
		t.Errorf("Expected derived position 50, got %d (known=%v)", pos, ok)
	}

	// Integer ratio truncates
	agg.ingest(statusReply(map[string]any{
		"current_pos": float64(3333),
		"limit_pos":   float64(10000),
	}))
	if pos, _ := agg.position(); pos != 33 {
		t.Errorf("Expected truncated position 33, got %d", pos)
	}
}

func TestRoutineMergeKeepsPercent(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	agg.ingest(positionEvent(40))
	agg.ingest(statusReply(map[string]any{
		"current_pos": float64(5600),
		"limit_pos":   float64(8000),
	}))

	// The pushed percent outranks the encoder ratio on a routine merge
	if pos, _ := agg.position(); pos != 40 {
		t.Errorf("Expected percent to win, got %d", pos)
	}
}

func TestReconnectPurgesStalePercent(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	agg.ingest(positionEvent(40))
	agg.markReconnected()

	agg.ingest(statusReply(map[string]any{
		"current_pos": float64(5600),
		"limit_pos":   float64(8000),
	}))

	// The stale percent is gone, so the fresh encoder ratio resolves
	if pos, ok := agg.position(); !ok || pos != 70 {
		t.Errorf("Expected resynced position 70, got %d (known=%v)", pos, ok)
	}

	// The purge is one-shot: later merges leave new percent reports alone
	agg.ingest(positionEvent(55))
	agg.ingest(statusReply(map[string]any{
		"current_pos": float64(800),
		"limit_pos":   float64(8000),
	}))
	if pos, _ := agg.position(); pos != 55 {
		t.Errorf("Expected later percent to win again, got %d", pos)
	}
}

func TestEmptyStatusReplyIgnored(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	agg.ingest(positionEvent(40))
	agg.markReconnected()
	agg.ingest(statusReply(map[string]any{}))

	// An empty reply must not consume the purge or the cached percent
	if pos, ok := agg.position(); !ok || pos != 40 {
		t.Errorf("Expected position 40 to survive an empty reply, got %d (known=%v)", pos, ok)
	}
}

func TestResolvePositionPrecedence(t *testing.T) {
	t.Run("PercentWins", func(t *testing.T) {
		pos, ok := resolvePosition(map[string]any{
			"current_pos_percent": float64(25),
			"current_pos":         float64(8000),
			"limit_pos":           float64(8000),
		})
		if !ok || pos != 25 {
			t.Errorf("Expected 25, got %d", pos)
		}
	})

	t.Run("RatioFallback", func(t *testing.T) {
		pos, ok := resolvePosition(map[string]any{
			"current_pos": float64(2000),
			"limit_pos":   float64(8000),
		})
		if !ok || pos != 25 {
			t.Errorf("Expected 25, got %d", pos)
		}
	})

	t.Run("RawFallback", func(t *testing.T) {
		pos, ok := resolvePosition(map[string]any{"current_pos": float64(60)})
		if !ok || pos != 60 {
			t.Errorf("Expected 60, got %d", pos)
		}
	})

	t.Run("ZeroLimitSkipsRatio", func(t *testing.T) {
		pos, ok := resolvePosition(map[string]any{
			"current_pos": float64(60),
			"limit_pos":   float64(0),
		})
		if !ok || pos != 60 {
			t.Errorf("Expected raw fallback 60, got %d", pos)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, ok := resolvePosition(map[string]any{}); ok {
			t.Error("Expected unknown position")
		}
	})

	t.Run("Clamped", func(t *testing.T) {
		pos, _ := resolvePosition(map[string]any{"current_pos_percent": float64(150)})
		if pos != 100 {
			t.Errorf("Expected clamp to 100, got %d", pos)
		}
		pos, _ = resolvePosition(map[string]any{"current_pos_percent": float64(-5)})
		if pos != 0 {
			t.Errorf("Expected clamp to 0, got %d", pos)
		}
	})
}

func TestDeviceInfoFromReply(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	agg.ingest(&Message{Response: CmdGetInfo, Data: map[string]any{
		"mac":      "aa:bb:cc:dd:ee:ff",
		"firmware": "1.4.2",
	}})

	info := agg.deviceInfo()
	if info == nil {
		t.Fatal("Expected device info")
	}
	if info.Name != "RENKEI PoE DDEEFF" {
		t.Errorf("Expected derived name, got %q", info.Name)
	}
}

func TestObserverNotifiedPerFrame(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)

	var seen []Snapshot
	agg.observers.add(func(snap Snapshot) { seen = append(seen, snap) })

	agg.ingest(positionEvent(10))
	agg.ingest(statusReply(map[string]any{"limit_pos": float64(8000)}))
	agg.ingest(&Message{Response: CmdGetInfo, Data: map[string]any{"mac": "aa:bb:cc:dd:ee:ff"}})

	if len(seen) != 3 {
		t.Fatalf("Expected 3 notifications, got %d", len(seen))
	}
	if seen[0].Position != 10 {
		t.Errorf("Expected first snapshot position 10, got %d", seen[0].Position)
	}
	if seen[2].Info == nil {
		t.Error("Expected final snapshot to carry device info")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	agg := newAggregator(zerolog.Nop(), nil)
	agg.ingest(positionEvent(10))

	snap := agg.snapshot()
	snap.Fields["current_pos_percent"] = float64(99)

	if pos, _ := agg.position(); pos != 10 {
		t.Errorf("Expected aggregator to be unaffected by snapshot mutation, got %d", pos)
	}
}
