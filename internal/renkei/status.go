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
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MotionState describes what the motor is doing, derived from successive
// position reports
type MotionState string

const (
	MotionIdle    MotionState = "idle"
	MotionOpening MotionState = "opening"
	MotionClosing MotionState = "closing"
)

// positionStableThreshold is how many unchanged position reports mark the
// motor as idle again
const positionStableThreshold = 2

// ErrorRecord is the last device-reported error
type ErrorRecord struct {
	Code        int       `json:"code"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// Snapshot is a read-only view of the aggregated device status
type Snapshot struct {
	Fields        map[string]any `json:"fields"`
	Position      int            `json:"position"`
	PositionKnown bool           `json:"position_known"`
	Motion        MotionState    `json:"motion"`
	Absolute      int            `json:"absolute"`
	AbsoluteKnown bool           `json:"absolute_known"`
	LastError     *ErrorRecord   `json:"last_error,omitempty"`
	Info          *DeviceInfo    `json:"info,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// aggregator owns the device-status snapshot. Every inbound frame passes
// through ingest; raw fields are merged independently and "the" position is
// resolved at read time from whichever sources are present.
type aggregator struct {
	mutex  sync.RWMutex
	fields map[string]any

	lastError *ErrorRecord
	info      *DeviceInfo

	motion            MotionState
	lastPosition      int
	lastPositionKnown bool
	stableCount       int

	absolute      int
	absoluteKnown bool

	// set by the reconnection driver; consumed by the first full-status
	// merge so a pre-disconnect cached percentage cannot shadow the
	// motor's authoritative encoder position
	justReconnected bool

	updatedAt time.Time
	issues    *IssueTracker
	observers *registry[Snapshot]
	logger    zerolog.Logger
}

func newAggregator(logger zerolog.Logger, issues *IssueTracker) *aggregator {
	return &aggregator{
		fields:    make(map[string]any),
		motion:    MotionIdle,
		issues:    issues,
		observers: newRegistry[Snapshot](logger),
		logger:    logger,
	}
}

// markReconnected flags that the next full-status merge must purge the
// cached percent field. Routine merges leave it untouched.
func (a *aggregator) markReconnected() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.justReconnected = true
}

// ingest merges one inbound frame into the snapshot and notifies status
// observers with the updated view
func (a *aggregator) ingest(msg *Message) {
	a.mutex.Lock()

	switch {
	case msg.Event == EventCurrentPos:
		if percent, ok := asInt(msg.Data["percent"]); ok {
			a.fields["current_pos_percent"] = percent
			if abs, ok := ParseAbsolute(msg.Data["absolute"]); ok {
				a.absolute = abs
				a.absoluteKnown = true
			}
			a.trackMotion(percent)
		}

	case msg.Event == EventError:
		if code, ok := asInt(msg.Data["code"]); ok {
			description, _ := msg.Data["description"].(string)
			if description == "" {
				description = ErrorText(code)
			}
			a.lastError = &ErrorRecord{Code: code, Description: description, At: time.Now()}
			a.fields["err_flags"] = code
			// A faulted motor is not moving
			a.motion = MotionIdle
			a.stableCount = 0
			a.logger.Warn().Int("code", code).Str("description", description).Msg("Motor reported error")
			if a.issues != nil {
				a.issues.RecordDeviceError(code, description)
			}
		}

	case msg.Response == CmdGetStatus && len(msg.Data) > 0:
		if a.justReconnected {
			// Drop the stale pre-disconnect percentage so reads fall back
			// to the freshly merged encoder ratio
			delete(a.fields, "current_pos_percent")
			a.justReconnected = false
			a.logger.Debug().Msg("Purged cached percent after reconnect")
		}
		for key, value := range msg.Data {
			a.fields[key] = value
		}

	case msg.Response == CmdGetInfo && len(msg.Data) > 0:
		a.info = parseDeviceInfo(msg.Data)
		a.logger.Debug().Str("mac", a.info.MAC).Str("name", a.info.Name).Msg("Device info updated")
	}

	a.updatedAt = time.Now()
	snap := a.snapshotLocked()
	a.mutex.Unlock()

	a.observers.notify(snap)
}

// trackMotion updates the motion state from a fresh percent report.
// Called with the aggregator lock held.
func (a *aggregator) trackMotion(position int) {
	if a.lastPositionKnown {
		switch {
		case position > a.lastPosition:
			a.motion = MotionOpening
			a.stableCount = 0
		case position < a.lastPosition:
			a.motion = MotionClosing
			a.stableCount = 0
		default:
			a.stableCount++
			if a.stableCount >= positionStableThreshold {
				a.motion = MotionIdle
			}
		}
	}
	a.lastPosition = position
	a.lastPositionKnown = true
}

// snapshot returns a read-only copy of the aggregated status
func (a *aggregator) snapshot() Snapshot {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.snapshotLocked()
}

func (a *aggregator) snapshotLocked() Snapshot {
	fields := make(map[string]any, len(a.fields))
	for key, value := range a.fields {
		fields[key] = value
	}

	position, known := resolvePosition(a.fields)

	absolute, absoluteKnown := a.absolute, a.absoluteKnown
	if !absoluteKnown {
		// The encoder value from GET_STATUS doubles as the absolute
		// position when no CURRENT_POS event has carried one yet
		absolute, absoluteKnown = asInt(a.fields["current_pos"])
	}

	return Snapshot{
		Fields:        fields,
		Position:      position,
		PositionKnown: known,
		Motion:        a.motion,
		Absolute:      absolute,
		AbsoluteKnown: absoluteKnown,
		LastError:     a.lastError,
		Info:          a.info,
		UpdatedAt:     a.updatedAt,
	}
}

// position resolves the current position from the snapshot fields
func (a *aggregator) position() (int, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return resolvePosition(a.fields)
}

func (a *aggregator) motionState() MotionState {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.motion
}

func (a *aggregator) deviceInfo() *DeviceInfo {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.info
}

// resolvePosition picks "the" position from whichever raw fields are
// present, in precedence order: pushed percent, encoder ratio, raw encoder
// value. The result is clamped to 0-100.
func resolvePosition(fields map[string]any) (int, bool) {
	if percent, ok := asInt(fields["current_pos_percent"]); ok {
		return clampPosition(percent), true
	}

	current, haveCurrent := asInt(fields["current_pos"])
	if limit, ok := asInt(fields["limit_pos"]); ok && haveCurrent && limit > 0 {
		return clampPosition(current * 100 / limit), true
	}
	if haveCurrent {
		return clampPosition(current), true
	}
	return 0, false
}

func clampPosition(position int) int {
	if position < MinPosition {
		return MinPosition
	}
	if position > MaxPosition {
		return MaxPosition
	}
	return position
}
