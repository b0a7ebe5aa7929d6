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
)

func TestDeviceName(t *testing.T) {
	tests := []struct {
		name string
		mac  string
		want string
	}{
		{"FullMAC", "aa:bb:cc:dd:ee:ff", "RENKEI PoE DDEEFF"},
		{"UppercaseMAC", "AA:BB:CC:DD:EE:FF", "RENKEI PoE DDEEFF"},
		{"DashSeparator", "aa-bb-cc-dd-ee-ff", "RENKEI PoE DDEEFF"},
		{"ShortMAC", "ab:cd", "RENKEI PoE ABCD"},
		{"Empty", "", "RENKEI PoE "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeviceName(tt.mac)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseAbsolute(t *testing.T) {
	t.Run("HexString", func(t *testing.T) {
		value, ok := ParseAbsolute("1F40")
		if !ok {
			t.Fatal("Expected hex string to parse")
		}
		if value != 8000 {
			t.Errorf("Expected 8000, got %d", value)
		}
	})

	t.Run("HexStringWithPrefix", func(t *testing.T) {
		value, ok := ParseAbsolute("0x1F40")
		if !ok {
			t.Fatal("Expected prefixed hex string to parse")
		}
		if value != 8000 {
			t.Errorf("Expected 8000, got %d", value)
		}
	})

	t.Run("JSONNumber", func(t *testing.T) {
		value, ok := ParseAbsolute(float64(4000))
		if !ok {
			t.Fatal("Expected number to parse")
		}
		if value != 4000 {
			t.Errorf("Expected 4000, got %d", value)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		if _, ok := ParseAbsolute("zz"); ok {
			t.Error("Expected invalid hex to fail")
		}
		if _, ok := ParseAbsolute(nil); ok {
			t.Error("Expected nil to fail")
		}
	})
}

func TestValidateMove(t *testing.T) {
	tests := []struct {
		name     string
		position int
		delay    int
		wantErr  bool
	}{
		{"Valid", 50, 0, false},
		{"FullyOpen", 100, 30, false},
		{"PositionTooHigh", 101, 0, true},
		{"PositionNegative", -1, 0, true},
		{"DelayTooHigh", 50, 31, true},
		{"DelayNegative", 50, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMove(tt.position, tt.delay)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected valid input, got error: %v", err)
			}
		})
	}
}

func TestValidateAbsoluteMove(t *testing.T) {
	tests := []struct {
		name     string
		position int
		delay    int
		wantErr  bool
	}{
		{"Valid", 32000, 0, false},
		{"MaxPosition", 65536, 65535, false},
		{"PositionTooHigh", 65537, 0, true},
		{"PositionNegative", -1, 0, true},
		{"DelayTooHigh", 0, 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAbsoluteMove(tt.position, tt.delay)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected valid input, got error: %v", err)
			}
		})
	}
}

func TestValidateJog(t *testing.T) {
	for _, count := range []int{1, 3, 5} {
		if err := validateJog(count); err != nil {
			t.Errorf("Expected count %d to be valid, got error: %v", count, err)
		}
	}
	for _, count := range []int{0, 6, -1} {
		if err := validateJog(count); err == nil {
			t.Errorf("Expected count %d to be rejected", count)
		}
	}
}

func TestMessageKind(t *testing.T) {
	t.Run("Reply", func(t *testing.T) {
		msg := &Message{Response: CmdGetStatus}
		if !msg.IsReply() {
			t.Error("Expected message to be a reply")
		}
		if msg.IsEvent() {
			t.Error("Expected message not to be an event")
		}
	})

	t.Run("Event", func(t *testing.T) {
		msg := &Message{Event: EventCurrentPos}
		if msg.IsReply() {
			t.Error("Expected message not to be a reply")
		}
		if !msg.IsEvent() {
			t.Error("Expected message to be an event")
		}
	})
}

func TestParseDeviceInfo(t *testing.T) {
	info := parseDeviceInfo(map[string]any{
		"mac":      "aa:bb:cc:dd:ee:ff",
		"firmware": "1.4.2",
		"ip":       "192.168.1.50",
	})

	if info.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("Expected MAC to be preserved, got %q", info.MAC)
	}
	if info.Firmware != "1.4.2" {
		t.Errorf("Expected firmware '1.4.2', got %q", info.Firmware)
	}
	if info.Name != "RENKEI PoE DDEEFF" {
		t.Errorf("Expected derived name, got %q", info.Name)
	}
	if info.Raw["ip"] != "192.168.1.50" {
		t.Error("Expected raw fields to be preserved")
	}
}
