package renkei

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPort is the controller's TCP listener port
const DefaultPort = 17002

// Commands understood by the motor controller
const (
	CmdMove         = "MOVE"
	CmdAbsoluteMove = "A_MOVE"
	CmdStop         = "STOP"
	CmdGetStatus    = "GET_STATUS"
	CmdGetInfo      = "GET_INFO"
	CmdJog          = "JOG"
)

// Events pushed by the motor controller
const (
	EventCurrentPos = "CURRENT_POS"
	EventError      = "ERROR"
)

// ResponseError tags an error reply; the protocol does not echo which
// command failed
const ResponseError = "ERROR"

// Parameter ranges accepted by the controller
const (
	MinPosition = 0
	MaxPosition = 100

	MaxAbsolutePosition = 65536
	MaxAbsoluteDelay    = 65535

	MaxMoveDelay = 30

	MinJogCount = 1
	MaxJogCount = 5
)

// Request is an outbound command frame
type Request struct {
	Cmd    string         `json:"cmd"`
	Params map[string]any `json:"params"`
}

// Message is an inbound frame: a reply to a command or a pushed event
type Message struct {
	Response string         `json:"response,omitempty"`
	Event    string         `json:"event,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// IsReply reports whether the frame answers a command
func (m *Message) IsReply() bool {
	return m.Response != ""
}

// IsEvent reports whether the frame is unsolicited telemetry
func (m *Message) IsEvent() bool {
	return m.Event != ""
}

// DeviceInfo is the identity parsed from a GET_INFO reply
type DeviceInfo struct {
	MAC      string         `json:"mac"`
	Firmware string         `json:"firmware"`
	Name     string         `json:"name"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// parseDeviceInfo extracts identity fields from a GET_INFO data payload
func parseDeviceInfo(data map[string]any) *DeviceInfo {
	info := &DeviceInfo{Raw: data}
	if mac, ok := data["mac"].(string); ok {
		info.MAC = mac
	}
	if fw, ok := data["firmware"].(string); ok {
		info.Firmware = fw
	}
	info.Name = DeviceName(info.MAC)
	return info
}

// DeviceName derives the display name from the controller's MAC address:
// "RENKEI PoE " followed by the last three bytes, uppercased
func DeviceName(mac string) string {
	clean := strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(mac))
	if len(clean) >= 6 {
		return "RENKEI PoE " + clean[len(clean)-6:]
	}
	return "RENKEI PoE " + clean
}

// ParseAbsolute decodes the hex-string absolute position carried by
// CURRENT_POS events. Numeric values are accepted as-is.
func ParseAbsolute(raw any) (int, bool) {
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimPrefix(v, "0x"), 16, 64)
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return asInt(raw)
	}
}

// asInt coerces the loose JSON number shapes the controller emits
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// validateMove checks MOVE parameters against the controller's accepted
// ranges before anything is written to the wire
func validateMove(pos, delay int) error {
	if pos < MinPosition || pos > MaxPosition {
		return fmt.Errorf("move position %d out of range %d-%d", pos, MinPosition, MaxPosition)
	}
	if delay < 0 || delay > MaxMoveDelay {
		return fmt.Errorf("move delay %d out of range 0-%d", delay, MaxMoveDelay)
	}
	return nil
}

// validateAbsoluteMove checks A_MOVE parameters (encoder counts)
func validateAbsoluteMove(pos, delay int) error {
	if pos < 0 || pos > MaxAbsolutePosition {
		return fmt.Errorf("absolute position %d out of range 0-%d", pos, MaxAbsolutePosition)
	}
	if delay < 0 || delay > MaxAbsoluteDelay {
		return fmt.Errorf("absolute move delay %d out of range 0-%d", delay, MaxAbsoluteDelay)
	}
	return nil
}

// validateJog checks JOG parameters
func validateJog(count int) error {
	if count < MinJogCount || count > MaxJogCount {
		return fmt.Errorf("jog count %d out of range %d-%d", count, MinJogCount, MaxJogCount)
	}
	return nil
}
