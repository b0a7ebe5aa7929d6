package renkei

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client. Callers match them with errors.Is.
var (
	// ErrNotConnected is returned when a command is sent with no open socket.
	ErrNotConnected = errors.New("not connected to motor")

	// ErrConnectionLost fails every pending command when the stream dies.
	ErrConnectionLost = errors.New("connection lost")

	// ErrTimeout is returned when the motor does not answer within the
	// response deadline.
	ErrTimeout = errors.New("timeout waiting for response")

	// ErrListenerNotReady is returned when the read loop fails to arm
	// within the readiness deadline after the socket opened.
	ErrListenerNotReady = errors.New("listener failed to become ready")
)

// DeviceError is a failure reported by the motor itself, carried in an
// ERROR reply or event.
type DeviceError struct {
	Code        int
	Description string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("motor error %d: %s", e.Code, e.Description)
}

// errorText maps the controller's documented error codes to descriptions.
var errorText = map[int]string{
	100: "Unknown command",
	101: "Invalid parameters",
	102: "Motor busy",
	103: "Motor unreachable",
	104: "Checksum error",
	300: "Limits not set",
	301: "UART Error",
	302: "Voltage error",
	303: "Over-current error",
	304: "Encoder error",
}

// ErrorText returns the documented description for a motor error code
func ErrorText(code int) string {
	if text, ok := errorText[code]; ok {
		return text
	}
	return "Unknown error"
}

// newDeviceError builds a DeviceError from an ERROR frame's data fields,
// falling back to the documented code table when no description is carried.
func newDeviceError(data map[string]any) *DeviceError {
	code, _ := asInt(data["code"])
	desc, _ := data["description"].(string)
	if desc == "" {
		desc = ErrorText(code)
	}
	return &DeviceError{Code: code, Description: desc}
}
