package motorsim

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

type wireMessage struct {
	Response string         `json:"response"`
	Event    string         `json:"event"`
	Data     map[string]any `json:"data"`
}

func startTestServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer("127.0.0.1:0")
	server.SetTick(10 * time.Millisecond)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start simulator: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dialServer(t *testing.T, server *Server) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", server.Addr())
	if err != nil {
		t.Fatalf("Failed to dial simulator: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func sendCommand(t *testing.T, conn net.Conn, cmd string, params map[string]any) {
	t.Helper()

	if params == nil {
		params = map[string]any{}
	}
	frame, err := json.Marshal(map[string]any{"cmd": cmd, "params": params})
	if err != nil {
		t.Fatalf("Failed to encode command: %v", err)
	}
	if _, err := conn.Write(append(frame, '\n')); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}
}

func readMessage(t *testing.T, conn net.Conn, reader *bufio.Reader) *wireMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		t.Fatalf("Invalid frame %q: %v", line, err)
	}
	return &msg
}

// readReply skips interleaved events until a reply frame arrives
func readReply(t *testing.T, conn net.Conn, reader *bufio.Reader) *wireMessage {
	t.Helper()

	for i := 0; i < 100; i++ {
		msg := readMessage(t, conn, reader)
		if msg.Response != "" {
			return msg
		}
	}
	t.Fatal("No reply within 100 frames")
	return nil
}

func TestGetStatus(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	sendCommand(t, conn, "GET_STATUS", nil)
	msg := readReply(t, conn, reader)

	if msg.Response != "GET_STATUS" {
		t.Fatalf("Expected GET_STATUS reply, got %q", msg.Response)
	}
	if limit, ok := msg.Data["limit_pos"].(float64); !ok || limit != 8000 {
		t.Errorf("Expected limit_pos 8000, got %v", msg.Data["limit_pos"])
	}
	if run, ok := msg.Data["run"].(float64); !ok || run != 0 {
		t.Errorf("Expected run 0 while idle, got %v", msg.Data["run"])
	}
}

func TestGetInfo(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	sendCommand(t, conn, "GET_INFO", nil)
	msg := readReply(t, conn, reader)

	if msg.Response != "GET_INFO" {
		t.Fatalf("Expected GET_INFO reply, got %q", msg.Response)
	}
	if msg.Data["mac"] != defaultMAC {
		t.Errorf("Expected default MAC, got %v", msg.Data["mac"])
	}
	if msg.Data["firmware"] != defaultFirmware {
		t.Errorf("Expected default firmware, got %v", msg.Data["firmware"])
	}
}

func TestMoveEmitsPositionEvents(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	sendCommand(t, conn, "MOVE", map[string]any{"pos": 30, "delay": 0})
	if msg := readReply(t, conn, reader); msg.Response != "MOVE" {
		t.Fatalf("Expected MOVE reply, got %q", msg.Response)
	}

	// The shade steps toward the target, announcing progress
	deadline := time.Now().Add(5 * time.Second)
	arrived := false
	for time.Now().Before(deadline) {
		msg := readMessage(t, conn, reader)
		if msg.Event != "CURRENT_POS" {
			continue
		}
		percent, ok := msg.Data["percent"].(float64)
		if !ok {
			t.Fatalf("Expected percent in event, got %v", msg.Data)
		}
		if percent == 30 {
			arrived = true
			break
		}
	}
	if !arrived {
		t.Fatal("Expected a CURRENT_POS event at the target position")
	}
	if server.Position() != 30 {
		t.Errorf("Expected simulator at 30, got %d", server.Position())
	}
}

func TestInvalidParameters(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	tests := []struct {
		name   string
		cmd    string
		params map[string]any
	}{
		{"MovePositionHigh", "MOVE", map[string]any{"pos": 150}},
		{"MoveDelayHigh", "MOVE", map[string]any{"pos": 10, "delay": 31}},
		{"AbsolutePositionHigh", "A_MOVE", map[string]any{"pos": 70000}},
		{"JogCountHigh", "JOG", map[string]any{"count": 9}},
		{"JogCountLow", "JOG", map[string]any{"count": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sendCommand(t, conn, tt.cmd, tt.params)
			msg := readReply(t, conn, reader)
			if msg.Response != "ERROR" {
				t.Fatalf("Expected ERROR reply, got %q", msg.Response)
			}
			if code, _ := msg.Data["code"].(float64); code != 101 {
				t.Errorf("Expected code 101, got %v", msg.Data["code"])
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	sendCommand(t, conn, "FLY", nil)
	msg := readReply(t, conn, reader)

	if msg.Response != "ERROR" {
		t.Fatalf("Expected ERROR reply, got %q", msg.Response)
	}
	if code, _ := msg.Data["code"].(float64); code != 100 {
		t.Errorf("Expected code 100, got %v", msg.Data["code"])
	}
	if msg.Data["description"] != "Unknown command" {
		t.Errorf("Expected description, got %v", msg.Data["description"])
	}
}

func TestFailNextInjection(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	server.FailNext(302)

	sendCommand(t, conn, "GET_STATUS", nil)
	msg := readReply(t, conn, reader)
	if msg.Response != "ERROR" {
		t.Fatalf("Expected injected ERROR reply, got %q", msg.Response)
	}
	if code, _ := msg.Data["code"].(float64); code != 302 {
		t.Errorf("Expected code 302, got %v", msg.Data["code"])
	}

	// Injection is one-shot
	sendCommand(t, conn, "GET_STATUS", nil)
	if msg := readReply(t, conn, reader); msg.Response != "GET_STATUS" {
		t.Errorf("Expected normal reply after injection, got %q", msg.Response)
	}
}

func TestAbsoluteMoveTargetsPercent(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	// Half the default 8000-count limit lands at 50%
	sendCommand(t, conn, "A_MOVE", map[string]any{"pos": 4000, "delay": 0})
	if msg := readReply(t, conn, reader); msg.Response != "A_MOVE" {
		t.Fatalf("Expected A_MOVE reply, got %q", msg.Response)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if server.Position() == 50 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected simulator to reach 50, got %d", server.Position())
}

func TestSilentMode(t *testing.T) {
	server := startTestServer(t)
	conn, reader := dialServer(t, server)

	server.SetSilent(true)
	sendCommand(t, conn, "GET_STATUS", nil)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := reader.ReadBytes('\n'); err == nil {
		t.Fatal("Expected no reply in silent mode")
	}

	server.SetSilent(false)
	sendCommand(t, conn, "GET_STATUS", nil)
	if msg := readReply(t, conn, reader); msg.Response != "GET_STATUS" {
		t.Errorf("Expected reply after leaving silent mode, got %q", msg.Response)
	}
}
