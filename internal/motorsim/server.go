// Package motorsim implements a RENKEI PoE motor controller endpoint for
// development and testing. It speaks the newline-delimited JSON protocol on
// TCP and models a shade moving between positions over time.
package motorsim

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"renkei/internal/logger"
)

// DefaultListenPort is the TCP port real controllers listen on
const DefaultListenPort = 17002

const (
	defaultLimit    = 8000
	defaultTick     = 200 * time.Millisecond
	defaultStep     = 5
	settleRepeats   = 2
	defaultMAC      = "aa:bb:cc:dd:ee:ff"
	defaultFirmware = "1.4.2"
)

// errorDescriptions mirrors the controller's error table
var errorDescriptions = map[int]string{
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

type request struct {
	Cmd    string         `json:"cmd"`
	Params map[string]any `json:"params"`
}

type reply struct {
	Response string         `json:"response"`
	Data     map[string]any `json:"data"`
}

type event struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// ServerStats represents simulator statistics
type ServerStats struct {
	StartTime   time.Time `json:"start_time"`
	Connections int       `json:"connections"`
	Commands    uint64    `json:"commands"`
	Events      uint64    `json:"events"`
	LastCommand time.Time `json:"last_command"`
}

// serverConn serializes writes to one accepted connection
type serverConn struct {
	conn  net.Conn
	mutex sync.Mutex
}

func (sc *serverConn) send(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame = append(frame, '\n')

	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	_, err = sc.conn.Write(frame)
	return err
}

// Server simulates one motor controller
type Server struct {
	address  string
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	mutex    sync.RWMutex
	conns    map[*serverConn]struct{}
	current  int // percent open
	target   int
	limit    int // encoder counts at fully open
	settle   int // remaining repeats of the arrival position
	jogQueue []int
	failNext []int
	silent   bool
	tick     time.Duration
	step     int
	mac      string
	firmware string
	stats    ServerStats

	logger zerolog.Logger
}

// NewServer creates a simulator bound to address, e.g. "127.0.0.1:17002".
// Use port 0 to let the OS choose, then read Addr after Start.
func NewServer(address string) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		address:  address,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[*serverConn]struct{}),
		current:  0,
		target:   0,
		limit:    defaultLimit,
		tick:     defaultTick,
		step:     defaultStep,
		mac:      defaultMAC,
		firmware: defaultFirmware,
		stats:    ServerStats{StartTime: time.Now()},
		logger:   logger.Component("motorsim"),
	}
}

// SetTick overrides the motion tick interval, before Start
func (s *Server) SetTick(tick time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tick = tick
}

// SetPosition places the shade at a percent position without motion
func (s *Server) SetPosition(percent int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.current = clampPercent(percent)
	s.target = s.current
}

// SetIdentity overrides the MAC address and firmware reported by GET_INFO
func (s *Server) SetIdentity(mac, firmware string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.mac = mac
	s.firmware = firmware
}

// SetSilent makes the simulator swallow commands without replying, for
// exercising client timeouts
func (s *Server) SetSilent(silent bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.silent = silent
}

// FailNext queues an error reply for the next command received
func (s *Server) FailNext(code int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failNext = append(s.failNext, code)
}

// Start binds the listener and starts the accept and motion loops
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.address, err)
	}
	s.listener = listener

	s.logger.Info().Str("address", listener.Addr().String()).Msg("Motor simulator started")

	go s.acceptLoop()
	go s.motionLoop()

	return nil
}

// Stop closes the listener and all connections
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing listener")
		}
	}
	s.DropConnections()

	s.logger.Info().Msg("Motor simulator stopped")
	return nil
}

// Addr returns the bound listen address
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

// Position returns the shade's current percent position
func (s *Server) Position() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.current
}

// Stats returns simulator statistics
func (s *Server) Stats() ServerStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.stats
}

// DropConnections closes every accepted connection, simulating a motor
// reboot
func (s *Server) DropConnections() {
	s.mutex.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.conns = make(map[*serverConn]struct{})
	s.mutex.Unlock()

	for _, sc := range conns {
		sc.conn.Close()
	}
}

// EmitPosition broadcasts an unsolicited CURRENT_POS event
func (s *Server) EmitPosition(percent int) {
	s.mutex.Lock()
	s.current = clampPercent(percent)
	s.target = s.current
	limit := s.limit
	s.mutex.Unlock()

	s.broadcastPosition(clampPercent(percent), limit)
}

// EmitError broadcasts an unsolicited ERROR event
func (s *Server) EmitError(code int) {
	s.broadcast(event{Event: "ERROR", Data: map[string]any{
		"code":        code,
		"description": describeError(code),
	}})
}

// EmitErrorReply broadcasts an ERROR reply frame outside the command flow,
// as controllers do when rejecting queued work
func (s *Server) EmitErrorReply(code int) {
	s.broadcast(reply{Response: "ERROR", Data: map[string]any{
		"code":        code,
		"description": describeError(code),
	}})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			return
		}

		sc := &serverConn{conn: conn}
		s.mutex.Lock()
		s.conns[sc] = struct{}{}
		s.stats.Connections++
		s.mutex.Unlock()

		s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Client connected")
		go s.readLoop(sc)
	}
}

func (s *Server) readLoop(sc *serverConn) {
	defer func() {
		s.mutex.Lock()
		delete(s.conns, sc)
		s.mutex.Unlock()
		sc.conn.Close()
		s.logger.Debug().Str("remote", sc.conn.RemoteAddr().String()).Msg("Client disconnected")
	}()

	reader := bufio.NewReader(sc.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(trimmed, &req); err != nil {
			s.logger.Warn().Str("line", string(trimmed)).Msg("Invalid JSON from client")
			continue
		}

		s.handleCommand(sc, &req)
	}
}

func (s *Server) handleCommand(sc *serverConn, req *request) {
	s.mutex.Lock()
	s.stats.Commands++
	s.stats.LastCommand = time.Now()
	silent := s.silent
	var injected int
	haveInjected := false
	if len(s.failNext) > 0 {
		injected = s.failNext[0]
		s.failNext = s.failNext[1:]
		haveInjected = true
	}
	s.mutex.Unlock()

	s.logger.Debug().Str("cmd", req.Cmd).Msg("Command received")

	if silent {
		return
	}
	if haveInjected {
		s.sendError(sc, injected)
		return
	}

	switch req.Cmd {
	case "MOVE":
		s.handleMove(sc, req)
	case "A_MOVE":
		s.handleAbsoluteMove(sc, req)
	case "STOP":
		s.handleStop(sc)
	case "GET_STATUS":
		s.sendReply(sc, "GET_STATUS", s.statusFields())
	case "GET_INFO":
		s.handleGetInfo(sc)
	case "JOG":
		s.handleJog(sc, req)
	default:
		s.sendError(sc, 100)
	}
}

func (s *Server) handleMove(sc *serverConn, req *request) {
	pos, ok := paramInt(req.Params, "pos")
	delay, hasDelay := paramInt(req.Params, "delay")
	if !ok || pos < 0 || pos > 100 || (hasDelay && (delay < 0 || delay > 30)) {
		s.sendError(sc, 101)
		return
	}

	s.mutex.Lock()
	s.target = pos
	s.settle = 0
	s.mutex.Unlock()

	s.sendReply(sc, "MOVE", map[string]any{})
}

func (s *Server) handleAbsoluteMove(sc *serverConn, req *request) {
	pos, ok := paramInt(req.Params, "pos")
	delay, hasDelay := paramInt(req.Params, "delay")
	if !ok || pos < 0 || pos > 65536 || (hasDelay && (delay < 0 || delay > 65535)) {
		s.sendError(sc, 101)
		return
	}

	s.mutex.Lock()
	if pos > s.limit {
		pos = s.limit
	}
	s.target = pos * 100 / s.limit
	s.settle = 0
	s.mutex.Unlock()

	s.sendReply(sc, "A_MOVE", map[string]any{})
}

func (s *Server) handleStop(sc *serverConn) {
	s.mutex.Lock()
	s.target = s.current
	s.settle = 0
	s.mutex.Unlock()

	s.sendReply(sc, "STOP", map[string]any{})
}

func (s *Server) handleGetInfo(sc *serverConn) {
	s.mutex.RLock()
	data := map[string]any{
		"mac":      s.mac,
		"firmware": s.firmware,
	}
	s.mutex.RUnlock()

	s.sendReply(sc, "GET_INFO", data)
}

func (s *Server) handleJog(sc *serverConn, req *request) {
	count, ok := paramInt(req.Params, "count")
	if !ok || count < 1 || count > 5 {
		s.sendError(sc, 101)
		return
	}

	s.mutex.Lock()
	for i := 0; i < count; i++ {
		nudge := s.current + 1
		if nudge > 100 {
			nudge = s.current - 1
		}
		s.jogQueue = append(s.jogQueue, nudge, s.current)
	}
	s.mutex.Unlock()

	s.sendReply(sc, "JOG", map[string]any{})
}

func (s *Server) statusFields() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	running := 0
	if s.current != s.target {
		running = 1
	}
	return map[string]any{
		"current_pos": s.current * s.limit / 100,
		"target_pos":  s.target * s.limit / 100,
		"limit_pos":   s.limit,
		"run":         running,
	}
}

// motionLoop steps the shade toward its target, broadcasting CURRENT_POS
// events. After arrival the final position repeats a couple of ticks so
// observers can settle.
func (s *Server) motionLoop() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mutex.Lock()
		if len(s.jogQueue) > 0 {
			percent := s.jogQueue[0]
			s.jogQueue = s.jogQueue[1:]
			limit := s.limit
			s.mutex.Unlock()
			s.broadcastPosition(percent, limit)
			continue
		}

		if s.current == s.target {
			if s.settle > 0 {
				s.settle--
				percent, limit := s.current, s.limit
				s.mutex.Unlock()
				s.broadcastPosition(percent, limit)
				continue
			}
			s.mutex.Unlock()
			continue
		}

		if s.current < s.target {
			s.current += s.step
			if s.current > s.target {
				s.current = s.target
			}
		} else {
			s.current -= s.step
			if s.current < s.target {
				s.current = s.target
			}
		}
		if s.current == s.target {
			s.settle = settleRepeats
		}
		percent, limit := s.current, s.limit
		s.mutex.Unlock()

		s.broadcastPosition(percent, limit)
	}
}

func (s *Server) broadcastPosition(percent, limit int) {
	s.broadcast(event{Event: "CURRENT_POS", Data: map[string]any{
		"percent":  percent,
		"absolute": fmt.Sprintf("0x%X", percent*limit/100),
	}})
}

func (s *Server) broadcast(v any) {
	s.mutex.Lock()
	s.stats.Events++
	conns := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.mutex.Unlock()

	for _, sc := range conns {
		if err := sc.send(v); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to send event")
		}
	}
}

func (s *Server) sendReply(sc *serverConn, cmd string, data map[string]any) {
	if err := sc.send(reply{Response: cmd, Data: data}); err != nil {
		s.logger.Debug().Err(err).Str("cmd", cmd).Msg("Failed to send reply")
	}
}

func (s *Server) sendError(sc *serverConn, code int) {
	err := sc.send(reply{Response: "ERROR", Data: map[string]any{
		"code":        code,
		"description": describeError(code),
	}})
	if err != nil {
		s.logger.Debug().Err(err).Int("code", code).Msg("Failed to send error reply")
	}
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

func describeError(code int) string {
	if desc, ok := errorDescriptions[code]; ok {
		return desc
	}
	return "Unknown error"
}

func paramInt(params map[string]any, key string) (int, bool) {
	value, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
