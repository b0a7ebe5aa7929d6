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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"renkei/internal"
	"renkei/internal/logger"
)

const (
	dialTimeout        = 5 * time.Second
	listenReadyTimeout = 5 * time.Second
	probeTimeout       = 5 * time.Second
)

// pendingCommand tracks one in-flight request. The protocol carries no
// correlation id, so requests are keyed by command name and ordered by a
// monotonic sequence for FIFO error resolution.
type pendingCommand struct {
	cmd      string
	seq      uint64
	response chan *Message
	fail     chan error
	at       time.Time
}

// task is one background role instance (listener, health monitor,
// reconnection driver). Stopping cancels the context and waits for exit.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *task) finished() bool {
	if t == nil {
		return true
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// ClientStats represents client counters for diagnostics
type ClientStats struct {
	State      string    `json:"state"`
	Connected  bool      `json:"connected"`
	FramesRead uint64    `json:"frames_read"`
	Reconnects int       `json:"reconnects"`
	Pending    int       `json:"pending"`
	LastSeen   time.Time `json:"last_seen"`
}

// RenkeiClient is a persistent client for one RENKEI PoE motor controller.
// It owns the socket, the connection state machine and the background tasks
// that keep the link alive.
type RenkeiClient struct {
	config *Config
	mode   *internal.FnModeOptions

	connectMutex sync.Mutex // serializes connection attempts
	writeMutex   sync.Mutex // single writer path on the socket

	mutex         sync.RWMutex // guards conn, state and task slots
	conn          net.Conn
	state         ConnState
	listenTask    *task
	healthTask    *task
	reconnectTask *task

	pendingMutex sync.Mutex
	pending      map[string]*pendingCommand
	sequence     uint64

	shutdown atomic.Bool
	// aborting marks a failed connect handshake being torn down, so the
	// listener's exit path must not escalate it into reconnection
	aborting   atomic.Bool
	lastSeen   atomic.Int64
	framesRead atomic.Uint64

	status      *aggregator
	connections *registry[ConnState]
	issues      *IssueTracker

	logger zerolog.Logger
}

// NewRenkeiClient creates a new client instance for a motor controller
func NewRenkeiClient(config *Config, options ...internal.FnModeOption) *RenkeiClient {
	mode := internal.NewModeOptions(options...)
	if mode.Debug {
		logger.SetLevel(logger.LOG_DEBUG)
	}

	issues := NewIssueTracker(logger.Component("issues"))
	issues.CheckConfig(config)

	log := logger.Component("client")
	client := &RenkeiClient{
		config:      config,
		mode:        mode,
		state:       StateDisconnected,
		pending:     make(map[string]*pendingCommand),
		issues:      issues,
		connections: newRegistry[ConnState](log),
		logger:      log,
	}
	client.status = newAggregator(logger.Component("status"), issues)

	log.Debug().
		Str("address", config.Address()).
		Int("health_check_interval", config.Connection.HealthCheckInterval).
		Msg("Client initialised")
	return client
}

// State returns the current connection state
func (c *RenkeiClient) State() ConnState {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.state
}

// Connected returns true if currently connected
func (c *RenkeiClient) Connected() bool {
	return c.State() == StateConnected
}

// LastSeen returns when the last frame arrived; zero means never
func (c *RenkeiClient) LastSeen() time.Time {
	ns := c.lastSeen.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// setState validates and applies a state transition, broadcasting it to
// connection observers. Same-state moves are suppressed; moves outside the
// transition table are rejected and logged. Reports whether the transition
// was applied.
func (c *RenkeiClient) setState(next ConnState) bool {
	c.mutex.Lock()
	current := c.state
	if current == next {
		c.mutex.Unlock()
		return false
	}
	if !ValidTransition(current, next) {
		c.mutex.Unlock()
		c.logger.Warn().
			Str("from", current.String()).
			Str("to", next.String()).
			Msg("Rejected invalid state transition")
		return false
	}
	c.state = next
	c.mutex.Unlock()

	c.logger.Debug().
		Str("from", current.String()).
		Str("to", next.String()).
		Msg("Connection state changed")
	c.connections.notify(next)
	return true
}

// Connect establishes the connection to the motor. Returns true if
// successful or already connected; ordinary network failure is logged and
// reported as false with the state left disconnected.
func (c *RenkeiClient) Connect(ctx context.Context) bool {
	c.shutdown.Store(false)
	return c.connect(ctx)
}

func (c *RenkeiClient) connect(ctx context.Context) bool {
	c.connectMutex.Lock()
	defer c.connectMutex.Unlock()

	if c.Connected() {
		return true
	}

	c.setState(StateConnecting)
	c.logger.Info().Str("address", c.config.Address()).Msg("Connecting to motor")

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address())
	if err != nil {
		c.logger.Error().Err(err).Str("address", c.config.Address()).Msg("Failed to connect")
		c.setState(StateDisconnected)
		return false
	}

	// Disable Nagle's algorithm for better motor responsiveness
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err == nil {
			c.logger.Debug().Msg("TCP_NODELAY enabled for improved motor responsiveness")
		}
	}

	c.mutex.Lock()
	c.conn = conn
	c.mutex.Unlock()

	c.setState(StateConnected)
	c.logger.Info().Str("address", c.config.Address()).Msg("Connected to motor")

	// Wait for the listener to arm before allowing any commands out
	ready := make(chan struct{})
	c.startListener(conn, ready)

	select {
	case <-ready:
		c.logger.Debug().Msg("Listener confirmed ready")
	case <-time.After(listenReadyTimeout):
		c.logger.Error().Err(ErrListenerNotReady).Msg("Listener failed to become ready within deadline")
		c.teardownFailedConnect()
		return false
	case <-ctx.Done():
		c.teardownFailedConnect()
		return false
	}

	// Allow the motor to stabilise after connection
	if delay := c.config.Stabilisation(); delay > 0 && !c.mode.Test {
		c.logger.Debug().Dur("delay", delay).Msg("Allowing motor to stabilise")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.teardownFailedConnect()
			return false
		}
	}

	if c.config.HealthCheckEvery() > 0 {
		c.startHealthMonitor()
	} else {
		c.logger.Debug().Msg("Health check disabled")
	}

	return true
}

// teardownFailedConnect unwinds a connection whose handshake failed after
// the socket opened
func (c *RenkeiClient) teardownFailedConnect() {
	c.aborting.Store(true)
	c.closeConn()

	c.mutex.Lock()
	listen := c.listenTask
	c.mutex.Unlock()
	listen.stop()

	c.aborting.Store(false)
	c.setState(StateDisconnected)
}

// Disconnect cleanly shuts the client down. No background activity
// survives its return.
func (c *RenkeiClient) Disconnect() {
	c.logger.Info().Msg("Disconnecting from motor")
	c.shutdown.Store(true)

	c.mutex.Lock()
	reconnect := c.reconnectTask
	c.mutex.Unlock()
	reconnect.stop()

	c.mutex.Lock()
	health := c.healthTask
	listen := c.listenTask
	c.mutex.Unlock()
	health.stop()

	// Closing the socket unblocks the listener's read
	c.closeConn()
	listen.stop()

	c.setState(StateDisconnected)
	c.logger.Info().Msg("Disconnected cleanly")
}

func (c *RenkeiClient) closeConn() {
	c.mutex.Lock()
	conn := c.conn
	c.conn = nil
	c.mutex.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Error during connection cleanup")
		}
	}
}

// startListener starts the read loop for one connection attempt, stopping
// any prior instance first
func (c *RenkeiClient) startListener(conn net.Conn, ready chan struct{}) {
	c.mutex.Lock()
	prev := c.listenTask
	c.mutex.Unlock()
	prev.stop()

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	c.mutex.Lock()
	c.listenTask = t
	c.mutex.Unlock()

	go func() {
		defer close(t.done)
		c.listenLoop(ctx, conn, ready)
	}()
}

// listenLoop reads newline-delimited frames until the stream dies. Its exit
// always funnels through the shared disconnection handling.
func (c *RenkeiClient) listenLoop(ctx context.Context, conn net.Conn, ready chan struct{}) {
	c.logger.Debug().Msg("Listen loop started")

	// Signal readiness before the first read so the connect handshake can
	// proceed
	close(ready)

	reader := bufio.NewReader(conn)
	for !c.shutdown.Load() && ctx.Err() == nil {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if !c.shutdown.Load() && !c.aborting.Load() && ctx.Err() == nil {
				if errors.Is(err, io.EOF) {
					c.logger.Info().Msg("Connection closed by motor")
				} else {
					c.logger.Error().Err(err).Msg("Error reading from connection")
				}
			}
			break
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			c.logger.Warn().Str("line", string(trimmed)).Err(err).Msg("Invalid JSON from motor")
			continue
		}

		c.lastSeen.Store(time.Now().UnixNano())
		c.framesRead.Add(1)
		c.handleMessage(&msg)
	}

	if c.Connected() {
		c.logger.Info().Msg("Connection lost, attempting to reconnect")
		c.setState(StateDisconnected)
	}
	c.handleDisconnection()
}

// handleMessage correlates replies with pending commands and feeds every
// frame to the status aggregator
func (c *RenkeiClient) handleMessage(msg *Message) {
	if msg.IsReply() {
		if msg.Response == ResponseError {
			deviceErr := newDeviceError(msg.Data)
			c.logger.Error().
				Int("code", deviceErr.Code).
				Str("description", deviceErr.Description).
				Msg("Motor returned error")
			c.issues.RecordDeviceError(deviceErr.Code, deviceErr.Description)
			c.failOldestPending(deviceErr)
		} else {
			c.resolvePending(msg)
		}
	}

	c.status.ingest(msg)
}

func (c *RenkeiClient) resolvePending(msg *Message) {
	c.pendingMutex.Lock()
	pending, ok := c.pending[msg.Response]
	if ok {
		delete(c.pending, msg.Response)
	}
	c.pendingMutex.Unlock()

	if !ok {
		c.logger.Warn().Str("cmd", msg.Response).Msg("No pending request expected this reply")
		return
	}
	pending.response <- msg
	c.logger.Debug().Str("cmd", msg.Response).Msg("Response correlated successfully")
}

// failOldestPending resolves the oldest in-flight command with a device
// error. Error replies carry no command name, so FIFO order is the only
// correlation available.
func (c *RenkeiClient) failOldestPending(cause error) {
	c.pendingMutex.Lock()
	var oldest *pendingCommand
	for _, pending := range c.pending {
		if oldest == nil || pending.seq < oldest.seq {
			oldest = pending
		}
	}
	if oldest != nil {
		delete(c.pending, oldest.cmd)
	}
	c.pendingMutex.Unlock()

	if oldest == nil {
		c.logger.Warn().Msg("Received error reply but no pending commands")
		return
	}
	oldest.fail <- cause
	c.logger.Debug().Str("cmd", oldest.cmd).Msg("Error reply resolved oldest pending command")
}

func (c *RenkeiClient) failAllPending(cause error) {
	c.pendingMutex.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingCommand)
	c.pendingMutex.Unlock()

	for _, p := range pending {
		p.fail <- cause
	}
}

func (c *RenkeiClient) registerPending(cmd string) *pendingCommand {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()

	c.sequence++
	pending := &pendingCommand{
		cmd:      cmd,
		seq:      c.sequence,
		response: make(chan *Message, 1),
		fail:     make(chan error, 1),
		at:       time.Now(),
	}
	if _, exists := c.pending[cmd]; exists {
		// Known hazard: a second send for an in-flight command name
		// replaces the earlier handle
		c.logger.Warn().Str("cmd", cmd).Msg("Overwriting pending request for in-flight command")
	}
	c.pending[cmd] = pending
	return pending
}

func (c *RenkeiClient) deregisterPending(cmd string, pending *pendingCommand) {
	c.pendingMutex.Lock()
	defer c.pendingMutex.Unlock()

	if current, ok := c.pending[cmd]; ok && current == pending {
		delete(c.pending, cmd)
	}
}

// request writes one command frame and, when a response is expected, waits
// for the correlated reply. The pending handle is registered before the
// write so a reply cannot arrive unmatched.
func (c *RenkeiClient) request(ctx context.Context, cmd string, params map[string]any, expectResponse bool, timeout time.Duration) (*Message, error) {
	c.mutex.RLock()
	conn := c.conn
	c.mutex.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("send %s: %w", cmd, ErrNotConnected)
	}

	if params == nil {
		params = map[string]any{}
	}
	frame, err := json.Marshal(Request{Cmd: cmd, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd, err)
	}
	frame = append(frame, '\n')

	var pending *pendingCommand
	if expectResponse {
		pending = c.registerPending(cmd)
	}

	c.writeMutex.Lock()
	_, err = conn.Write(frame)
	c.writeMutex.Unlock()
	if err != nil {
		if pending != nil {
			c.deregisterPending(cmd, pending)
		}
		return nil, fmt.Errorf("failed to send command %s: %w", cmd, err)
	}
	c.logger.Debug().Str("cmd", cmd).Msg("Sent command")

	if !expectResponse {
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-pending.response:
		return msg, nil
	case err := <-pending.fail:
		return nil, err
	case <-timer.C:
		c.deregisterPending(cmd, pending)
		c.logger.Error().Str("cmd", cmd).Dur("timeout", timeout).Msg("Timeout waiting for response")
		return nil, fmt.Errorf("no response to %s within %s: %w", cmd, timeout, ErrTimeout)
	case <-ctx.Done():
		c.deregisterPending(cmd, pending)
		return nil, ctx.Err()
	}
}

// Send issues a command and returns the reply's data payload. With
// expectResponse false the frame is written and nil data returned.
func (c *RenkeiClient) Send(cmd string, params map[string]any, expectResponse bool) (map[string]any, error) {
	msg, err := c.request(context.Background(), cmd, params, expectResponse, c.config.ResponseDeadline())
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return msg.Data, nil
}

// Move moves the motor to a position (0-100% open)
func (c *RenkeiClient) Move(position, delay int) (map[string]any, error) {
	if err := validateMove(position, delay); err != nil {
		return nil, err
	}
	return c.Send(CmdMove, map[string]any{"pos": position, "delay": delay}, true)
}

// AbsoluteMove moves the motor to an absolute encoder position (0-65536)
func (c *RenkeiClient) AbsoluteMove(position, delay int) (map[string]any, error) {
	if err := validateAbsoluteMove(position, delay); err != nil {
		return nil, err
	}
	return c.Send(CmdAbsoluteMove, map[string]any{"pos": position, "delay": delay}, true)
}

// Stop stops the motor immediately
func (c *RenkeiClient) Stop() (map[string]any, error) {
	return c.Send(CmdStop, nil, true)
}

// GetStatus fetches the motor's full status fields
func (c *RenkeiClient) GetStatus() (map[string]any, error) {
	return c.Send(CmdGetStatus, nil, true)
}

// GetInfo fetches and parses the controller's network identity
func (c *RenkeiClient) GetInfo() (*DeviceInfo, error) {
	data, err := c.Send(CmdGetInfo, nil, true)
	if err != nil {
		return nil, err
	}
	return parseDeviceInfo(data), nil
}

// Jog nudges the motor for identification
func (c *RenkeiClient) Jog(count int) (map[string]any, error) {
	if err := validateJog(count); err != nil {
		return nil, err
	}
	return c.Send(CmdJog, map[string]any{"count": count}, true)
}

// startHealthMonitor starts the periodic liveness probe, stopping any prior
// instance first
func (c *RenkeiClient) startHealthMonitor() {
	c.mutex.Lock()
	prev := c.healthTask
	c.mutex.Unlock()
	prev.stop()

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	c.mutex.Lock()
	c.healthTask = t
	c.mutex.Unlock()

	go func() {
		defer close(t.done)
		c.healthLoop(ctx)
	}()
}

// healthLoop probes the motor with GET_STATUS on a fixed interval. A failed
// probe is treated exactly like a dead stream.
func (c *RenkeiClient) healthLoop(ctx context.Context) {
	interval := c.config.HealthCheckEvery()
	c.logger.Debug().Dur("interval", interval).Msg("Health check loop started")

	for !c.shutdown.Load() && c.Connected() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if !c.Connected() {
			return
		}

		if _, err := c.request(ctx, CmdGetStatus, nil, true, probeTimeout); err != nil {
			c.logger.Info().Err(err).Msg("Health check failed")
			if !c.shutdown.Load() {
				c.logger.Info().Msg("Motor disconnected, attempting reconnection")
				c.handleDisconnection()
			}
			return
		}
		c.logger.Debug().Msg("Health check passed")
	}
}

// handleDisconnection is the shared teardown path for listener EOF, read
// failures and failed health probes: every pending command fails, then the
// reconnection driver takes over unless the client is shutting down.
func (c *RenkeiClient) handleDisconnection() {
	c.logger.Debug().
		Str("state", c.State().String()).
		Bool("shutdown", c.shutdown.Load()).
		Msg("Handling disconnection")

	c.closeConn()
	c.failAllPending(ErrConnectionLost)

	if c.shutdown.Load() || c.aborting.Load() {
		c.logger.Debug().Msg("Shutting down, not starting reconnection")
		return
	}

	// The listener and the health monitor can both observe the same loss;
	// only the caller that wins the transition drives recovery
	if !c.setState(StateReconnecting) {
		return
	}
	count := c.issues.RecordReconnect()
	c.logger.Info().Int("count", count).Msg("Connection lost, starting reconnection process")
	c.startReconnector()
}

// startReconnector starts the reconnection driver unless one is already
// running
func (c *RenkeiClient) startReconnector() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.reconnectTask != nil && !c.reconnectTask.finished() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	c.reconnectTask = t

	go func() {
		defer close(t.done)
		c.reconnectLoop(ctx)
	}()
}

// reconnectLoop retries connecting on a fixed interval. On success it marks
// the status cache for resync and issues one best-effort refresh.
func (c *RenkeiClient) reconnectLoop(ctx context.Context) {
	interval := c.config.ReconnectEvery()

	for !c.shutdown.Load() && !c.Connected() {
		c.logger.Info().Dur("interval", interval).Msg("Attempting to reconnect after interval")
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if c.connect(ctx) {
			c.logger.Info().Msg("Reconnection successful")
			// The next full-status merge must resync against the motor's
			// authoritative position
			c.status.markReconnected()
			if _, err := c.request(ctx, CmdGetStatus, nil, true, probeTimeout); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to refresh status after reconnection")
			} else {
				c.logger.Debug().Msg("Motor status refreshed after reconnection")
			}
			return
		}
	}
}

// OnStatus registers an observer notified with a snapshot after every
// inbound frame. Returns a handle for removal.
func (c *RenkeiClient) OnStatus(fn func(Snapshot)) Handle {
	return c.status.observers.add(fn)
}

// OnConnection registers an observer notified on every state transition.
// Returns a handle for removal.
func (c *RenkeiClient) OnConnection(fn func(ConnState)) Handle {
	return c.connections.add(fn)
}

// RemoveStatusObserver deregisters a status observer
func (c *RenkeiClient) RemoveStatusObserver(handle Handle) {
	c.status.observers.remove(handle)
}

// RemoveConnectionObserver deregisters a connection observer
func (c *RenkeiClient) RemoveConnectionObserver(handle Handle) {
	c.connections.remove(handle)
}

// Status returns a read-only copy of the aggregated device status
func (c *RenkeiClient) Status() Snapshot {
	return c.status.snapshot()
}

// Position resolves the current position, false when unknown
func (c *RenkeiClient) Position() (int, bool) {
	return c.status.position()
}

// Motion returns the current derived motion state
func (c *RenkeiClient) Motion() MotionState {
	return c.status.motionState()
}

// Info returns the device identity, nil until a GET_INFO reply arrived
func (c *RenkeiClient) Info() *DeviceInfo {
	return c.status.deviceInfo()
}

// Issues returns the currently open advisory issues
func (c *RenkeiClient) Issues() []*Issue {
	return c.issues.Open()
}

// Stats returns client counters for diagnostics
func (c *RenkeiClient) Stats() ClientStats {
	c.pendingMutex.Lock()
	pending := len(c.pending)
	c.pendingMutex.Unlock()

	return ClientStats{
		State:      c.State().String(),
		Connected:  c.Connected(),
		FramesRead: c.framesRead.Load(),
		Reconnects: c.issues.ReconnectCount(),
		Pending:    pending,
		LastSeen:   c.LastSeen(),
	}
}
