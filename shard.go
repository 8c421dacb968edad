/************************************************************************************
 *
 * gatewaysdk — a Go client for realtime chat-gateway services
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2026 The gatewaysdk Authors
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package gatewaysdk

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

/*******************************
 * Shards Identify Rate Limiter
 *******************************/

// ShardsIdentifyRateLimiter controls the frequency of IDENTIFY payloads
// sent per shard, honoring the Service-published max_concurrency.
//
// Implementations block the caller in Wait() until an Identify token is
// available.
type ShardsIdentifyRateLimiter interface {
	Wait()
}

// DefaultShardsRateLimiter implements a simple token bucket rate limiter
// using a buffered channel of tokens.
type DefaultShardsRateLimiter struct {
	tokens chan struct{}
}

var _ ShardsIdentifyRateLimiter = (*DefaultShardsRateLimiter)(nil)

// NewDefaultShardsRateLimiter creates a new token bucket rate limiter. r
// specifies the maximum burst tokens allowed (the Service's
// max_concurrency); interval specifies how frequently tokens are refilled.
func NewDefaultShardsRateLimiter(r int, interval time.Duration) *DefaultShardsRateLimiter {
	if r <= 0 {
		r = 1
	}
	rl := &DefaultShardsRateLimiter{tokens: make(chan struct{}, r)}
	for range r {
		rl.tokens <- struct{}{}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			select {
			case rl.tokens <- struct{}{}:
			default:
			}
		}
	}()
	return rl
}

func (rl *DefaultShardsRateLimiter) Wait() {
	<-rl.tokens
}

/*************************************
 * Shard: a single Gateway connection
 *************************************/

// shardState is the gateway connection state machine's state set (spec
// §3, §4.6).
type shardState int32

const (
	shardDisconnected shardState = iota
	shardConnecting
	shardConnected
	shardIdentifying
	shardReady
	shardResuming
	shardReconnecting
	shardZombie
)

func (s shardState) String() string {
	switch s {
	case shardDisconnected:
		return "disconnected"
	case shardConnecting:
		return "connecting"
	case shardConnected:
		return "connected"
	case shardIdentifying:
		return "identifying"
	case shardReady:
		return "ready"
	case shardResuming:
		return "resuming"
	case shardReconnecting:
		return "reconnecting"
	case shardZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

const defaultMaxReconnectAttempts = 5

// ShardEvent is one lifecycle notification raised by a Shard, forwarded by
// the shard manager to the client façade's event stream.
type ShardEvent struct {
	ShardID int
	Kind    string // "ready" | "resumed" | "disconnect" | "fatal"
	Code    GatewayCloseCode
	Reason  string
	Err     error
}

// Shard owns a single authenticated WebSocket session against the
// gateway: handshake, heartbeat, session resumption, and close-code
// sensitive reconnect (spec §4.6). Session state (sessionID, sequence,
// state) is mutated only by its single receive goroutine.
type Shard struct {
	shardID              int
	totalShards          int
	token                string
	intents              GatewayIntent
	gatewayURL           string
	maxReconnectAttempts int

	logger          Logger
	identifyLimiter ShardsIdentifyRateLimiter
	heartbeat       *heartbeatController
	clock           Clock
	compressed      bool

	onDispatch func(shardID int, eventType string, data json.RawMessage)
	onEvent    func(ShardEvent)

	connMu sync.Mutex
	conn   net.Conn

	state             atomic.Int32
	seq               atomic.Int64
	reconnectAttempts atomic.Int32

	sessionMu sync.Mutex
	sessionID string
	resumeURL string

	stopped atomic.Bool
}

func newShard(
	shardID, totalShards int, token string, intents GatewayIntent, gatewayURL string,
	logger Logger, clock Clock, identifyLimiter ShardsIdentifyRateLimiter,
	onDispatch func(int, string, json.RawMessage), onEvent func(ShardEvent),
) *Shard {
	if clock == nil {
		clock = realClock{}
	}
	s := &Shard{
		shardID:              shardID,
		totalShards:          totalShards,
		token:                token,
		intents:              intents,
		gatewayURL:           gatewayURL,
		maxReconnectAttempts: defaultMaxReconnectAttempts,
		logger:               logger,
		identifyLimiter:      identifyLimiter,
		clock:                clock,
		onDispatch:           onDispatch,
		onEvent:              onEvent,
	}
	s.heartbeat = newHeartbeatController(clock, logger)
	s.state.Store(int32(shardDisconnected))
	return s
}

func (s *Shard) currentState() shardState {
	return shardState(s.state.Load())
}

func (s *Shard) setState(st shardState) {
	s.state.Store(int32(st))
}

// State returns the shard's current state (spec §3's Shard state set).
func (s *Shard) State() shardState { return s.currentState() }

// Latency returns the heartbeat controller's mean send-to-ack ping.
func (s *Shard) Latency() time.Duration { return s.heartbeat.ping() }

// connect dials the gateway (or the resume URL, if one is known) and
// starts the receive goroutine (spec's disconnected --connect()--> connecting
// --socket open--> connected transition).
func (s *Shard) connect(ctx context.Context) error {
	s.setState(shardConnecting)

	url := s.gatewayURL
	s.sessionMu.Lock()
	if s.resumeURL != "" {
		url = s.resumeURL
	}
	s.sessionMu.Unlock()

	conn, _, _, err := (&ws.Dialer{}).Dial(ctx, url)
	if err != nil {
		s.setState(shardDisconnected)
		return &TransportError{Op: "dial gateway", Err: err}
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.connMu.Unlock()

	s.setState(shardConnected)
	s.stopped.Store(false)
	go s.readLoop()
	return nil
}

func (s *Shard) readLoop() {
	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		msg, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			if s.stopped.Load() {
				return
			}
			code, reason := closeCodeFromReadErr(err)
			s.handleClose(code, reason)
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		if op == ws.OpBinary && s.compressed {
			w := AcquireZlibReader()
			out, derr := w.Decompress(msg)
			ReleaseZlibReader(w)
			if derr != nil || out == nil {
				continue
			}
			msg = out
		}

		var fr frame
		if err := json.Unmarshal(msg, &fr); err != nil {
			if s.logger != nil {
				s.logger.Warn("shard dropped malformed frame: " + err.Error())
			}
			continue
		}
		s.handleFrame(fr)
	}
}

func (s *Shard) handleFrame(fr frame) {
	switch fr.Op {
	case opDispatch:
		s.seq.Store(fr.S)
		if fr.T == "READY" {
			var ready struct {
				SessionID string `json:"session_id"`
				ResumeURL string `json:"resume_gateway_url"`
			}
			json.Unmarshal(fr.D, &ready)
			s.sessionMu.Lock()
			s.sessionID = ready.SessionID
			s.resumeURL = ready.ResumeURL
			s.sessionMu.Unlock()
			s.reconnectAttempts.Store(0)
			s.setState(shardReady)
			s.emit(ShardEvent{ShardID: s.shardID, Kind: "ready"})
		} else if fr.T == "RESUMED" {
			s.reconnectAttempts.Store(0)
			s.setState(shardReady)
			s.emit(ShardEvent{ShardID: s.shardID, Kind: "resumed"})
		}
		if s.onDispatch != nil {
			s.onDispatch(s.shardID, fr.T, fr.D)
		}

	case opHeartbeat:
		s.sendHeartbeat(s.seq.Load())

	case opHeartbeatACK:
		s.heartbeat.ack()

	case opReconnect:
		s.reconnectNow()

	case opInvalidSession:
		var resumable bool
		json.Unmarshal(fr.D, &resumable)
		delay := time.Duration(1+rand.Intn(5)) * time.Second
		<-s.clock.After(delay)
		if resumable {
			s.setState(shardResuming)
			s.sendResume()
		} else {
			s.sessionMu.Lock()
			s.sessionID = ""
			s.resumeURL = ""
			s.sessionMu.Unlock()
			s.seq.Store(0)
			s.setState(shardIdentifying)
			s.sendIdentify()
		}

	case opHello:
		var hello struct {
			HeartbeatInterval float64 `json:"heartbeat_interval"`
		}
		json.Unmarshal(fr.D, &hello)
		interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
		s.heartbeat.start(interval, func() int64 { return s.seq.Load() }, s.sendHeartbeat, s.onZombie)

		s.sessionMu.Lock()
		hasSession := s.sessionID != "" && s.resumeURL != ""
		s.sessionMu.Unlock()

		if hasSession && s.seq.Load() > 0 {
			s.setState(shardResuming)
			s.sendResume()
		} else {
			s.setState(shardIdentifying)
			s.sendIdentify()
		}
	}
}

func (s *Shard) onZombie() {
	s.setState(shardZombie)
	if s.logger != nil {
		s.logger.Error("shard zombie: 3 consecutive missed heartbeat acks")
	}
	s.setState(shardReconnecting)
	s.reconnectNow()
}

func (s *Shard) write(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return ErrClientClosed
	}
	return wsutil.WriteClientMessage(conn, ws.OpText, payload)
}

func (s *Shard) sendIdentify() error {
	s.identifyLimiter.Wait()
	return s.write(map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token": s.token,
			"properties": map[string]string{
				"os":      "linux",
				"browser": LibName,
				"device":  LibName,
			},
			"shard":           [2]int{s.shardID, s.totalShards},
			"intents":         s.intents,
			"large_threshold": 50,
		},
	})
}

func (s *Shard) sendResume() error {
	s.sessionMu.Lock()
	sessionID := s.sessionID
	s.sessionMu.Unlock()
	return s.write(map[string]any{
		"op": opResume,
		"d": map[string]any{
			"token":      s.token,
			"session_id": sessionID,
			"seq":        s.seq.Load(),
		},
	})
}

func (s *Shard) sendHeartbeat(seq int64) error {
	return s.write(map[string]any{"op": opHeartbeat, "d": seq})
}

// send transmits an arbitrary client->server payload (presence updates,
// voice-state updates, member requests). The shard performs only
// structural framing (spec §4.6); payload semantics are the caller's
// responsibility.
func (s *Shard) send(op gatewayOpcode, data any) error {
	return s.write(map[string]any{"op": op, "d": data})
}

// closeCodeFromReadErr extracts the Service's close code and reason from a
// failed read, falling back to GatewayCloseUnknownError for errors that
// never reached a close frame (e.g. a dropped TCP connection).
func closeCodeFromReadErr(err error) (GatewayCloseCode, string) {
	var ce wsutil.ClosedError
	if errors.As(err, &ce) {
		return GatewayCloseCode(ce.Code), ce.Reason
	}
	return GatewayCloseUnknownError, err.Error()
}

// handleClose classifies a socket close (spec §4.6, §6's close-code
// policy) and either reconnects or terminates the shard fatally.
func (s *Shard) handleClose(code GatewayCloseCode, reason string) {
	if reason2, fatal := code.isFatal(); fatal {
		s.setState(shardDisconnected)
		s.emit(ShardEvent{
			ShardID: s.shardID, Kind: "fatal", Code: code, Reason: reason2,
			Err: &FatalCloseError{ShardID: s.shardID, Code: code, Reason: reason2},
		})
		return
	}

	s.setState(shardReconnecting)
	s.emit(ShardEvent{ShardID: s.shardID, Kind: "disconnect", Code: code, Reason: reason})
	s.reconnectNow()
}

// reconnectNow closes the socket and reconnects with exponential backoff,
// bounded by maxReconnectAttempts (spec §4.6).
func (s *Shard) reconnectNow() {
	s.heartbeat.stop()
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	attempt := int(s.reconnectAttempts.Add(1))
	if attempt > s.maxReconnectAttempts {
		s.setState(shardDisconnected)
		s.emit(ShardEvent{ShardID: s.shardID, Kind: "fatal", Err: ErrMaxReconnectAttempts})
		return
	}

	backoff := time.Duration(1<<uint(attempt-1)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	<-s.clock.After(backoff)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.connect(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("shard reconnect failed: " + err.Error())
		}
		s.reconnectNow()
	}
}

func (s *Shard) emit(evt ShardEvent) {
	if s.onEvent != nil {
		s.onEvent(evt)
	}
}

// Shutdown cleanly closes the shard's WebSocket connection and stops its
// heartbeat.
func (s *Shard) Shutdown() error {
	s.stopped.Store(true)
	s.heartbeat.stop()
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		s.setState(shardDisconnected)
		return err
	}
	return nil
}
