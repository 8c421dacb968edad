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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
)

func newTestShard(onEvent func(ShardEvent)) *Shard {
	clock := newManualClock(time.Unix(0, 0))
	return newShard(0, 1, "testtoken", GatewayIntentGuilds, "", nil, clock,
		NewDefaultShardsRateLimiter(1, time.Second), func(int, string, json.RawMessage) {}, onEvent)
}

func TestShardState_String(t *testing.T) {
	cases := map[shardState]string{
		shardDisconnected: "disconnected",
		shardConnecting:   "connecting",
		shardConnected:    "connected",
		shardIdentifying:  "identifying",
		shardReady:        "ready",
		shardResuming:     "resuming",
		shardReconnecting: "reconnecting",
		shardZombie:       "zombie",
		shardState(99):    "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("shardState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestGatewayCloseCode_IsFatal(t *testing.T) {
	if _, fatal := GatewayCloseUnknownError.isFatal(); fatal {
		t.Fatal("4000 (unknown error) must not be treated as fatal")
	}
	if _, fatal := GatewayCloseRateLimited.isFatal(); fatal {
		t.Fatal("4008 (rate limited) must not be treated as fatal")
	}
	if _, fatal := GatewayCloseAuthenticationFailed.isFatal(); !fatal {
		t.Fatal("4004 (authentication failed) must be treated as fatal")
	}
	if _, fatal := GatewayCloseDisallowedIntents.isFatal(); !fatal {
		t.Fatal("4014 (disallowed intents) must be treated as fatal")
	}
}

func TestShard_HandleClose_FatalCodeEmitsFatalWithoutReconnecting(t *testing.T) {
	var evt ShardEvent
	got := make(chan struct{})
	s := newTestShard(func(e ShardEvent) {
		evt = e
		close(got)
	})

	s.handleClose(GatewayCloseAuthenticationFailed, "bad token")

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("expected a fatal ShardEvent")
	}

	if evt.Kind != "fatal" {
		t.Fatalf("expected kind fatal, got %q", evt.Kind)
	}
	if s.State() != shardDisconnected {
		t.Fatalf("expected state disconnected after a fatal close, got %v", s.State())
	}
	if s.reconnectAttempts.Load() != 0 {
		t.Fatal("a fatal close must not trigger a reconnect attempt")
	}
	if _, ok := evt.Err.(*FatalCloseError); !ok {
		t.Fatalf("expected *FatalCloseError, got %T", evt.Err)
	}
}

func TestCloseCodeFromReadErr_ExtractsRealCloseCode(t *testing.T) {
	err := wsutil.ClosedError{Code: 4014, Reason: "disallowed intents"}
	code, reason := closeCodeFromReadErr(err)
	if code != GatewayCloseDisallowedIntents {
		t.Fatalf("expected code %v, got %v", GatewayCloseDisallowedIntents, code)
	}
	if reason != "disallowed intents" {
		t.Fatalf("expected reason to be preserved, got %q", reason)
	}
}

func TestCloseCodeFromReadErr_FallsBackWithoutCloseFrame(t *testing.T) {
	code, reason := closeCodeFromReadErr(errors.New("connection reset by peer"))
	if code != GatewayCloseUnknownError {
		t.Fatalf("expected fallback code %v, got %v", GatewayCloseUnknownError, code)
	}
	if reason != "connection reset by peer" {
		t.Fatalf("expected underlying error text as reason, got %q", reason)
	}
}

func TestShard_HandleFrame_ReadyCapturesSession(t *testing.T) {
	events := make(chan ShardEvent, 4)
	s := newTestShard(func(e ShardEvent) { events <- e })

	s.handleFrame(frame{
		Op: opDispatch,
		S:  1,
		T:  "READY",
		D:  json.RawMessage(`{"session_id":"abc123","resume_gateway_url":"wss://resume.example"}`),
	})

	if s.State() != shardReady {
		t.Fatalf("expected state ready after READY dispatch, got %v", s.State())
	}
	s.sessionMu.Lock()
	sessionID, resumeURL := s.sessionID, s.resumeURL
	s.sessionMu.Unlock()
	if sessionID != "abc123" || resumeURL != "wss://resume.example" {
		t.Fatalf("expected session to be captured, got sessionID=%q resumeURL=%q", sessionID, resumeURL)
	}

	select {
	case evt := <-events:
		if evt.Kind != "ready" {
			t.Fatalf("expected ready event, got %q", evt.Kind)
		}
	default:
		t.Fatal("expected a ready ShardEvent to be emitted")
	}
}

func TestShard_HandleFrame_HeartbeatAckClearsPending(t *testing.T) {
	s := newTestShard(nil)
	s.heartbeat.mu.Lock()
	s.heartbeat.pending = true
	s.heartbeat.missedAcks = 2
	s.heartbeat.mu.Unlock()

	s.handleFrame(frame{Op: opHeartbeatACK})

	s.heartbeat.mu.Lock()
	pending, missed := s.heartbeat.pending, s.heartbeat.missedAcks
	s.heartbeat.mu.Unlock()
	if pending || missed != 0 {
		t.Fatalf("expected ack to clear pending/missedAcks, got pending=%v missedAcks=%d", pending, missed)
	}
}
