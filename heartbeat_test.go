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
	"sync/atomic"
	"testing"
	"time"
)

// advanceUntil steps the manual clock forward in small increments (to tolerate
// the controller's jitter, which can push a tick's deadline past the nominal
// interval) until cond reports true or the step budget is exhausted.
func advanceUntil(clock *manualClock, step time.Duration, maxSteps int, cond func() bool) bool {
	for i := 0; i < maxSteps; i++ {
		if cond() {
			return true
		}
		clock.Advance(step)
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func TestHeartbeatController_SendsAndAcks(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	h := newHeartbeatController(clock, nil)

	var sent int32
	zombie := make(chan struct{})
	h.start(100*time.Millisecond, func() int64 { return 1 }, func(seq int64) error {
		atomic.AddInt32(&sent, 1)
		return nil
	}, func() { close(zombie) })
	defer h.stop()

	for i := 0; i < 3; i++ {
		want := int32(i + 1)
		if !advanceUntil(clock, 10*time.Millisecond, 50, func() bool { return atomic.LoadInt32(&sent) >= want }) {
			t.Fatalf("heartbeat %d was never sent", i)
		}
		h.ack()
	}

	select {
	case <-zombie:
		t.Fatal("zombie fired despite every heartbeat being acknowledged")
	default:
	}
}

func TestHeartbeatController_ZombieAfterThreeMissedAcks(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	h := newHeartbeatController(clock, nil)

	zombie := make(chan struct{})
	h.start(50*time.Millisecond, func() int64 { return 1 }, func(seq int64) error { return nil }, func() {
		close(zombie)
	})
	defer h.stop()

	// Never ack: tick 1 sends, tick 2 finds it pending (missedAcks=1), tick
	// 3 missedAcks=2, tick 4 missedAcks=3 -> zombie.
	fired := advanceUntil(clock, 10*time.Millisecond, 100, func() bool {
		select {
		case <-zombie:
			return true
		default:
			return false
		}
	})
	if !fired {
		t.Fatal("zombie callback was never invoked after repeated missed acks")
	}
}

func TestHeartbeatController_PingIsMeanOfSamples(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	h := newHeartbeatController(clock, nil)

	if got := h.ping(); got != 0 {
		t.Fatalf("expected zero ping with no samples, got %v", got)
	}

	h.start(time.Hour, func() int64 { return 1 }, func(seq int64) error { return nil }, func() {})
	defer h.stop()

	// Advance well past the jittered first tick so the heartbeat is sent.
	clock.Advance(2 * time.Hour)
	time.Sleep(5 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)
	h.ack()

	if got := h.ping(); got != 10*time.Millisecond {
		t.Fatalf("expected ping 10ms, got %v", got)
	}
}

func TestHeartbeatController_StopIsIdempotent(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	h := newHeartbeatController(clock, nil)
	h.start(time.Hour, func() int64 { return 1 }, func(seq int64) error { return nil }, func() {})
	h.stop()
	h.stop()
}
