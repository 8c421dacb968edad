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
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// globalPause holds the earliest time global requests across every bucket
// may resume, shared by all buckets belonging to one REST engine. It uses
// a CAS loop so concurrent 429s only ever extend the pause, never shorten
// it.
type globalPause int64

func (g *globalPause) set(t time.Time) {
	newVal := t.UnixNano()
	for {
		oldVal := atomic.LoadInt64((*int64)(g))
		if newVal <= oldVal {
			return
		}
		if atomic.CompareAndSwapInt64((*int64)(g), oldVal, newVal) {
			return
		}
	}
}

func (g *globalPause) get() time.Time {
	return time.Unix(0, atomic.LoadInt64((*int64)(g)))
}

// ErrBucketShutdown is returned to every request still queued on a bucket
// when that bucket is destroyed.
var ErrBucketShutdown = errors.New("gatewaysdk: bucket shut down")

// ErrRequestTimeout is returned when a request's per-request deadline
// expires before the request completes.
var ErrRequestTimeout = errors.New("gatewaysdk: request timed out waiting in bucket")

const defaultRequestTimeout = 15 * time.Second

// requestResult is the outcome delivered back through a pendingRequest's
// completion handle.
type requestResult struct {
	resp *http.Response
	err  error
}

// pendingRequest is one queued REST call bound to a bucket (spec §3's
// Request record).
type pendingRequest struct {
	exec     func(ctx context.Context) (*http.Response, error)
	deadline time.Time
	done     chan requestResult
}

// bucketState is a read-only snapshot of a bucket's counters, safe for
// callers to read without synchronizing with the processor goroutine.
type bucketState struct {
	Limit              int
	Remaining          int
	ResetAt            time.Time
	ResetAfter         time.Duration
	LocalCooldownUntil time.Time
}

// bucket serializes requests bound to one Service-side rate-limit bucket
// (spec §4.1). A single processor goroutine drains its queue so that at
// most `limit` requests are in flight per reset window.
type bucket struct {
	id     string
	clock  Clock
	log    Logger
	global *globalPause

	mu                     sync.Mutex
	limit                  int
	remaining              int
	remainingAuthoritative bool
	resetAt                time.Time
	resetAfter             time.Duration
	localCooldownUntil     time.Time

	queue       chan *pendingRequest
	destroyed   chan struct{}
	destroyOnce sync.Once
}

func newBucket(id string, clock Clock, global *globalPause, log Logger) *bucket {
	if clock == nil {
		clock = realClock{}
	}
	b := &bucket{
		id:        id,
		clock:     clock,
		global:    global,
		log:       log,
		limit:     -1,
		remaining: 1,
		queue:     make(chan *pendingRequest, 256),
		destroyed: make(chan struct{}),
	}
	go b.run()
	return b
}

// enqueue attaches a per-request deadline (default 15s) and submits the
// request for execution; it blocks until the request completes, times out,
// or the bucket is destroyed.
func (b *bucket) enqueue(ctx context.Context, timeout time.Duration, exec func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	req := &pendingRequest{
		exec:     exec,
		deadline: b.clock.Now().Add(timeout),
		done:     make(chan requestResult, 1),
	}

	select {
	case b.queue <- req:
	case <-b.destroyed:
		return nil, ErrBucketShutdown
	}

	select {
	case res := <-req.done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.clock.After(timeout):
		return nil, ErrRequestTimeout
	}
}

// run is the bucket's single processing fiber: it drains the queue,
// honoring the reset window and global cooldown before each dequeue.
func (b *bucket) run() {
	for {
		select {
		case <-b.destroyed:
			return
		case req := <-b.queue:
			b.waitUntilReady()

			select {
			case <-b.destroyed:
				req.done <- requestResult{err: ErrBucketShutdown}
				return
			default:
			}

			if b.clock.Now().After(req.deadline) {
				req.done <- requestResult{err: &TimeoutError{Op: "bucket " + b.id, Timeout: defaultRequestTimeout.String()}}
				continue
			}

			resp, err := req.exec(context.Background())
			if err == nil && resp != nil {
				b.applyResponseHeaders(resp.Header)
			}
			req.done <- requestResult{resp: resp, err: err}
		}
	}
}

// waitUntilReady sleeps until the bucket is allowed to issue its next
// request: past any active global cooldown, and past resetAt if remaining
// has been exhausted.
func (b *bucket) waitUntilReady() {
	for {
		b.mu.Lock()
		now := b.clock.Now()
		var wait time.Duration
		if g := b.global.get(); now.Before(g) {
			wait = g.Sub(now)
		} else if now.Before(b.localCooldownUntil) {
			wait = b.localCooldownUntil.Sub(now)
		} else if b.remaining == 0 && now.Before(b.resetAt) {
			wait = b.resetAt.Sub(now)
		}
		b.mu.Unlock()

		if wait <= 0 {
			return
		}
		select {
		case <-b.clock.After(wait):
		case <-b.destroyed:
			return
		}
	}
}

// applyResponseHeaders updates limit/remaining/resetAt/resetAfter from a
// response's rate-limit headers (spec §4.1, §6). resetAfter is preferred
// over the epoch-seconds reset header for clock-skew resilience.
func (b *bucket) applyResponseHeaders(h http.Header) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit, ok := parseIntHeader(h.Get("X-RateLimit-Limit")); ok {
		b.limit = limit
	}

	if remaining, ok := parseIntHeader(h.Get("X-RateLimit-Remaining")); ok {
		b.remaining = remaining
		b.remainingAuthoritative = true
	} else if b.remainingAuthoritative && b.remaining > 0 {
		// Header absent on this response: decrement speculatively.
		b.remaining--
	}

	if resetAfter, ok := parseFloatHeader(h.Get("X-RateLimit-Reset-After")); ok {
		b.resetAfter = secondsToDuration(resetAfter)
		b.resetAt = b.clock.Now().Add(b.resetAfter)
	} else if reset, ok := parseFloatHeader(h.Get("X-RateLimit-Reset")); ok {
		b.resetAt = time.Unix(0, int64(reset*float64(time.Second)))
	}

	if retryAfter, ok := parseFloatHeader(h.Get("Retry-After")); ok {
		until := b.clock.Now().Add(secondsToDuration(retryAfter))
		if h.Get("X-RateLimit-Global") == "true" || h.Get("X-RateLimit-Scope") == "global" {
			b.global.set(until)
		} else {
			b.localCooldownUntil = until
		}
	}
}

// state returns a snapshot of the bucket's counters.
func (b *bucket) state() bucketState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bucketState{
		Limit:              b.limit,
		Remaining:          b.remaining,
		ResetAt:            b.resetAt,
		ResetAfter:         b.resetAfter,
		LocalCooldownUntil: b.localCooldownUntil,
	}
}

// destroy rejects all queued requests with ErrBucketShutdown and stops the
// processor goroutine. Safe to call more than once.
func (b *bucket) destroy() {
	b.destroyOnce.Do(func() {
		close(b.destroyed)
		for {
			select {
			case req := <-b.queue:
				req.done <- requestResult{err: ErrBucketShutdown}
			default:
				return
			}
		}
	})
}

func parseIntHeader(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseFloatHeader(v string) (float64, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// secondsToDuration converts the Service's sub-second-precision seconds
// value (used by reset-after and retry-after) into a time.Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
