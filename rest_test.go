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
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mockRoundTripper struct {
	fn func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

func newMockResponse(status int, body string, headers map[string]string) *http.Response {
	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     h,
	}
}

func newTestRestEngine(clock Clock, mockFn func(*http.Request) (*http.Response, error)) *restEngine {
	client := &http.Client{Transport: &mockRoundTripper{fn: mockFn}}
	logger := NewDefaultLogger(nil, LogLevelDebugLevel)
	return newRestEngine(client, "https://service.example/api/v10", "testtoken", logger, clock)
}

func TestRestEngine_RequestSuccess(t *testing.T) {
	r := newTestRestEngine(newManualClock(time.Unix(0, 0)), func(req *http.Request) (*http.Response, error) {
		return newMockResponse(200, `{"ok":true}`, map[string]string{
			"X-RateLimit-Remaining":   "10",
			"X-RateLimit-Reset-After": "1",
		}), nil
	})
	defer r.shutdown()

	body, err := r.request(context.Background(), requestOptions{Method: http.MethodGet, Path: "/channels/123/messages"})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestRestEngine_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	var attempts int32
	clock := newManualClock(time.Unix(0, 0))
	r := newTestRestEngine(clock, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			return newMockResponse(429, `{"message":"rate limited"}`, map[string]string{
				"Retry-After":             "0.1",
				"X-RateLimit-Remaining":   "0",
				"X-RateLimit-Reset-After": "0.1",
			}), nil
		}
		return newMockResponse(200, `{"ok":true}`, nil), nil
	})
	defer r.shutdown()

	done := make(chan struct{})
	var body []byte
	var err error
	go func() {
		body, err = r.request(context.Background(), requestOptions{Method: http.MethodGet, Path: "/channels/123/messages"})
		close(done)
	}()

	// Drain the backoff delays the retry loop schedules between attempts.
	for i := 0; i < 10 && atomic.LoadInt32(&attempts) < 3; i++ {
		clock.Advance(2 * time.Second)
		time.Sleep(time.Millisecond)
	}
	<-done

	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected at least 3 attempts, got %d", attempts)
	}
}

func TestRestEngine_PermanentFailureNotRetried(t *testing.T) {
	var attempts int32
	r := newTestRestEngine(newManualClock(time.Unix(0, 0)), func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return newMockResponse(404, `{"code":10003,"message":"Unknown Channel"}`, map[string]string{
			"Content-Type": "application/json",
		}), nil
	})
	defer r.shutdown()

	_, err := r.request(context.Background(), requestOptions{Method: http.MethodGet, Path: "/channels/999/messages"})
	if err == nil {
		t.Fatal("expected an error")
	}
	apiErr, ok := err.(*ServiceAPIError)
	if !ok {
		t.Fatalf("expected *ServiceAPIError, got %T", err)
	}
	if !apiErr.IsNotFound() {
		t.Fatalf("expected IsNotFound, got %+v", apiErr)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("permanent failures must not be retried, got %d attempts", attempts)
	}
}

func TestRestEngine_BucketRemapOnCanonicalID(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	r := newTestRestEngine(clock, func(req *http.Request) (*http.Response, error) {
		return newMockResponse(200, `{"ok":true}`, map[string]string{
			"X-RateLimit-Bucket":      "canonical-abc",
			"X-RateLimit-Remaining":   "5",
			"X-RateLimit-Reset-After": "1",
		}), nil
	})
	defer r.shutdown()

	opts := requestOptions{Method: http.MethodGet, Path: "/channels/123456789012345678/messages/234567890123456789"}
	if _, err := r.request(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	bkt := r.buckets.bucketFor(opts.Method, opts.Path)
	if bkt.id != "canonical-abc" {
		t.Fatalf("expected route to remap onto canonical bucket id, got %q", bkt.id)
	}
}

func TestRestEngine_BatchPreservesOrderAndCapturesPerRequestErrors(t *testing.T) {
	r := newTestRestEngine(newManualClock(time.Unix(0, 0)), func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/bad") {
			return newMockResponse(404, `{"code":10003,"message":"Unknown Channel"}`, map[string]string{
				"Content-Type": "application/json",
			}), nil
		}
		return newMockResponse(200, `{"path":"`+req.URL.Path+`"}`, nil), nil
	})
	defer r.shutdown()

	requests := []requestOptions{
		{Method: http.MethodGet, Path: "/channels/1/a"},
		{Method: http.MethodGet, Path: "/channels/2/bad"},
		{Method: http.MethodGet, Path: "/channels/3/c"},
	}

	results := r.batch(context.Background(), requests)
	if len(results) != len(requests) {
		t.Fatalf("expected %d results, got %d", len(requests), len(results))
	}

	if results[0].Err != nil || !strings.Contains(string(results[0].Body), "/channels/1/a") {
		t.Fatalf("unexpected result[0]: %+v", results[0])
	}
	if results[1].Err == nil {
		t.Fatal("expected result[1] to carry an error rather than abort the batch")
	}
	if results[2].Err != nil || !strings.Contains(string(results[2].Body), "/channels/3/c") {
		t.Fatalf("unexpected result[2]: %+v", results[2])
	}
}

func TestGatewayInfo_ParsesResponse(t *testing.T) {
	r := newTestRestEngine(newManualClock(time.Unix(0, 0)), func(req *http.Request) (*http.Response, error) {
		return newMockResponse(200, `{"url":"wss://gateway.service.example","shards":4,"session_start_limit":{"total":1000,"remaining":999,"reset_after":1000,"max_concurrency":1}}`, nil), nil
	})
	defer r.shutdown()

	info, err := r.gatewayInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Shards != 4 || info.URL != "wss://gateway.service.example" {
		t.Fatalf("unexpected gateway info: %+v", info)
	}
	if info.SessionStartLimit.MaxConcurrency != 1 {
		t.Fatalf("unexpected max concurrency: %+v", info.SessionStartLimit)
	}
}
