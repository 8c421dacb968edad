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
	"io"
	"net/http"
	"strings"
	"testing"
)

func newTestResponse(status int, body string, headers map[string]string) *http.Response {
	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestClassify_Success(t *testing.T) {
	resp := newTestResponse(200, `{"ok":true}`, nil)
	result := classify(resp)
	if result.Kind != outcomeSuccess {
		t.Fatalf("expected outcomeSuccess, got %v", result.Kind)
	}
	if string(result.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", result.Body)
	}
}

func TestClassify_RateLimited(t *testing.T) {
	resp := newTestResponse(429, `{"message":"rate limited"}`, map[string]string{
		"Retry-After":           "1.5",
		"X-RateLimit-Global":    "true",
		"X-RateLimit-Remaining": "0",
	})
	result := classify(resp)
	if result.Kind != outcomeRateLimited {
		t.Fatalf("expected outcomeRateLimited, got %v", result.Kind)
	}
	if !result.Headers.Global {
		t.Fatal("expected Global to be parsed true")
	}
	if result.Headers.RetryAfter != 1.5 {
		t.Fatalf("expected RetryAfter 1.5, got %v", result.Headers.RetryAfter)
	}
}

func TestClassify_RetryableServerError(t *testing.T) {
	resp := newTestResponse(503, "Service Unavailable", nil)
	result := classify(resp)
	if result.Kind != outcomeRetryable {
		t.Fatalf("expected outcomeRetryable, got %v", result.Kind)
	}
	if result.StatusCode != 503 {
		t.Fatalf("expected StatusCode 503, got %d", result.StatusCode)
	}
}

func TestClassify_PermanentFailureWithStructuredBody(t *testing.T) {
	resp := newTestResponse(404, `{"code":10003,"message":"Unknown Channel"}`, map[string]string{
		"Content-Type": "application/json",
	})
	result := classify(resp)
	if result.Kind != outcomePermanentFailure {
		t.Fatalf("expected outcomePermanentFailure, got %v", result.Kind)
	}
	apiErr, ok := result.Err.(*ServiceAPIError)
	if !ok {
		t.Fatalf("expected *ServiceAPIError, got %T", result.Err)
	}
	if apiErr.Code != 10003 || !apiErr.IsNotFound() {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClassify_PermanentFailureWithoutStructuredBody(t *testing.T) {
	resp := newTestResponse(403, "Forbidden", nil)
	result := classify(resp)
	if result.Kind != outcomePermanentFailure {
		t.Fatalf("expected outcomePermanentFailure, got %v", result.Kind)
	}
	httpErr, ok := result.Err.(*HTTPError)
	if !ok {
		t.Fatalf("expected *HTTPError, got %T", result.Err)
	}
	if httpErr.Retryable() {
		t.Fatal("4xx errors must not be retryable")
	}
}

func TestHTTPError_RetryableBoundary(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{499, false},
		{500, true},
		{599, true},
	}
	for _, c := range cases {
		e := &HTTPError{StatusCode: c.status}
		if e.Retryable() != c.retryable {
			t.Fatalf("status %d: expected Retryable()=%v", c.status, c.retryable)
		}
	}
}
