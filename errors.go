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
	"errors"
	"fmt"
)

// Common sentinel errors returned by the gatewaysdk library.
var (
	// ErrNoClient is returned when a method is called on a value with no
	// client reference.
	ErrNoClient = errors.New("gatewaysdk: no client reference")

	// ErrInvalidToken is returned when the configured token is empty or
	// obviously malformed.
	ErrInvalidToken = errors.New("gatewaysdk: invalid token")

	// ErrInvalidSnowflake is returned when a snowflake ID fails to parse.
	ErrInvalidSnowflake = errors.New("gatewaysdk: invalid snowflake")

	// ErrShardNotFound is returned when an operation targets a shard ID
	// that the manager does not own.
	ErrShardNotFound = errors.New("gatewaysdk: shard not found")

	// ErrClientClosed is returned when an operation is attempted on a
	// client that has already disconnected.
	ErrClientClosed = errors.New("gatewaysdk: client is closed")

	// ErrReadyTimeout is returned by the shard manager's spawn protocol
	// when a shard does not reach the ready state within its timeout.
	ErrReadyTimeout = errors.New("gatewaysdk: shard did not become ready in time")

	// ErrMaxReconnectAttempts is returned when a shard exhausts its
	// reconnect budget after repeated non-fatal disconnects.
	ErrMaxReconnectAttempts = errors.New("gatewaysdk: exceeded max reconnect attempts")
)

// TransportError represents a connection-level failure: refused, reset, or
// TLS handshake failure. Transport errors are retryable with backoff, up to
// the configured retry budget.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gatewaysdk: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError represents a per-request or per-spawn deadline expiring. It
// is reported to the caller and is not retried inside the bucket or spawn
// protocol that produced it.
type TimeoutError struct {
	Op      string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gatewaysdk: %s timed out after %s", e.Op, e.Timeout)
}

// RateLimitError represents a 429 response. The bucket that produced it
// installs a pause, and the REST engine retries automatically once the
// pause expires, bounded by the configured retry budget; this error only
// reaches the caller once that budget is exhausted.
type RateLimitError struct {
	// Bucket is the rate-limit bucket ID this response was attributed to.
	Bucket string
	// RetryAfter is the server-reported cooldown, in seconds.
	RetryAfter float64
	// Global indicates this was a global rate limit rather than a
	// per-route limit.
	Global bool
}

func (e *RateLimitError) Error() string {
	if e.Global {
		return fmt.Sprintf("gatewaysdk: global rate limit, retry after %.3fs", e.RetryAfter)
	}
	return fmt.Sprintf("gatewaysdk: rate limited on bucket %q, retry after %.3fs", e.Bucket, e.RetryAfter)
}

// ServiceAPIError represents a structured {code, message} error body
// returned by the Service's REST API. It is permanent and is never
// retried.
type ServiceAPIError struct {
	// Code is the Service-defined error code.
	Code int `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// HTTPStatus is the HTTP status code the error arrived with.
	HTTPStatus int `json:"-"`

	// Errors contains nested per-field validation errors, when present.
	Errors map[string]interface{} `json:"errors,omitempty"`
}

func (e *ServiceAPIError) Error() string {
	return fmt.Sprintf("gatewaysdk: api error %d: %s", e.Code, e.Message)
}

// IsNotFound returns true if this is a 404 Not Found error.
func (e *ServiceAPIError) IsNotFound() bool { return e.HTTPStatus == 404 }

// IsUnauthorized returns true if this is a 401 Unauthorized error.
func (e *ServiceAPIError) IsUnauthorized() bool { return e.HTTPStatus == 401 }

// IsForbidden returns true if this is a 403 Forbidden error.
func (e *ServiceAPIError) IsForbidden() bool { return e.HTTPStatus == 403 }

// HTTPError represents a plain, unstructured 4xx/5xx HTTP response: no
// {code, message} body could be parsed. Non-429 4xx errors are permanent;
// 5xx errors are retryable.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gatewaysdk: http error %s", e.Status)
}

// Retryable reports whether the engine should retry the request that
// produced this error.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500
}

// FatalCloseError represents a Gateway WebSocket close whose code is in the
// fatal set (§6). The shard that received it stops; the shard manager
// surfaces the failure to the caller instead of reconnecting.
type FatalCloseError struct {
	ShardID int
	Code    GatewayCloseCode
	Reason  string
}

func (e *FatalCloseError) Error() string {
	return fmt.Sprintf("gatewaysdk: shard %d closed fatally with code %d: %s", e.ShardID, e.Code, e.Reason)
}
