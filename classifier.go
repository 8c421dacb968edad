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

	"github.com/bytedance/sonic"
)

// outcomeKind is the classification a response is mapped to (spec §4.3).
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomePermanentFailure
	outcomeRateLimited
	outcomeRetryable
)

// rateLimitHeaders holds the rate-limit metadata extracted from a
// response's headers (spec §4.3, §6).
type rateLimitHeaders struct {
	Limit      int
	Remaining  int
	Reset      float64
	ResetAfter float64
	Bucket     string
	Global     bool
	Scope      string
	RetryAfter float64
}

func extractRateLimitHeaders(h http.Header) rateLimitHeaders {
	limit, _ := parseIntHeader(h.Get("X-RateLimit-Limit"))
	remaining, _ := parseIntHeader(h.Get("X-RateLimit-Remaining"))
	reset, _ := parseFloatHeader(h.Get("X-RateLimit-Reset"))
	resetAfter, _ := parseFloatHeader(h.Get("X-RateLimit-Reset-After"))
	retryAfter, _ := parseFloatHeader(h.Get("Retry-After"))
	return rateLimitHeaders{
		Limit:      limit,
		Remaining:  remaining,
		Reset:      reset,
		ResetAfter: resetAfter,
		Bucket:     h.Get("X-RateLimit-Bucket"),
		Global:     h.Get("X-RateLimit-Global") == "true",
		Scope:      h.Get("X-RateLimit-Scope"),
		RetryAfter: retryAfter,
	}
}

// classifiedResponse is the result of running a completed HTTP response
// through the classifier.
type classifiedResponse struct {
	Kind       outcomeKind
	StatusCode int
	Body       []byte
	Headers    rateLimitHeaders
	Err        error
}

// classify maps an HTTP response to {success, retryable, rate-limited,
// permanent-failure} per the table in spec §4.3, reading and closing the
// body as needed.
func classify(resp *http.Response) classifiedResponse {
	headers := extractRateLimitHeaders(resp.Header)
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return classifiedResponse{Kind: outcomeRateLimited, StatusCode: resp.StatusCode, Body: body, Headers: headers}

	case resp.StatusCode >= 500:
		return classifiedResponse{Kind: outcomeRetryable, StatusCode: resp.StatusCode, Body: body, Headers: headers}

	case resp.StatusCode >= 400:
		apiErr := &ServiceAPIError{HTTPStatus: resp.StatusCode}
		if isJSONBody(resp.Header) && len(body) > 0 {
			if err := sonic.Unmarshal(body, apiErr); err == nil && apiErr.Message != "" {
				return classifiedResponse{Kind: outcomePermanentFailure, StatusCode: resp.StatusCode, Body: body, Headers: headers, Err: apiErr}
			}
		}
		return classifiedResponse{
			Kind:       outcomePermanentFailure,
			StatusCode: resp.StatusCode,
			Body:       body,
			Headers:    headers,
			Err: &HTTPError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       body,
			},
		}

	default:
		if readErr != nil {
			return classifiedResponse{Kind: outcomeSuccess, StatusCode: resp.StatusCode, Headers: headers, Err: readErr}
		}
		return classifiedResponse{Kind: outcomeSuccess, StatusCode: resp.StatusCode, Body: body, Headers: headers}
	}
}

func isJSONBody(h http.Header) bool {
	return strings.Contains(h.Get("Content-Type"), "application/json")
}
