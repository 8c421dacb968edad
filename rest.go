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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

const (
	apiVersion        = "v10"
	defaultBaseURL    = "https://service.example/api/" + apiVersion
	defaultRetries    = 3
	retryBaseDelay    = 1 * time.Second
	retryMaxDelay     = 30 * time.Second
	headerAuditReason = "X-Audit-Log-Reason"
)

// File describes a single attachment for a multipart request.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// requestOptions is the full Request record from spec §3: everything
// needed to execute and account for one REST call.
type requestOptions struct {
	Method  string
	Path    string
	Body    any
	Query   map[string]string
	Headers map[string]string
	Files   []File
	Reason  string
	Timeout time.Duration
	Auth    bool
}

// restEngine binds requests to their bucket, executes them, learns the
// canonical bucket id from the response, and returns a classified result
// (spec §4.4).
type restEngine struct {
	client    *http.Client
	baseURL   string
	token     string
	userAgent string
	retries   int
	log       Logger
	buckets   *bucketManager
	clock     Clock
}

func newRestEngine(client *http.Client, baseURL, token string, log Logger, clock Clock) *restEngine {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,

				MaxIdleConns:        500,
				MaxIdleConnsPerHost: 100,
				MaxConnsPerHost:     200,

				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,

				ForceAttemptHTTP2: true,
			},
		}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if clock == nil {
		clock = realClock{}
	}
	return &restEngine{
		client:    client,
		baseURL:   baseURL,
		token:     token,
		userAgent: fmt.Sprintf("%s/%s", LibName, LibVersion),
		retries:   defaultRetries,
		log:       log,
		buckets:   newBucketManager(clock, log),
		clock:     clock,
	}
}

// request resolves route key -> bucket -> enqueue; on response it remaps
// the bucket using the server-published canonical id (if any), retries
// retryable failures with exponential backoff up to retries, and returns
// the response body or propagates the final classified error.
func (r *restEngine) request(ctx context.Context, opts requestOptions) ([]byte, error) {
	bkt := r.buckets.bucketFor(opts.Method, opts.Path)

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			select {
			case <-r.clock.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := bkt.enqueue(ctx, opts.Timeout, func(ctx context.Context) (*http.Response, error) {
			return r.do(ctx, opts)
		})
		if err != nil {
			lastErr = &TransportError{Op: opts.Method + " " + opts.Path, Err: err}
			var timeoutErr *TimeoutError
			if ctx.Err() != nil || errors.Is(err, ErrBucketShutdown) || errors.Is(err, ErrRequestTimeout) || errors.As(err, &timeoutErr) {
				return nil, lastErr
			}
			continue
		}

		result := classify(resp)
		if bucketID := result.Headers.Bucket; bucketID != "" {
			r.buckets.remap(opts.Method, opts.Path, bucketID)
		}

		switch result.Kind {
		case outcomeSuccess:
			return result.Body, nil
		case outcomePermanentFailure:
			return nil, result.Err
		case outcomeRateLimited:
			lastErr = &RateLimitError{
				Bucket:     result.Headers.Bucket,
				RetryAfter: result.Headers.RetryAfter,
				Global:     result.Headers.Global,
			}
			continue
		case outcomeRetryable:
			lastErr = &HTTPError{StatusCode: result.StatusCode, Status: fmt.Sprintf("%d", result.StatusCode), Body: result.Body}
			continue
		}
	}

	return nil, lastErr
}

// BatchResult is one request's outcome within a batch (spec §4.4): Err is
// populated instead of aborting the batch when a request fails.
type BatchResult struct {
	Body []byte
	Err  error
}

// batch issues every request concurrently, each through its own bucket, and
// returns their results in the same order as requests. A failing request
// never aborts its siblings; its failure is captured in its own
// BatchResult (spec §4.4).
func (r *restEngine) batch(ctx context.Context, requests []requestOptions) []BatchResult {
	results := make([]BatchResult, len(requests))

	var wg sync.WaitGroup
	wg.Add(len(requests))
	for i, opts := range requests {
		go func(i int, opts requestOptions) {
			defer wg.Done()
			body, err := r.request(ctx, opts)
			results[i] = BatchResult{Body: body, Err: err}
		}(i, opts)
	}
	wg.Wait()

	return results
}

// backoffDelay computes exponential backoff starting at 1s, capped at 30s
// (spec §4.3).
func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay << (attempt - 1)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

func (r *restEngine) do(ctx context.Context, opts requestOptions) (*http.Response, error) {
	var bodyReader io.Reader
	var contentType string

	switch {
	case len(opts.Files) > 0:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		if opts.Body != nil {
			payloadJSON, err := sonic.Marshal(opts.Body)
			if err != nil {
				return nil, err
			}
			if err := w.WriteField("payload_json", string(payloadJSON)); err != nil {
				return nil, err
			}
		}
		for i, f := range opts.Files {
			part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
			if err != nil {
				return nil, err
			}
			if _, err := part.Write(f.Data); err != nil {
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		bodyReader = buf
		contentType = w.FormDataContentType()

	case opts.Body != nil:
		payload, err := sonic.Marshal(opts.Body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, r.baseURL+opts.Path, bodyReader)
	if err != nil {
		return nil, err
	}

	if opts.Auth && r.token != "" {
		req.Header.Set("Authorization", "Bot "+r.token)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts.Reason != "" {
		req.Header.Set(headerAuditReason, opts.Reason)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if len(opts.Query) > 0 {
		q := req.URL.Query()
		for k, v := range opts.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	return r.client.Do(req)
}

// gatewayInfo fetches the Service's recommended shard count and session
// start limit, used by the shard manager's spawn protocol (spec §4.7).
func (r *restEngine) gatewayInfo(ctx context.Context) (GatewayInfo, error) {
	body, err := r.request(ctx, requestOptions{Method: http.MethodGet, Path: "/gateway/bot", Auth: true})
	if err != nil {
		return GatewayInfo{}, err
	}
	var info GatewayInfo
	if err := sonic.Unmarshal(body, &info); err != nil {
		return GatewayInfo{}, err
	}
	return info, nil
}

// shutdown closes idle connections and destroys every bucket.
func (r *restEngine) shutdown() {
	if tr, ok := r.client.Transport.(interface{ CloseIdleConnections() }); ok {
		tr.CloseIdleConnections()
	}
	r.buckets.clear()
}
