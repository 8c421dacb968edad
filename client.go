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
	"log"
	"os"
	"strings"
)

/*****************************
 *          Client
 *****************************/

// Client is the gateway client façade: it aggregates the REST engine, the
// shard manager, and the event demultiplexer behind a small surface
// (connect/disconnect/broadcast/request) and exposes the library's event
// stream (spec §4's façade, §6's exposed-to-collaborators contract).
//
// Create a Client using gatewaysdk.New() with the desired options, then
// call Connect().
type Client struct {
	ctx     context.Context
	cancel  context.CancelFunc
	Logger  Logger
	rest    *restEngine
	manager *shardManager
	demux   *demultiplexer

	token      string
	intents    GatewayIntent
	shardCount int

	onReady          func()
	onShardReady     func(id int)
	onShardResumed   func(id int)
	onShardDisconnect func(id int, code GatewayCloseCode, reason string)
	onError          func(error)
}

type clientOption func(*Client)

/*****************************
 *       Options
 *****************************/

// WithToken sets the bot token for the client. Logs fatal and exits if
// empty or obviously invalid (< 50 chars). Strips a leading "Bot " prefix
// if supplied.
func WithToken(token string) clientOption {
	if token == "" {
		log.Fatal("WithToken: token must not be empty")
	}
	if len(token) < 50 {
		log.Fatal("WithToken: token invalid")
	}
	if strings.HasPrefix(token, "Bot ") {
		token = strings.TrimPrefix(token, "Bot ")
	}
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets a custom Logger implementation. Logs fatal and exits if
// logger is nil.
func WithLogger(logger Logger) clientOption {
	if logger == nil {
		log.Fatal("WithLogger: logger must not be nil")
	}
	return func(c *Client) {
		c.Logger = logger
	}
}

// WithShardCount overrides the shard count the client requests instead of
// using the Service's recommended value.
func WithShardCount(n int) clientOption {
	return func(c *Client) {
		c.shardCount = n
	}
}

// WithIntents sets the gateway intents requested by every shard.
func WithIntents(intents ...GatewayIntent) clientOption {
	var total GatewayIntent
	for _, i := range intents {
		total |= i
	}
	return func(c *Client) {
		c.intents = total
	}
}

// OnReady registers a callback invoked once every shard reports ready
// (the façade's `ready` event).
func (c *Client) OnReady(fn func()) { c.onReady = fn }

// OnShardReady registers a callback invoked when a shard completes its
// handshake (the façade's `shardReady(id)` event).
func (c *Client) OnShardReady(fn func(id int)) { c.onShardReady = fn }

// OnShardResumed registers a callback invoked when a shard resumes its
// session (the façade's `shardResumed(id)` event).
func (c *Client) OnShardResumed(fn func(id int)) { c.onShardResumed = fn }

// OnShardDisconnect registers a callback invoked on a non-fatal shard
// disconnect (the façade's `shardDisconnect(id, code, reason)` event).
func (c *Client) OnShardDisconnect(fn func(id int, code GatewayCloseCode, reason string)) {
	c.onShardDisconnect = fn
}

// OnDispatch registers a callback invoked for every validated dispatch
// event (the façade's `dispatch(shardId, frame)` event).
func (c *Client) OnDispatch(fn func(shardID int, eventType string, data json.RawMessage)) {
	c.demux.subscribe(func(evt DispatchEvent) {
		fn(evt.ShardID, evt.Type, evt.Data)
	})
}

// OnError registers a callback invoked for non-fatal errors surfaced by
// the core (the façade's `error` event).
func (c *Client) OnError(fn func(error)) { c.onError = fn }

/*****************************
 *       Constructor
 *****************************/

// New creates a new Client with the provided options.
//
// Defaults:
//   - Logger: stdout JSON-lines logger at Info level.
//   - Intents: GatewayIntentGuilds | GatewayIntentGuildMessages | GatewayIntentGuildMembers
func New(ctx context.Context, options ...clientOption) *Client {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		ctx:    ctx,
		cancel: cancel,
		Logger: NewDefaultLogger(os.Stdout, LogLevelInfoLevel),
		intents: GatewayIntentGuilds |
			GatewayIntentGuildMessages |
			GatewayIntentGuildMembers,
	}

	for _, opt := range options {
		opt(c)
	}

	clock := realClock{}
	c.rest = newRestEngine(nil, "", c.token, c.Logger, clock)
	pool := NewDefaultWorkerPool(c.Logger)
	c.demux = newDemultiplexer(c.Logger, pool)
	c.manager = newShardManager(c.rest, c.token, c.intents, c.Logger, clock)
	c.manager.onDispatch = func(shardID int, eventType string, data json.RawMessage) {
		c.demux.feed(shardID, eventType, data)
	}
	c.manager.onEvent = c.handleShardEvent
	c.manager.onAllReady = func() {
		if c.onReady != nil {
			c.onReady()
		}
	}
	return c
}

func (c *Client) handleShardEvent(evt ShardEvent) {
	switch evt.Kind {
	case "ready":
		if c.onShardReady != nil {
			c.onShardReady(evt.ShardID)
		}
	case "resumed":
		if c.onShardResumed != nil {
			c.onShardResumed(evt.ShardID)
		}
	case "disconnect":
		if c.onShardDisconnect != nil {
			c.onShardDisconnect(evt.ShardID, evt.Code, evt.Reason)
		}
	case "fatal":
		if c.onError != nil {
			c.onError(evt.Err)
		}
	}
}

/*****************************
 *       Connect / Request
 *****************************/

// Connect fetches gateway info and spawns all configured shards,
// respecting the Service-published spawn concurrency and per-shard ready
// timeout (spec §4.7). It returns once every shard has either become
// ready or exhausted its connect window; the gateway connections continue
// running in the background afterward.
func (c *Client) Connect() error {
	return c.manager.spawnAll(c.ctx, c.shardCount)
}

// Disconnect shuts down every shard, the REST engine, and the worker pool.
func (c *Client) Disconnect() {
	c.cancel()
	c.manager.shutdown()
	c.rest.shutdown()
	c.demux.pool.Shutdown()
}

// Broadcast sends payload with the given opcode on every ready shard,
// returning the count sent.
func (c *Client) Broadcast(op Opcode, payload any) int {
	return c.manager.broadcast(gatewayOpcode(op), payload)
}

// SendToShard directs payload at the shard owning shardID.
func (c *Client) SendToShard(shardID int, op Opcode, payload any) error {
	return c.manager.sendToShard(shardID, gatewayOpcode(op), payload)
}

// UpdatePresence broadcasts a presence update to every ready shard,
// returning the count sent.
func (c *Client) UpdatePresence(presence any) int {
	return c.manager.broadcast(opPresenceUpdate, presence)
}

// UpdateVoiceState directs a voice-state update at the shard owning
// guildID.
func (c *Client) UpdateVoiceState(guildID Snowflake, state any) error {
	return c.manager.sendToShard(guildID.ShardID(c.manager.shardCountHint()), opVoiceStateUpdate, state)
}

// RequestGuildMembers directs a member-request at the shard owning
// guildID.
func (c *Client) RequestGuildMembers(guildID Snowflake, req any) error {
	return c.manager.sendToShard(guildID.ShardID(c.manager.shardCountHint()), opRequestGuildMembers, req)
}

// Request issues one REST call through the rate-limit engine (spec §4.4).
func (c *Client) Request(ctx context.Context, opts requestOptions) ([]byte, error) {
	opts.Auth = true
	return c.rest.request(ctx, opts)
}

// Batch issues every request concurrently through the rate-limit engine and
// returns their results in request order. A failing request never aborts
// the rest of the batch; its error is captured in its own BatchResult
// (spec §4.4).
func (c *Client) Batch(ctx context.Context, requests []requestOptions) []BatchResult {
	for i := range requests {
		requests[i].Auth = true
	}
	return c.rest.batch(ctx, requests)
}
