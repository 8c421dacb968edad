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
	"sync"
	"time"
)

const (
	defaultShardReadyTimeout = 30 * time.Second
	defaultSpawnDelay        = 5 * time.Second
)

// shardManager determines the shard count, spawns shards under the
// Service-published concurrency limit, waits for each to become ready
// before advancing, and forwards their events upward (spec §4.7).
type shardManager struct {
	rest       *restEngine
	token      string
	intents    GatewayIntent
	logger     Logger
	clock      Clock
	gatewayURL string

	readyTimeout time.Duration
	spawnDelay   time.Duration

	onDispatch func(shardID int, eventType string, data json.RawMessage)
	onEvent    func(ShardEvent)

	mu        sync.Mutex
	shards    map[int]*Shard
	readySet  map[int]bool
	onAllReady func()
}

func newShardManager(rest *restEngine, token string, intents GatewayIntent, logger Logger, clock Clock) *shardManager {
	if clock == nil {
		clock = realClock{}
	}
	return &shardManager{
		rest:         rest,
		token:        token,
		intents:      intents,
		logger:       logger,
		clock:        clock,
		readyTimeout: defaultShardReadyTimeout,
		spawnDelay:   defaultSpawnDelay,
		shards:       make(map[int]*Shard),
		readySet:     make(map[int]bool),
	}
}

// spawnAll fetches gateway info, determines the shard set, and spawns each
// shard sequentially (respecting maxConcurrency), waiting for each to
// reach ready (or error) with readyTimeout before advancing, with
// spawnDelay between batches (spec §4.7).
func (m *shardManager) spawnAll(ctx context.Context, shardCount int) error {
	info, err := m.rest.gatewayInfo(ctx)
	if err != nil {
		return err
	}
	if shardCount <= 0 {
		shardCount = info.Shards
		if shardCount <= 0 {
			shardCount = 1
		}
	}
	m.gatewayURL = info.URL + "/?v=" + apiVersion[1:] + "&encoding=json"

	maxConcurrency := info.SessionStartLimit.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	limiter := NewDefaultShardsRateLimiter(maxConcurrency, m.spawnDelay)

	for batchStart := 0; batchStart < shardCount; batchStart += maxConcurrency {
		batchEnd := batchStart + maxConcurrency
		if batchEnd > shardCount {
			batchEnd = shardCount
		}

		var wg sync.WaitGroup
		for id := batchStart; id < batchEnd; id++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				m.spawnOne(ctx, id, shardCount, limiter)
			}(id)
		}
		wg.Wait()

		if batchEnd < shardCount {
			select {
			case <-m.clock.After(m.spawnDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (m *shardManager) spawnOne(ctx context.Context, id, totalShards int, limiter ShardsIdentifyRateLimiter) {
	readyCh := make(chan struct{}, 1)

	shard := newShard(
		id, totalShards, m.token, m.intents, m.gatewayURL,
		m.logger, m.clock, limiter,
		m.onDispatch,
		func(evt ShardEvent) {
			if evt.Kind == "ready" || evt.Kind == "resumed" {
				select {
				case readyCh <- struct{}{}:
				default:
				}
				m.markReady(id)
			}
			if m.onEvent != nil {
				m.onEvent(evt)
			}
		},
	)

	m.mu.Lock()
	m.shards[id] = shard
	m.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, m.readyTimeout)
	defer cancel()

	if err := shard.connect(connectCtx); err != nil {
		if m.onEvent != nil {
			m.onEvent(ShardEvent{ShardID: id, Kind: "fatal", Err: err})
		}
		return
	}

	select {
	case <-readyCh:
	case <-connectCtx.Done():
		if m.onEvent != nil {
			m.onEvent(ShardEvent{ShardID: id, Kind: "fatal", Err: ErrReadyTimeout})
		}
	}
}

// shardCountHint returns the number of shards currently managed, for
// guildID-based shard targeting (Snowflake.ShardID).
func (m *shardManager) shardCountHint() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shards)
}

func (m *shardManager) markReady(id int) {
	m.mu.Lock()
	wasReady := m.readySet[id]
	m.readySet[id] = true
	allReady := !wasReady && len(m.readySet) == len(m.shards) && len(m.shards) > 0
	cb := m.onAllReady
	m.mu.Unlock()

	if allReady && cb != nil {
		cb()
	}
}

// broadcast sends payload on every shard currently in the ready state,
// returning the count sent.
func (m *shardManager) broadcast(op gatewayOpcode, payload any) int {
	m.mu.Lock()
	shards := make([]*Shard, 0, len(m.shards))
	for _, s := range m.shards {
		shards = append(shards, s)
	}
	m.mu.Unlock()

	sent := 0
	for _, s := range shards {
		if s.State() != shardReady {
			continue
		}
		if err := s.send(op, payload); err == nil {
			sent++
		}
	}
	return sent
}

// sendToShard directs a payload at the shard owning the given id, e.g. so
// callers can target voice-state/member-request traffic at the shard that
// owns a particular guild via Snowflake.ShardID.
func (m *shardManager) sendToShard(shardID int, op gatewayOpcode, payload any) error {
	m.mu.Lock()
	s, ok := m.shards[shardID]
	m.mu.Unlock()
	if !ok {
		return ErrShardNotFound
	}
	return s.send(op, payload)
}

// shutdown stops every managed shard.
func (m *shardManager) shutdown() {
	m.mu.Lock()
	shards := make([]*Shard, 0, len(m.shards))
	for _, s := range m.shards {
		shards = append(shards, s)
	}
	m.shards = make(map[int]*Shard)
	m.readySet = make(map[int]bool)
	m.mu.Unlock()

	for _, s := range shards {
		s.Shutdown()
	}
}
