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
	"sync/atomic"

	"github.com/bytedance/sonic"
)

// DispatchEvent is one validated, demultiplexed gateway event delivered to
// subscribers.
type DispatchEvent struct {
	ShardID int
	Type    string
	Data    json.RawMessage
}

// eventSubscriber receives demultiplexed events. Implemented by the client
// façade; kept as a plain function type so the demultiplexer has no upward
// dependency on it.
type eventSubscriber func(DispatchEvent)

// structuralRule describes the minimal shape check for one event type: the
// required top-level fields and their expected JSON kind.
type structuralRule struct {
	requiredFields map[string]jsonKind
}

type jsonKind int

const (
	kindAny jsonKind = iota
	kindString
	kindNumber
	kindObject
	kindArray
	kindBool
)

// structuralRules is a minimal per-event-type structural check (spec
// §4.8): required fields present and of the correct primitive kind.
// Event types not listed here pass with only a structural-object check.
var structuralRules = map[string]structuralRule{
	"READY": {requiredFields: map[string]jsonKind{
		"session_id": kindString,
	}},
	"MESSAGE_CREATE": {requiredFields: map[string]jsonKind{
		"id":         kindString,
		"channel_id": kindString,
	}},
	"GUILD_CREATE": {requiredFields: map[string]jsonKind{
		"id": kindString,
	}},
	"MESSAGE_DELETE": {requiredFields: map[string]jsonKind{
		"id":         kindString,
		"channel_id": kindString,
	}},
}

// demultiplexer validates incoming dispatch frames, tallies per-type
// counters, and fans the validated event out to subscribers via a worker
// pool (spec §4.8).
type demultiplexer struct {
	log     Logger
	pool    WorkerPool
	counts  *ShardMap[string, *int64]
	subs    []eventSubscriber
}

func newDemultiplexer(log Logger, pool WorkerPool) *demultiplexer {
	return &demultiplexer{
		log:    log,
		pool:   pool,
		counts: NewStringShardMap[*int64](),
	}
}

// subscribe registers fn to receive every validated event.
func (d *demultiplexer) subscribe(fn eventSubscriber) {
	d.subs = append(d.subs, fn)
}

// feed validates one raw dispatch frame and, if it passes structural
// validation, increments its per-type counter and fans it out.
func (d *demultiplexer) feed(shardID int, eventType string, raw json.RawMessage) {
	if !structurallyValid(eventType, raw) {
		if d.log != nil {
			d.log.Warn("dropping structurally invalid dispatch frame: " + eventType)
		}
		return
	}

	counter, _ := d.counts.GetOrSet(eventType, new(int64))
	atomic.AddInt64(counter, 1)

	evt := DispatchEvent{ShardID: shardID, Type: eventType, Data: raw}
	for _, sub := range d.subs {
		sub := sub
		d.pool.Submit(func() { sub(evt) })
	}
}

// countFor returns the number of validated events seen for eventType.
func (d *demultiplexer) countFor(eventType string) int64 {
	counter, ok := d.counts.Get(eventType)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter)
}

// structurallyValid checks raw against the rule registered for eventType,
// if any; unregistered types only need to parse as a JSON object.
func structurallyValid(eventType string, raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := sonic.Unmarshal(raw, &obj); err != nil {
		return false
	}

	rule, ok := structuralRules[eventType]
	if !ok {
		return true
	}

	for field, kind := range rule.requiredFields {
		v, present := obj[field]
		if !present {
			return false
		}
		if !matchesKind([]byte(v), kind) {
			return false
		}
	}
	return true
}

func matchesKind(raw []byte, kind jsonKind) bool {
	if len(raw) == 0 {
		return false
	}
	switch kind {
	case kindString:
		return raw[0] == '"'
	case kindNumber:
		c := raw[0]
		return c == '-' || (c >= '0' && c <= '9')
	case kindObject:
		return raw[0] == '{'
	case kindArray:
		return raw[0] == '['
	case kindBool:
		return raw[0] == 't' || raw[0] == 'f'
	default:
		return true
	}
}
