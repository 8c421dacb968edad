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
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	reSnowflakeSegment = regexp.MustCompile(`\d{17,19}`)
	reReactionTail     = regexp.MustCompile(`/reactions/.*`)
	reWebhookToken     = regexp.MustCompile(`/webhooks/(\d{17,19})/[^/?]+`)
)

// routeKey derives the rate-limit route key for a method+path pair (spec
// §3, §4.2): every identifier-like segment collapses to `{id}`, the
// reaction emoji segment collapses to `{emoji}`, and the webhook token
// segment collapses to `{token}`, so that two paths differing only in
// snowflake-shaped segments (e.g. `/channels/<id1>/messages` and
// `/channels/<id2>/messages`) always derive the same route key.
func routeKey(method, path string) string {
	if strings.HasPrefix(path, "/interactions/") && strings.HasSuffix(path, "/callback") {
		return method + ":/interactions/{id}/{token}/callback"
	}

	base := reWebhookToken.ReplaceAllString(path, "/webhooks/{id}/{token}")
	base = reSnowflakeSegment.ReplaceAllString(base, "{id}")
	base = reReactionTail.ReplaceAllString(base, "/reactions/{emoji}")

	if isOldMessageDelete(method, path) {
		base += "/oldmessage"
	}

	return method + ":" + base
}

// bucketManager maps route keys to buckets, remapping a route's bucket
// once the Service publishes a canonical bucket identifier for it (spec
// §4.2).
type bucketManager struct {
	clock  Clock
	global *globalPause
	log    Logger

	buckets *ShardMap[string, *bucket]

	mu          sync.Mutex
	routeToBkt  map[string]string   // routeKey -> bucketId
	bktToRoutes map[string][]string // bucketId -> routeKeys pointing at it
}

func newBucketManager(clock Clock, log Logger) *bucketManager {
	return &bucketManager{
		clock:       clock,
		global:      new(globalPause),
		log:         log,
		buckets:     NewStringShardMap[*bucket](),
		routeToBkt:  make(map[string]string),
		bktToRoutes: make(map[string][]string),
	}
}

// bucketFor returns the bucket responsible for method+path, creating one
// keyed by the route key itself if this is the first time the route has
// been seen.
func (m *bucketManager) bucketFor(method, path string) *bucket {
	rk := routeKey(method, path)

	m.mu.Lock()
	bktID, ok := m.routeToBkt[rk]
	if !ok {
		bktID = rk
		m.routeToBkt[rk] = bktID
		m.bktToRoutes[bktID] = append(m.bktToRoutes[bktID], rk)
	}
	m.mu.Unlock()

	if b, ok := m.buckets.Get(bktID); ok {
		return b
	}
	b, _ := m.buckets.GetOrSet(bktID, newBucket(bktID, m.clock, m.global, m.log))
	return b
}

// remap installs canonicalBucketID as the bucket backing method+path. If
// the route previously pointed elsewhere, it is detached from the old
// bucket, which is destroyed once no route still points at it.
func (m *bucketManager) remap(method, path, canonicalBucketID string) {
	rk := routeKey(method, path)

	m.mu.Lock()
	oldID, hadRoute := m.routeToBkt[rk]
	if hadRoute && oldID == canonicalBucketID {
		m.mu.Unlock()
		return
	}

	if hadRoute {
		m.detachLocked(oldID, rk)
	}

	m.routeToBkt[rk] = canonicalBucketID
	m.bktToRoutes[canonicalBucketID] = appendUnique(m.bktToRoutes[canonicalBucketID], rk)
	var oldBucketToDestroy *bucket
	if hadRoute && len(m.bktToRoutes[oldID]) == 0 {
		if b, ok := m.buckets.Get(oldID); ok {
			oldBucketToDestroy = b
		}
		m.buckets.Delete(oldID)
	}
	m.mu.Unlock()

	if oldBucketToDestroy != nil {
		oldBucketToDestroy.destroy()
	}

	if _, ok := m.buckets.Get(canonicalBucketID); !ok {
		m.buckets.GetOrSet(canonicalBucketID, newBucket(canonicalBucketID, m.clock, m.global, m.log))
	}
}

func (m *bucketManager) detachLocked(bucketID, rk string) {
	routes := m.bktToRoutes[bucketID]
	for i, r := range routes {
		if r == rk {
			m.bktToRoutes[bucketID] = append(routes[:i], routes[i+1:]...)
			return
		}
	}
}

func appendUnique(s []string, v string) []string {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

// clear destroys every bucket and resets the route index. Used on engine
// shutdown.
func (m *bucketManager) clear() {
	m.mu.Lock()
	m.routeToBkt = make(map[string]string)
	m.bktToRoutes = make(map[string][]string)
	m.mu.Unlock()

	m.buckets.Range(func(_ string, b *bucket) bool {
		b.destroy()
		return true
	})
	m.buckets.Clear()
}

// oldMessageCutoff matches the Service's special-cased bucket for deleting
// messages older than this threshold, which carries a distinct, stricter
// rate limit from deleting recent ones.
const oldMessageCutoff = 14 * 24 * time.Hour

// isOldMessageDelete reports whether a DELETE targets a message older than
// oldMessageCutoff, given the message id embedded at the end of the path.
func isOldMessageDelete(method, path string) bool {
	if method != "DELETE" || !strings.HasPrefix(path, "/channels/") || !strings.Contains(path, "/messages/") {
		return false
	}
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		return false
	}
	id, err := strconv.ParseUint(path[idx+1:], 10, 64)
	if err != nil {
		return false
	}
	return time.Since(Snowflake(id).Timestamp()) > oldMessageCutoff
}
