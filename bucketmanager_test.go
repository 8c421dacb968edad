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
	"testing"
	"time"
)

func TestRouteKey_Table(t *testing.T) {
	oldMessageID := "1363358614089371648"
	newMessageID := Snowflake(uint64(time.Now().UnixMilli()-serviceEpoch)<<22 + 1).String()

	hasSuffix := func(s, suffix string) bool {
		return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
	}

	cases := []struct {
		name       string
		method     string
		path       string
		wantOldTag bool
	}{
		{"old message delete", "DELETE", "/channels/123456789012345678/messages/" + oldMessageID, true},
		{"new message delete", "DELETE", "/channels/123456789012345678/messages/" + newMessageID, false},
		{"interaction callback", "POST", "/interactions/987654321098765432/abcdef/callback", false},
		{"webhook with token", "POST", "/webhooks/123456789012345678/abcdef1234567890", false},
		{"reaction add", "PUT", "/channels/123456789012345678/messages/234567890123456789/reactions/XXXXXXX/@me", false},
		{"route without ids", "GET", "/gateway/bot", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			key := routeKey(c.method, c.path)
			if got := hasSuffix(key, "/oldmessage"); got != c.wantOldTag {
				t.Fatalf("routeKey(%q, %q) = %q, old-message suffix present=%v, want %v", c.method, c.path, key, got, c.wantOldTag)
			}
		})
	}
}

func TestRouteKey_Idempotent(t *testing.T) {
	paths := []struct{ method, path string }{
		{"GET", "/channels/123456789012345678/messages/234567890123456789"},
		{"PATCH", "/guilds/987654321098765432/members/123456789012345678"},
		{"POST", "/webhooks/123456789012345678/abcdef1234567890"},
	}
	for _, p := range paths {
		k1 := routeKey(p.method, p.path)
		k2 := routeKey(p.method, p.path)
		if k1 != k2 {
			t.Fatalf("routeKey is not deterministic: %q != %q", k1, k2)
		}
	}
}

func TestRouteKey_SnowflakesCollapseAcrossMajorParams(t *testing.T) {
	k1 := routeKey("GET", "/channels/111111111111111111/messages/222222222222222222")
	k2 := routeKey("GET", "/channels/333333333333333333/messages/444444444444444444")
	if k1 != k2 {
		t.Fatalf("routes differing only in snowflake-shaped segments must collapse to the same key: %q != %q", k1, k2)
	}
}

func TestBucketManager_BucketForReusesSameBucket(t *testing.T) {
	m := newBucketManager(realClock{}, nil)
	defer m.clear()

	b1 := m.bucketFor("GET", "/channels/111111111111111111/messages/222222222222222222")
	b2 := m.bucketFor("GET", "/channels/111111111111111111/messages/333333333333333333")
	if b1 != b2 {
		t.Fatal("same route key should resolve to the same bucket instance")
	}
}

func TestBucketManager_RemapConverges(t *testing.T) {
	m := newBucketManager(realClock{}, nil)
	defer m.clear()

	routeA := struct{ method, path string }{"GET", "/channels/111111111111111111/messages/222222222222222222"}
	routeB := struct{ method, path string }{"PATCH", "/guilds/333333333333333333/members/444444444444444444"}

	ba := m.bucketFor(routeA.method, routeA.path)
	bb := m.bucketFor(routeB.method, routeB.path)
	if ba == bb {
		t.Fatal("structurally distinct routes should start on distinct buckets")
	}

	const canonical = "shared-canonical-bucket"
	m.remap(routeA.method, routeA.path, canonical)
	m.remap(routeB.method, routeB.path, canonical)

	ra := m.bucketFor(routeA.method, routeA.path)
	rb := m.bucketFor(routeB.method, routeB.path)
	if ra != rb {
		t.Fatal("both routes should converge onto the canonical bucket after remap")
	}
	if ra.id != canonical {
		t.Fatalf("expected bucket id %q, got %q", canonical, ra.id)
	}
}

func TestBucketManager_RemapDestroysOrphanedBucket(t *testing.T) {
	m := newBucketManager(realClock{}, nil)
	defer m.clear()

	route := struct{ method, path string }{"GET", "/channels/111111111111111111/messages/222222222222222222"}
	orphan := m.bucketFor(route.method, route.path)

	m.remap(route.method, route.path, "new-canonical-id")

	select {
	case <-orphan.destroyed:
	case <-time.After(time.Second):
		t.Fatal("old bucket should be destroyed once no route still points at it")
	}
}

func TestIsOldMessageDelete(t *testing.T) {
	oldID := "1363358614089371648"
	newID := Snowflake(uint64(time.Now().UnixMilli()-serviceEpoch)<<22 + 1).String()

	if !isOldMessageDelete("DELETE", "/channels/111111111111111111/messages/"+oldID) {
		t.Fatal("expected old message id to be classified as an old-message delete")
	}
	if isOldMessageDelete("DELETE", "/channels/111111111111111111/messages/"+newID) {
		t.Fatal("expected fresh message id not to be classified as an old-message delete")
	}
	if isOldMessageDelete("GET", "/channels/111111111111111111/messages/"+oldID) {
		t.Fatal("non-DELETE methods are never old-message deletes")
	}
}
