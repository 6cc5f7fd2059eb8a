// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_SetThenGetRoundTrips(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = %q, %v, %v", val, ok, err)
	}
	if string(val) != "v" {
		t.Errorf("Get value = %q, want v", val)
	}
}

func TestMemoryCache_GetMissingKeyIsCleanMiss(t *testing.T) {
	c := NewMemoryCache()
	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil || ok {
		t.Errorf("Get on absent key = ok=%v err=%v, want clean miss", ok, err)
	}
}

func TestMemoryCache_ExpiredEntryIsReapedOnGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, ok, err := c.Get(ctx, "k")
	if err != nil || ok {
		t.Errorf("Get on expired key = ok=%v err=%v, want clean miss", ok, err)
	}
	c.mu.RLock()
	_, stillPresent := c.data["k"]
	c.mu.RUnlock()
	if stillPresent {
		t.Error("expired entry should have been reaped from the map")
	}
}

func TestMemoryCache_DeleteRemovesKey(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, _ := c.Get(ctx, "k")
	if ok {
		t.Error("want a miss after Delete")
	}
}

func TestMemoryCache_DeleteByPrefixRemovesOnlyMatching(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "activity:stats:proj-1", []byte("a"), time.Minute)
	_ = c.Set(ctx, "activity:stats:proj-2", []byte("b"), time.Minute)
	_ = c.Set(ctx, "workflow:enabled:proj-1", []byte("c"), time.Minute)

	if err := c.DeleteByPrefix(ctx, "activity:stats:"); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "activity:stats:proj-1"); ok {
		t.Error("prefixed key should have been deleted")
	}
	if _, ok, _ := c.Get(ctx, "activity:stats:proj-2"); ok {
		t.Error("prefixed key should have been deleted")
	}
	if _, ok, _ := c.Get(ctx, "workflow:enabled:proj-1"); !ok {
		t.Error("non-matching key should have survived")
	}
}
