package service

import (
	"fmt"
	"testing"

	"github.com/farm-gate/farmgate/internal/domain/tool"
)

func TestDecisionKeyDeterministic(t *testing.T) {
	params := map[string]any{"path": "/ws/x", "mode": "w"}
	k1 := decisionKey("a1", "fs_write", params)
	k2 := decisionKey("a1", "fs_write", map[string]any{"mode": "w", "path": "/ws/x"})
	if k1 != k2 {
		t.Error("key must not depend on map iteration order")
	}

	if decisionKey("a1", "fs_write", params) == decisionKey("a2", "fs_write", params) {
		t.Error("key must separate actors")
	}
	if decisionKey("a1", "fs_write", params) == decisionKey("a1", "fs_read", params) {
		t.Error("key must separate tools")
	}
	if decisionKey("a1", "fs_write", params) == decisionKey("a1", "fs_write", nil) {
		t.Error("key must separate param sets")
	}
}

func TestDecisionCachePutGet(t *testing.T) {
	c := newDecisionCache(10)
	key := decisionKey("a1", "fs_write", nil)

	if _, ok := c.Get(key); ok {
		t.Fatal("Get on empty cache = hit, want miss")
	}
	c.Put(key, cachedDecision{
		violations: []tool.Violation{tool.ViolationPathNotAllowed},
		reason:     "nope",
	})
	d, ok := c.Get(key)
	if !ok {
		t.Fatal("Get after Put = miss, want hit")
	}
	if d.reason != "nope" || len(d.violations) != 1 {
		t.Errorf("cached decision = %+v, want the stored one", d)
	}
}

func TestDecisionCacheEvictsLRU(t *testing.T) {
	c := newDecisionCache(3)
	keys := make([]uint64, 4)
	for i := range keys {
		keys[i] = decisionKey("a1", fmt.Sprintf("tool-%d", i), nil)
	}

	c.Put(keys[0], cachedDecision{reason: "0"})
	c.Put(keys[1], cachedDecision{reason: "1"})
	c.Put(keys[2], cachedDecision{reason: "2"})

	// Touch key 0 so key 1 becomes least recently used.
	c.Get(keys[0])
	c.Put(keys[3], cachedDecision{reason: "3"})

	if _, ok := c.Get(keys[1]); ok {
		t.Error("least recently used entry should have been evicted")
	}
	for _, k := range []uint64{keys[0], keys[2], keys[3]} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %d should have survived eviction", k)
		}
	}
	if c.Size() != 3 {
		t.Errorf("Size = %d, want 3", c.Size())
	}
}

func TestDecisionCacheClear(t *testing.T) {
	c := newDecisionCache(10)
	c.Put(decisionKey("a1", "t", nil), cachedDecision{reason: "x"})
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size after Clear = %d, want 0", c.Size())
	}
	if _, ok := c.Get(decisionKey("a1", "t", nil)); ok {
		t.Error("Get after Clear = hit, want miss")
	}
}

func TestDecisionCacheUpdateExisting(t *testing.T) {
	c := newDecisionCache(10)
	key := decisionKey("a1", "t", nil)
	c.Put(key, cachedDecision{reason: "old"})
	c.Put(key, cachedDecision{reason: "new"})

	d, ok := c.Get(key)
	if !ok || d.reason != "new" {
		t.Errorf("Get = (%+v, %v), want updated decision", d, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}
}
