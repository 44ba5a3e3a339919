package service

import (
	"encoding/json"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/farm-gate/farmgate/internal/domain/tool"
)

// cachedDecision is a memoized policy outcome for one (actor, tool, params)
// shape. Only deterministic outcomes (deny and clean-allow) are cached;
// handler results never are.
type cachedDecision struct {
	violations []tool.Violation
	reason     string
}

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key      uint64
	decision cachedDecision
	prev     *lruEntry
	next     *lruEntry
}

// decisionCache is a bounded LRU of policy-check outcomes, keyed by an
// xxhash of the evaluation inputs. Thread-safe; both Get and Put mutate
// recency order.
type decisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry
	tail    *lruEntry
	maxSize int
}

func newDecisionCache(maxSize int) *decisionCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &decisionCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// decisionKey hashes the inputs that determine a policy outcome.
func decisionKey(actorID, toolName string, params map[string]any) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(actorID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(toolName)
	_, _ = h.Write([]byte{0})
	if len(params) > 0 {
		// JSON marshalling of a map is key-sorted, so this is deterministic.
		raw, _ := json.Marshal(params)
		_, _ = h.Write(raw)
	}
	return h.Sum64()
}

func (c *decisionCache) Get(key uint64) (cachedDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.decision, true
	}
	return cachedDecision{}, false
}

func (c *decisionCache) Put(key uint64, d cachedDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.decision = d
		c.moveToHeadLocked(e)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}
	e := &lruEntry{key: key, decision: d}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Clear empties the cache. Called whenever policy configuration changes.
func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

func (c *decisionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *decisionCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *decisionCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *decisionCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *decisionCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}
