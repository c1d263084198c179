package cache

import (
	"container/list"
	"crypto/md5"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is one cached generation result.
type Entry struct {
	Content   string
	CreatedAt time.Time
	ExpiresAt time.Time
	Hits      int
}

// Stats is a point-in-time snapshot of exact-tier counters.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type exactItem struct {
	key   string
	entry Entry
}

// Exact is a mutex-guarded LRU cache with per-entry TTL. Safe for
// concurrent use from many sessions.
type Exact struct {
	mu        sync.Mutex
	maxSize   int
	ll        *list.List
	items     map[string]*list.Element
	hits      uint64
	misses    uint64
	evictions uint64
}

func NewExact(maxSize int) *Exact {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Exact{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}
}

func (c *Exact) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}
	item := elem.Value.(*exactItem)
	if time.Now().After(item.entry.ExpiresAt) {
		c.removeLocked(elem)
		c.misses++
		return Entry{}, false
	}
	c.ll.MoveToFront(elem)
	item.entry.Hits++
	c.hits++
	return item.entry, true
}

func (c *Exact) Set(key string, content string, ttl time.Duration) {
	now := time.Now()
	entry := Entry{
		Content:   content,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*exactItem).entry = entry
		c.ll.MoveToFront(elem)
		return
	}
	for c.ll.Len() >= c.maxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
	c.items[key] = c.ll.PushFront(&exactItem{key: key, entry: entry})
}

func (c *Exact) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

func (c *Exact) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := c.ll.Len()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	return count
}

// Sweep drops expired entries and returns how many were removed. Safe to
// run concurrently with in-flight requests and idempotent.
func (c *Exact) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for elem := c.ll.Back(); elem != nil; {
		prev := elem.Prev()
		if now.After(elem.Value.(*exactItem).entry.ExpiresAt) {
			c.removeLocked(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

func (c *Exact) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:      c.ll.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   rate,
	}
}

func (c *Exact) removeLocked(elem *list.Element) {
	item := elem.Value.(*exactItem)
	c.ll.Remove(elem)
	delete(c.items, item.key)
}

// Key builds a deterministic cache key from a kind prefix and normalized
// content. Only the first 200 characters participate, matching the prompt
// prefix that dominates similarity anyway.
func Key(kind string, content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if len(normalized) > 200 {
		normalized = normalized[:200]
	}
	sum := md5.Sum([]byte(kind + ":" + normalized))
	return fmt.Sprintf("%s:%x", kind, sum[:8])
}
