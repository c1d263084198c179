package cache

import (
	"context"
	"time"
)

// Lookup tiers reported in response metadata.
const (
	TierExact    = "exact"
	TierSemantic = "semantic"
)

// Layer is the two-tier cache consulted before any model call: exact
// hash match first, then (when enabled) embedding similarity.
type Layer struct {
	enabled bool
	exact   *Exact
	sem     *Semantic
}

func NewLayer(enabled bool, exact *Exact, sem *Semantic) *Layer {
	return &Layer{enabled: enabled, exact: exact, sem: sem}
}

func (l *Layer) Enabled() bool {
	return l != nil && l.enabled
}

// Lookup checks both tiers in order. Returns the cached content and the
// tier that answered.
func (l *Layer) Lookup(ctx context.Context, kind string, text string) (string, string, bool) {
	if !l.Enabled() {
		return "", "", false
	}
	if entry, ok := l.exact.Get(Key(kind, text)); ok {
		return entry.Content, TierExact, true
	}
	if l.sem != nil {
		if content, ok := l.sem.Lookup(ctx, kind, text); ok {
			return content, TierSemantic, true
		}
	}
	return "", "", false
}

// Store writes the result to both tiers. Concurrent misses for the same
// prompt may each call the model and both store; last writer wins, which
// is acceptable for this cache.
func (l *Layer) Store(ctx context.Context, kind string, text string, content string, ttl time.Duration) {
	if !l.Enabled() {
		return
	}
	l.exact.Set(Key(kind, text), content, ttl)
	if l.sem != nil {
		if err := l.sem.Store(ctx, kind, text, content, ttl); err != nil {
			// exact tier already holds the entry; semantic indexing is best effort
			return
		}
	}
}

// Sweep runs TTL eviction across both tiers.
func (l *Layer) Sweep(ctx context.Context) int {
	if !l.Enabled() {
		return 0
	}
	removed := l.exact.Sweep()
	if l.sem != nil {
		removed += l.sem.Sweep(ctx)
	}
	return removed
}

func (l *Layer) Clear() {
	if !l.Enabled() {
		return
	}
	l.exact.Clear()
}

func (l *Layer) Stats() Stats {
	if !l.Enabled() {
		return Stats{}
	}
	return l.exact.Stats()
}
