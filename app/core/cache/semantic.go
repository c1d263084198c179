package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"taskpilot/app/pkg/logger"
)

// Semantic is the similarity tier: prompts are indexed as embedding
// vectors and a lookup hits when the nearest stored prompt is at least
// the configured cosine similarity. Entry payloads and expiry live in a
// side map keyed by document id; chromem holds only the vectors.
type Semantic struct {
	mu        sync.Mutex
	col       *chromem.Collection
	threshold float32
	entries   map[string]Entry
	counter   uint64
}

func NewSemantic(embed chromem.EmbeddingFunc, threshold float64) (*Semantic, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection("generation_cache", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create semantic cache collection: %w", err)
	}
	return &Semantic{
		col:       col,
		threshold: float32(threshold),
		entries:   make(map[string]Entry),
	}, nil
}

func (s *Semantic) Lookup(ctx context.Context, kind string, text string) (string, bool) {
	if s.col.Count() == 0 {
		return "", false
	}
	results, err := s.col.Query(ctx, text, 1, map[string]string{"kind": kind}, nil)
	if err != nil {
		logger.Error("Semantic cache query failed: %v", err)
		return "", false
	}
	if len(results) == 0 || results[0].Similarity < s.threshold {
		return "", false
	}

	id := results[0].ID
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok || time.Now().After(entry.ExpiresAt) {
		// drop the stale vector now so it stops shadowing fresher
		// neighbors until the next sweep
		delete(s.entries, id)
		s.mu.Unlock()
		if err := s.col.Delete(ctx, nil, nil, id); err != nil {
			logger.Error("Semantic cache vector delete failed: %v", err)
		}
		return "", false
	}
	entry.Hits++
	s.entries[id] = entry
	s.mu.Unlock()
	return entry.Content, true
}

func (s *Semantic) Store(ctx context.Context, kind string, text string, content string, ttl time.Duration) error {
	id := fmt.Sprintf("%s-%d", kind, atomic.AddUint64(&s.counter, 1))
	err := s.col.AddDocument(ctx, chromem.Document{
		ID:      id,
		Content: text,
		Metadata: map[string]string{
			"kind": kind,
		},
	})
	if err != nil {
		return fmt.Errorf("index semantic cache entry: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	s.entries[id] = Entry{
		Content:   content,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

// Sweep drops expired entries from the side map and their vectors from
// the collection. Idempotent.
func (s *Semantic) Sweep(ctx context.Context) int {
	now := time.Now()

	s.mu.Lock()
	var expired []string
	for id, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if len(expired) > 0 {
		if err := s.col.Delete(ctx, nil, nil, expired...); err != nil {
			logger.Error("Semantic cache vector delete failed: %v", err)
		}
	}
	return len(expired)
}

func (s *Semantic) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
