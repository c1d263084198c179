package metrics

import (
	"log"
	"sync/atomic"
	"time"
)

// Event is one pipeline observation handed to a Sink.
type Event struct {
	Kind       string
	Route      string
	Intent     string
	CacheTier  string
	Model      string
	Tokens     int64
	CostUSD    float64
	DurationMS int64
	Success    bool
	At         time.Time
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Record(ev Event)
}

// Registry keeps the running counters reported on the status endpoint.
// All counters are monotonic within the process lifetime.
type Registry struct {
	classifications    atomic.Int64
	pipelineExecutions atomic.Int64
	pipelineFailures   atomic.Int64
	apiCalls           atomic.Int64
	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
	promptTokens       atomic.Int64
	completionTokens   atomic.Int64
	costMicroUSD       atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) AddClassification() { r.classifications.Add(1) }
func (r *Registry) AddExecution()      { r.pipelineExecutions.Add(1) }
func (r *Registry) AddFailure()        { r.pipelineFailures.Add(1) }
func (r *Registry) AddCacheHit()       { r.cacheHits.Add(1) }
func (r *Registry) AddCacheMiss()      { r.cacheMisses.Add(1) }

func (r *Registry) AddCall(promptTokens, completionTokens int64, costUSD float64) {
	r.apiCalls.Add(1)
	r.promptTokens.Add(promptTokens)
	r.completionTokens.Add(completionTokens)
	r.costMicroUSD.Add(int64(costUSD * 1e6))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Classifications    int64   `json:"classifications"`
	PipelineExecutions int64   `json:"pipeline_executions"`
	PipelineFailures   int64   `json:"pipeline_failures"`
	APICalls           int64   `json:"api_calls"`
	CacheHits          int64   `json:"cache_hits"`
	CacheMisses        int64   `json:"cache_misses"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	PromptTokens       int64   `json:"prompt_tokens"`
	CompletionTokens   int64   `json:"completion_tokens"`
	CostUSD            float64 `json:"cost_usd"`
}

func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Classifications:    r.classifications.Load(),
		PipelineExecutions: r.pipelineExecutions.Load(),
		PipelineFailures:   r.pipelineFailures.Load(),
		APICalls:           r.apiCalls.Load(),
		CacheHits:          r.cacheHits.Load(),
		CacheMisses:        r.cacheMisses.Load(),
		PromptTokens:       r.promptTokens.Load(),
		CompletionTokens:   r.completionTokens.Load(),
		CostUSD:            float64(r.costMicroUSD.Load()) / 1e6,
	}
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(total)
	}
	return s
}

// AsyncSink forwards events to a delegate on its own goroutine. The
// buffer is bounded and full means drop, so a slow delegate can never
// stall the pipeline.
type AsyncSink struct {
	ch      chan Event
	done    chan struct{}
	dropped atomic.Int64
}

func NewAsyncSink(delegate Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for ev := range s.ch {
			delegate.Record(ev)
		}
	}()
	return s
}

func (s *AsyncSink) Record(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close drains the buffer and stops the worker.
func (s *AsyncSink) Close() {
	close(s.ch)
	<-s.done
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Record(ev Event) {
	log.Printf("[Metrics] kind=%s route=%s intent=%s cache=%s model=%s tokens=%d cost=%.6f duration_ms=%d success=%t",
		ev.Kind, ev.Route, ev.Intent, ev.CacheTier, ev.Model, ev.Tokens, ev.CostUSD, ev.DurationMS, ev.Success)
}
