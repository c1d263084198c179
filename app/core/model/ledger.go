package model

import (
	"sync"
	"time"
)

// Pricing is USD per 1K tokens for one model.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

var defaultPricing = map[string]Pricing{
	"gpt-4o":                 {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-3.5-turbo-0125":     {InputPer1K: 0.0005, OutputPer1K: 0.0015},
	"text-embedding-3-small": {InputPer1K: 0.00002, OutputPer1K: 0},
}

// fallback pricing for models missing from the table; priced like the
// primary model so unknown models never undercount spend
var fallbackPricing = Pricing{InputPer1K: 0.0025, OutputPer1K: 0.01}

// Ledger tracks accumulated completion spend for the current UTC day,
// per model. Injected into the invoker; never a package global.
type Ledger struct {
	mu      sync.Mutex
	pricing map[string]Pricing
	day     string
	byModel map[string]float64
	total   float64
}

func NewLedger() *Ledger {
	return &Ledger{
		pricing: defaultPricing,
		day:     utcDay(time.Now()),
		byModel: make(map[string]float64),
	}
}

// Cost computes the USD price of a call.
func (l *Ledger) Cost(modelName string, promptTokens int64, completionTokens int64) float64 {
	p, ok := l.pricing[modelName]
	if !ok {
		p = fallbackPricing
	}
	return float64(promptTokens)/1000*p.InputPer1K + float64(completionTokens)/1000*p.OutputPer1K
}

// Reserve checks whether estimated additional spend fits today's limit.
// It does not book anything; Record books actual usage after the call.
// Returns the running total and whether the call may proceed.
func (l *Ledger) Reserve(estimatedUSD float64, dailyLimitUSD float64) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(time.Now())

	if l.total+estimatedUSD > dailyLimitUSD {
		return l.total, false
	}
	return l.total, true
}

// Record books the real cost of a completed call.
func (l *Ledger) Record(modelName string, promptTokens int64, completionTokens int64) float64 {
	cost := l.Cost(modelName, promptTokens, completionTokens)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(time.Now())
	l.byModel[modelName] += cost
	l.total += cost
	return cost
}

// Today returns the running total and per-model breakdown for the
// current UTC day.
func (l *Ledger) Today() (float64, map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked(time.Now())

	byModel := make(map[string]float64, len(l.byModel))
	for k, v := range l.byModel {
		byModel[k] = v
	}
	return l.total, byModel
}

// Rollover resets the ledger when the UTC day has changed. Idempotent;
// also runs lazily inside every other method, so the periodic job is a
// safety net rather than a requirement.
func (l *Ledger) Rollover() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rolloverLocked(time.Now())
}

func (l *Ledger) rolloverLocked(now time.Time) bool {
	day := utcDay(now)
	if day == l.day {
		return false
	}
	l.day = day
	l.byModel = make(map[string]float64)
	l.total = 0
	return true
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
