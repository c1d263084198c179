package model

import (
	"context"
	"fmt"
	"log"
	"time"
)

// InvokerConfig collects the retry and budget knobs.
type InvokerConfig struct {
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	MaxDailyCostUSD float64
	AlertCostUSD    float64
}

// Invoker wraps the provider with the circuit breaker, the daily cost
// ledger and bounded retries. All model traffic goes through Invoke.
type Invoker struct {
	provider Provider
	ledger   *Ledger
	breaker  *Breaker
	cfg      InvokerConfig

	// onCall, when set, is notified after every successful upstream
	// completion with the booked cost.
	onCall func(model string, promptTokens, completionTokens int64, costUSD float64)

	sleep func(ctx context.Context, d time.Duration) error
}

func NewInvoker(provider Provider, ledger *Ledger, breaker *Breaker, cfg InvokerConfig) *Invoker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 8 * time.Second
	}
	return &Invoker{
		provider: provider,
		ledger:   ledger,
		breaker:  breaker,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// SetCallHook installs the per-call notification used for metrics.
func (iv *Invoker) SetCallHook(fn func(model string, promptTokens, completionTokens int64, costUSD float64)) {
	iv.onCall = fn
}

// Invoke runs one completion under all the guards. Cost and breaker
// rejections fail fast without touching the provider.
func (iv *Invoker) Invoke(ctx context.Context, p Params) (Completion, error) {
	ok, probe := iv.breaker.Allow()
	if !ok {
		return Completion{}, fmt.Errorf("%w: circuit breaker is open", ErrServiceUnavailable)
	}

	estimate := iv.ledger.Cost(p.Model, estimateTokens(p.System)+estimateTokens(p.User), p.MaxTokens)
	if total, allowed := iv.ledger.Reserve(estimate, iv.cfg.MaxDailyCostUSD); !allowed {
		iv.breaker.Release()
		return Completion{}, fmt.Errorf("%w: daily spend %.4f USD, estimated call %.4f USD, limit %.2f USD",
			ErrCostLimitExceeded, total, estimate, iv.cfg.MaxDailyCostUSD)
	}

	// A half-open probe gets exactly one upstream call; its outcome
	// alone decides whether the breaker closes or re-opens.
	maxRetries := iv.cfg.MaxRetries
	if probe {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(iv.cfg.RetryBaseDelay, iv.cfg.RetryMaxDelay, attempt)
			if err := iv.sleep(ctx, delay); err != nil {
				iv.breaker.Failure()
				return Completion{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
			}
		}

		comp, err := iv.provider.Complete(ctx, p)
		if err == nil {
			iv.breaker.Success()
			cost := iv.ledger.Record(p.Model, comp.PromptTokens, comp.CompletionTokens)
			if total, _ := iv.ledger.Today(); iv.cfg.AlertCostUSD > 0 && total >= iv.cfg.AlertCostUSD {
				log.Printf("[Invoker] daily cost %.4f USD crossed alert threshold %.2f USD", total, iv.cfg.AlertCostUSD)
			}
			if iv.onCall != nil {
				iv.onCall(p.Model, comp.PromptTokens, comp.CompletionTokens, cost)
			}
			return comp, nil
		}

		lastErr = err
		if !Retryable(err) {
			iv.breaker.Failure()
			return Completion{}, err
		}
		log.Printf("[Invoker] attempt %d/%d against %s failed: %v", attempt+1, maxRetries+1, p.Model, err)
	}

	iv.breaker.Failure()
	return Completion{}, fmt.Errorf("model call exhausted %d retries: %w", maxRetries, lastErr)
}

// estimateTokens is the rough chars/4 heuristic used only for the
// pre-call budget check. Actual booking uses reported usage.
func estimateTokens(s string) int64 {
	return int64(len(s)/4) + 1
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base << uint(attempt-1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
