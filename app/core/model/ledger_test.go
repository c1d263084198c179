package model

import (
	"math"
	"testing"
)

func TestLedgerCostUsesPricingTable(t *testing.T) {
	l := NewLedger()

	cost := l.Cost("gpt-4o", 1000, 1000)
	want := 0.0025 + 0.01
	if math.Abs(cost-want) > 1e-9 {
		t.Fatalf("cost = %f, want %f", cost, want)
	}

	// unknown models fall back to the most expensive rates
	unknown := l.Cost("mystery-model", 1000, 1000)
	if math.Abs(unknown-want) > 1e-9 {
		t.Fatalf("unknown model cost = %f, want %f", unknown, want)
	}
}

func TestLedgerReserveRejectsOverBudget(t *testing.T) {
	l := NewLedger()
	l.Record("gpt-4o", 1_000_000, 1_000_000) // 12.5 USD spent

	total, allowed := l.Reserve(1.0, 13.0)
	if allowed {
		t.Fatalf("reserve allowed with total %f exceeding limit", total)
	}

	if _, allowed := l.Reserve(0.25, 13.0); !allowed {
		t.Fatal("reserve rejected a call that fits the budget")
	}
}

func TestLedgerRecordAccumulatesPerModel(t *testing.T) {
	l := NewLedger()
	l.Record("gpt-4o", 1000, 0)
	l.Record("gpt-4o", 1000, 0)
	l.Record("gpt-3.5-turbo-0125", 2000, 0)

	total, byModel := l.Today()
	if len(byModel) != 2 {
		t.Fatalf("byModel has %d entries, want 2", len(byModel))
	}
	if math.Abs(byModel["gpt-4o"]-0.005) > 1e-9 {
		t.Fatalf("gpt-4o spend = %f, want 0.005", byModel["gpt-4o"])
	}
	if total <= 0 {
		t.Fatalf("total = %f, want > 0", total)
	}
}
