package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Provider.PrimaryModel != "gpt-4o" {
		t.Fatalf("primary model = %s", cfg.Provider.PrimaryModel)
	}
	if cfg.Agent.DoneStatusName != "Done" {
		t.Fatalf("done status = %s", cfg.Agent.DoneStatusName)
	}
	if cfg.Budget.MaxDailyCostUSD != 100.0 {
		t.Fatalf("daily limit = %f", cfg.Budget.MaxDailyCostUSD)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestManagerLoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"provider": {"primary_model": "gpt-4o-mini"}, "http": {"port": 9090}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Provider.PrimaryModel != "gpt-4o-mini" {
		t.Fatalf("primary model = %s, want value from file", cfg.Provider.PrimaryModel)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.HTTP.Port)
	}
	// omitted fields get defaults
	if cfg.Provider.FastModel != "gpt-3.5-turbo-0125" {
		t.Fatalf("fast model = %s", cfg.Provider.FastModel)
	}
	if cfg.Cache.MaxSize != 1000 {
		t.Fatalf("cache max size = %d", cfg.Cache.MaxSize)
	}
}

func TestManagerUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	updated, err := mgr.Update(func(cfg *Config) {
		cfg.Budget.MaxDailyCostUSD = 50
		cfg.Budget.AlertAtCostUSD = 0 // forced back to a default
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Budget.MaxDailyCostUSD != 50 {
		t.Fatalf("limit = %f", updated.Budget.MaxDailyCostUSD)
	}
	if updated.Budget.AlertAtCostUSD != 40 {
		t.Fatalf("alert = %f, want 80%% of the limit", updated.Budget.AlertAtCostUSD)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Get().Budget.MaxDailyCostUSD != 50 {
		t.Fatal("update not persisted")
	}
}

func TestAlertThresholdClampedToLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.Budget.MaxDailyCostUSD = 10
	cfg.Budget.AlertAtCostUSD = 99
	applyDefaults(&cfg)
	if cfg.Budget.AlertAtCostUSD != 8 {
		t.Fatalf("alert = %f, want clamped to 8", cfg.Budget.AlertAtCostUSD)
	}
}
