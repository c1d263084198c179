package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Budget    BudgetConfig    `json:"budget"`
	Cache     CacheConfig     `json:"cache"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Validator ValidatorConfig `json:"validator"`
	Ticket    TicketConfig    `json:"ticket"`
	HTTP      HTTPConfig      `json:"http"`
}

type AgentConfig struct {
	Name           string `json:"name"`
	TurnTimeoutSec int    `json:"turn_timeout_sec"`
	SaveRetries    int    `json:"save_retries"`
	DoneStatusName string `json:"done_status_name"`
	MaxInputLength int    `json:"max_input_length"`
}

type ProviderConfig struct {
	APIKey             string  `json:"api_key"`
	BaseURL            string  `json:"base_url"`
	PrimaryModel       string  `json:"primary_model"`
	FastModel          string  `json:"fast_model"`
	EmbeddingModel     string  `json:"embedding_model"`
	MaxTokensPrimary   int     `json:"max_tokens_primary"`
	MaxTokensFast      int     `json:"max_tokens_fast"`
	TimeoutSec         int     `json:"timeout_sec"`
	MaxRetries         int     `json:"max_retries"`
	RetryBaseDelayMS   int     `json:"retry_base_delay_ms"`
	RetryMaxDelayMS    int     `json:"retry_max_delay_ms"`
	BreakerFailures    int     `json:"breaker_failures"`
	BreakerCooldownSec int     `json:"breaker_cooldown_sec"`
	BreakerProbes      int     `json:"breaker_probes"`
	DefaultTemperature float64 `json:"default_temperature"`
}

type BudgetConfig struct {
	MaxDailyCostUSD float64 `json:"max_daily_cost_usd"`
	AlertAtCostUSD  float64 `json:"alert_at_cost_usd"`
}

type CacheConfig struct {
	Enabled             bool    `json:"enabled"`
	MaxSize             int     `json:"max_size"`
	CommentTTLMinutes   int     `json:"comment_ttl_minutes"`
	EmailTTLMinutes     int     `json:"email_ttl_minutes"`
	RoutingTTLMinutes   int     `json:"routing_ttl_minutes"`
	SemanticEnabled     bool    `json:"semantic_enabled"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

type PipelineConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type ValidatorConfig struct {
	QualityThreshold      float64 `json:"quality_threshold"`
	AutoApprovalThreshold float64 `json:"auto_approval_threshold"`
}

type TicketConfig struct {
	BaseURL    string `json:"base_url"`
	APIToken   string `json:"api_token"`
	TimeoutSec int    `json:"timeout_sec"`
}

type HTTPConfig struct {
	Port int `json:"port"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			Name:           "TaskPilot",
			TurnTimeoutSec: 60,
			SaveRetries:    3,
			DoneStatusName: "Done",
			MaxInputLength: 5000,
		},
		Provider: ProviderConfig{
			PrimaryModel:       "gpt-4o",
			FastModel:          "gpt-3.5-turbo-0125",
			EmbeddingModel:     "text-embedding-3-small",
			MaxTokensPrimary:   2000,
			MaxTokensFast:      1000,
			TimeoutSec:         30,
			MaxRetries:         3,
			RetryBaseDelayMS:   500,
			RetryMaxDelayMS:    8000,
			BreakerFailures:    5,
			BreakerCooldownSec: 300,
			BreakerProbes:      1,
			DefaultTemperature: 0.2,
		},
		Budget: BudgetConfig{
			MaxDailyCostUSD: 100.0,
			AlertAtCostUSD:  80.0,
		},
		Cache: CacheConfig{
			Enabled:             true,
			MaxSize:             1000,
			CommentTTLMinutes:   1440,
			EmailTTLMinutes:     1440,
			RoutingTTLMinutes:   60,
			SemanticEnabled:     false,
			SimilarityThreshold: 0.85,
		},
		Pipeline: PipelineConfig{
			ConfidenceThreshold: 0.8,
		},
		Validator: ValidatorConfig{
			QualityThreshold:      0.7,
			AutoApprovalThreshold: 0.8,
		},
		Ticket: TicketConfig{
			TimeoutSec: 15,
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = "TaskPilot"
	}
	if cfg.Agent.TurnTimeoutSec <= 0 {
		cfg.Agent.TurnTimeoutSec = 60
	}
	if cfg.Agent.SaveRetries <= 0 {
		cfg.Agent.SaveRetries = 3
	}
	if strings.TrimSpace(cfg.Agent.DoneStatusName) == "" {
		cfg.Agent.DoneStatusName = "Done"
	}
	if cfg.Agent.MaxInputLength <= 0 {
		cfg.Agent.MaxInputLength = 5000
	}
	if strings.TrimSpace(cfg.Provider.PrimaryModel) == "" {
		cfg.Provider.PrimaryModel = "gpt-4o"
	}
	if strings.TrimSpace(cfg.Provider.FastModel) == "" {
		cfg.Provider.FastModel = "gpt-3.5-turbo-0125"
	}
	if strings.TrimSpace(cfg.Provider.EmbeddingModel) == "" {
		cfg.Provider.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Provider.MaxTokensPrimary <= 0 {
		cfg.Provider.MaxTokensPrimary = 2000
	}
	if cfg.Provider.MaxTokensFast <= 0 {
		cfg.Provider.MaxTokensFast = 1000
	}
	if cfg.Provider.TimeoutSec <= 0 {
		cfg.Provider.TimeoutSec = 30
	}
	if cfg.Provider.MaxRetries < 0 {
		cfg.Provider.MaxRetries = 3
	}
	if cfg.Provider.RetryBaseDelayMS <= 0 {
		cfg.Provider.RetryBaseDelayMS = 500
	}
	if cfg.Provider.RetryMaxDelayMS <= 0 {
		cfg.Provider.RetryMaxDelayMS = 8000
	}
	if cfg.Provider.BreakerFailures <= 0 {
		cfg.Provider.BreakerFailures = 5
	}
	if cfg.Provider.BreakerCooldownSec <= 0 {
		cfg.Provider.BreakerCooldownSec = 300
	}
	if cfg.Provider.BreakerProbes <= 0 {
		cfg.Provider.BreakerProbes = 1
	}
	if cfg.Provider.DefaultTemperature <= 0 || cfg.Provider.DefaultTemperature > 1 {
		cfg.Provider.DefaultTemperature = 0.2
	}
	if cfg.Budget.MaxDailyCostUSD <= 0 {
		cfg.Budget.MaxDailyCostUSD = 100.0
	}
	if cfg.Budget.AlertAtCostUSD <= 0 || cfg.Budget.AlertAtCostUSD > cfg.Budget.MaxDailyCostUSD {
		cfg.Budget.AlertAtCostUSD = cfg.Budget.MaxDailyCostUSD * 0.8
	}
	if cfg.Cache.MaxSize <= 0 {
		cfg.Cache.MaxSize = 1000
	}
	if cfg.Cache.CommentTTLMinutes <= 0 {
		cfg.Cache.CommentTTLMinutes = 1440
	}
	if cfg.Cache.EmailTTLMinutes <= 0 {
		cfg.Cache.EmailTTLMinutes = 1440
	}
	if cfg.Cache.RoutingTTLMinutes <= 0 {
		cfg.Cache.RoutingTTLMinutes = 60
	}
	if cfg.Cache.SimilarityThreshold <= 0 || cfg.Cache.SimilarityThreshold > 1 {
		cfg.Cache.SimilarityThreshold = 0.85
	}
	if cfg.Pipeline.ConfidenceThreshold <= 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		cfg.Pipeline.ConfidenceThreshold = 0.8
	}
	if cfg.Validator.QualityThreshold <= 0 || cfg.Validator.QualityThreshold > 1 {
		cfg.Validator.QualityThreshold = 0.7
	}
	if cfg.Validator.AutoApprovalThreshold <= 0 || cfg.Validator.AutoApprovalThreshold > 1 {
		cfg.Validator.AutoApprovalThreshold = 0.8
	}
	if cfg.Ticket.TimeoutSec <= 0 {
		cfg.Ticket.TimeoutSec = 15
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
}
