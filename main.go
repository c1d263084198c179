package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "taskpilot/app/configs"
	"taskpilot/app/core/agent"
	"taskpilot/app/core/cache"
	"taskpilot/app/core/classify"
	"taskpilot/app/core/generate"
	httpserver "taskpilot/app/core/interaction/http"
	"taskpilot/app/core/metrics"
	"taskpilot/app/core/model"
	"taskpilot/app/core/pipeline"
	"taskpilot/app/core/scheduler"
	"taskpilot/app/core/session"
	"taskpilot/app/core/ticket"
	"taskpilot/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("TaskPilot starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	apiKey := cfg.Provider.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	database, err := session.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	sessionStore := session.NewStore(database)

	provider := model.NewOpenAIProvider(apiKey, cfg.Provider.BaseURL, time.Duration(cfg.Provider.TimeoutSec)*time.Second)
	ledger := model.NewLedger()
	breaker := model.NewBreaker(
		cfg.Provider.BreakerFailures,
		time.Duration(cfg.Provider.BreakerCooldownSec)*time.Second,
		cfg.Provider.BreakerProbes,
	)
	invoker := model.NewInvoker(provider, ledger, breaker, model.InvokerConfig{
		MaxRetries:      cfg.Provider.MaxRetries,
		RetryBaseDelay:  time.Duration(cfg.Provider.RetryBaseDelayMS) * time.Millisecond,
		RetryMaxDelay:   time.Duration(cfg.Provider.RetryMaxDelayMS) * time.Millisecond,
		MaxDailyCostUSD: cfg.Budget.MaxDailyCostUSD,
		AlertCostUSD:    cfg.Budget.AlertAtCostUSD,
	})

	registry := metrics.NewRegistry()
	invoker.SetCallHook(func(_ string, promptTokens, completionTokens int64, costUSD float64) {
		registry.AddCall(promptTokens, completionTokens, costUSD)
	})
	sink := metrics.NewAsyncSink(metrics.LogSink{}, 256)
	defer sink.Close()

	exactCache := cache.NewExact(cfg.Cache.MaxSize)
	var semanticCache *cache.Semantic
	if cfg.Cache.SemanticEnabled {
		semanticCache, err = cache.NewSemantic(provider.EmbeddingFunc(cfg.Provider.EmbeddingModel), cfg.Cache.SimilarityThreshold)
		if err != nil {
			logger.Error("Failed to initialize semantic cache: %v", err)
			os.Exit(1)
		}
		logger.Info("Semantic cache enabled (threshold %.2f)", cfg.Cache.SimilarityThreshold)
	}
	cacheLayer := cache.NewLayer(cfg.Cache.Enabled, exactCache, semanticCache)

	generator := generate.New(invoker, cacheLayer, generate.Config{
		PrimaryModel:     cfg.Provider.PrimaryModel,
		FastModel:        cfg.Provider.FastModel,
		MaxTokensPrimary: int64(cfg.Provider.MaxTokensPrimary),
		MaxTokensFast:    int64(cfg.Provider.MaxTokensFast),
		Temperature:      cfg.Provider.DefaultTemperature,
		CommentTTL:       time.Duration(cfg.Cache.CommentTTLMinutes) * time.Minute,
		EmailTTL:         time.Duration(cfg.Cache.EmailTTLMinutes) * time.Minute,
		RoutingTTL:       time.Duration(cfg.Cache.RoutingTTLMinutes) * time.Minute,
	})

	classifier := classify.New(cfg.Agent.MaxInputLength)
	validator := generate.NewValidator(cfg.Validator.QualityThreshold, cfg.Validator.AutoApprovalThreshold)
	pipe := pipeline.New(classifier, generator, validator, registry, sink,
		cfg.Pipeline.ConfidenceThreshold, cfg.Agent.MaxInputLength)

	tickets := ticket.NewClient(cfg.Ticket.BaseURL, cfg.Ticket.APIToken, time.Duration(cfg.Ticket.TimeoutSec)*time.Second)
	conv := agent.New(pipe, tickets, sessionStore, agent.Config{
		TurnTimeout:    time.Duration(cfg.Agent.TurnTimeoutSec) * time.Second,
		SaveRetries:    cfg.Agent.SaveRetries,
		DoneStatusName: cfg.Agent.DoneStatusName,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobScheduler := scheduler.New()
	mustRegister := func(job scheduler.JobSpec) {
		if err := jobScheduler.Register(job); err != nil {
			logger.Error("Failed to register job %s: %v", job.Name, err)
			os.Exit(1)
		}
	}
	mustRegister(scheduler.JobSpec{
		Name:     "cache_sweep",
		Interval: 10 * time.Minute,
		Timeout:  time.Minute,
		Run: func(jobCtx context.Context) error {
			removed := cacheLayer.Sweep(jobCtx)
			if removed > 0 {
				logger.Info("Cache sweep removed %d expired entries", removed)
			}
			return nil
		},
	})
	mustRegister(scheduler.JobSpec{
		Name:     "ledger_rollover",
		Interval: time.Hour,
		Run: func(context.Context) error {
			ledger.Rollover()
			return nil
		},
	})
	if err := jobScheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := jobScheduler.Stop(3 * time.Second); err != nil {
			logger.Error("Scheduler stop: %v", err)
		}
	}()

	server := httpserver.NewServer(cfg.HTTP.Port, pipe, conv)
	server.SetStatusProvider(func(context.Context) map[string]interface{} {
		totalCost, byModel := ledger.Today()
		return map[string]interface{}{
			"metrics":         registry.Snapshot(),
			"cache":           cacheLayer.Stats(),
			"breaker":         breaker.State(),
			"daily_cost_usd":  totalCost,
			"cost_by_model":   byModel,
			"jobs":            jobScheduler.Snapshot(),
			"dropped_metrics": sink.Dropped(),
		}
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal %v, shutting down...", sig)
		cancel()
		<-serverErr
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server: %v", err)
			os.Exit(1)
		}
	}
	logger.Info("TaskPilot stopped")
}
