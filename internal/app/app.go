package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"investly/configs"
	"investly/internal/adapter/binance"
	"investly/internal/adapter/openai"
	"investly/internal/domain"
	"investly/internal/infra"
	"investly/internal/repository"
	"investly/internal/service"
	"investly/internal/usecase"
)

// App is the wired service graph shared by the server and the CLI
type App struct {
	Orchestrator *usecase.AssistantOrchestrator
	Dispatcher   *usecase.ToolDispatcher
	Gateway      *service.ExchangeGateway
	StepSizes    *service.StepSizeCache
	Store        domain.MessageArchive
	Metrics      *infra.Metrics

	closers []func()
}

// Build wires every component from cfg. reg may be nil to skip metrics.
func Build(ctx context.Context, cfg *configs.Config, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{}

	exchange, err := binance.NewClient(binance.Config{
		BaseURL:           cfg.Binance.BaseURL,
		APIKey:            cfg.Binance.APIKey,
		APISecret:         cfg.Binance.APISecret,
		RequestsPerSecond: cfg.Binance.RequestsPerSecond,
		Timeout:           cfg.Binance.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange client: %w", err)
	}

	provider, err := openai.NewAssistantClient(openai.Config{
		BaseURL:     cfg.OpenAI.BaseURL,
		APIKey:      cfg.OpenAI.APIKey,
		AssistantID: cfg.OpenAI.AssistantID,
		Timeout:     cfg.OpenAI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant client: %w", err)
	}

	advisor, err := openai.NewAdvisor(ctx, openai.AdvisorConfig{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.AdviceModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create advisor: %w", err)
	}

	if err := a.openStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	var metrics usecase.MetricsRecorder
	if reg != nil {
		a.Metrics = infra.NewMetrics(reg)
		metrics = a.Metrics
	}

	a.StepSizes = service.NewStepSizeCache(exchange)
	a.Gateway = service.NewExchangeGateway(exchange, a.StepSizes, cfg.Binance.QuoteAsset)
	a.Dispatcher = usecase.NewToolDispatcher(a.Gateway, advisor, metrics)
	a.Orchestrator = usecase.NewAssistantOrchestrator(provider, a.Dispatcher, a.Store, OrchestratorConfig(cfg), metrics)

	log.Printf("[OK] Wired %d tools against %s", len(a.Dispatcher.Tools()), cfg.Binance.BaseURL)
	return a, nil
}

// OrchestratorConfig maps the assistant section onto retry budgets
func OrchestratorConfig(cfg *configs.Config) usecase.OrchestratorConfig {
	oc := usecase.DefaultOrchestratorConfig()
	oc.Poll.MaxAttempts = cfg.Assistant.PollAttempts
	oc.Poll.Interval = cfg.Assistant.PollInterval
	if cfg.Assistant.ExtractAttempts > 0 {
		oc.Extract.MaxAttempts = cfg.Assistant.ExtractAttempts
	}
	if cfg.Assistant.ExtractInterval > 0 {
		oc.Extract.Interval = cfg.Assistant.ExtractInterval
	}
	if cfg.Assistant.MaxToolRounds > 0 {
		oc.MaxToolRounds = cfg.Assistant.MaxToolRounds
	}
	if cfg.Assistant.MaxParallel > 0 {
		oc.MaxParallel = cfg.Assistant.MaxParallel
	}
	return oc
}

// TurnTimeout bounds one conversation turn: every provider wait of the turn
// plus a minute for request latency
func TurnTimeout(cfg *configs.Config) time.Duration {
	return OrchestratorConfig(cfg).TurnBudget() + time.Minute
}

func (a *App) openStore(ctx context.Context, cfg *configs.Config) error {
	if cfg.Database.URL != "" {
		pool, err := infra.NewDatabase(ctx, cfg.Database.URL, infra.PoolOptions{MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.Store = repository.NewMessageRepository(pool)
		return nil
	}

	store, err := repository.OpenBoltMessageStore(cfg.Database.BoltPath)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = store.Close() })
	a.Store = store
	log.Printf("[OK] Using BoltDB message store at %s", cfg.Database.BoltPath)
	return nil
}

// Close releases the message store
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
