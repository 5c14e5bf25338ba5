// Command engine is the process entrypoint (§5). Boot sequence mirrors the
// teacher's main.go: load config, wire the exchange client, start the
// Prometheus metrics server, then bring up one Unit per configured symbol
// and block until a termination signal arrives.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chidi150c/perpengine/internal/agent"
	"github.com/chidi150c/perpengine/internal/config"
	"github.com/chidi150c/perpengine/internal/coordinator"
	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/hotloop"
	"github.com/chidi150c/perpengine/internal/llm"
	"github.com/chidi150c/perpengine/internal/logging"
	"github.com/chidi150c/perpengine/internal/marketdata"
	"github.com/chidi150c/perpengine/internal/risk"
	"github.com/chidi150c/perpengine/internal/supervisor"
	"github.com/chidi150c/perpengine/internal/types"
)

// agentRoster is the fixed set of IndependentAgent roles every symbol gets
// (§6). Named, not counted, so adding a role later is a one-line change.
var agentRoster = []agent.Role{
	agent.RoleTechnical,
	agent.RoleStructure,
	agent.RoleMarket,
	agent.RoleSentiment,
	agent.RoleRisk,
	agent.RoleMomentum,
	agent.RoleBull,
	agent.RoleBear,
	agent.RoleFundamentals,
}

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, os.Stdout)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var ex exchange.Client
	if cfg.DryRun {
		ex = exchange.NewPaperClient(0, cfg.InitialEquity)
		log.Info().Msg("running in dry-run mode against the paper exchange client")
	} else {
		ex = exchange.NewRESTClient(cfg.ExchangeBaseURL, cfg.APIKey, cfg.APISecret, cfg.APIPassphrase, log)
	}

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	sup := supervisor.New(log)

	limits := risk.Limits{
		MaxDailyLossPct: cfg.MaxDailyLossPct,
		MinEquity:       cfg.MinBalance,
		MaxDrawdownPct:  cfg.MaxDrawdownPct,
		MaxPositionSize: cfg.MaxPositionSize,
	}

	tradingCfg := types.DefaultTradingConfig()
	tradingCfg.MaxPositionSize = cfg.MaxPositionSize
	tradingCfg.CooldownSeconds = cfg.CooldownSeconds
	tradingCfg.DecayWindow = cfg.AdvisoryDecayWindow

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startPositions, err := supervisor.SyncPositions(ctx, ex, cfg.Symbols)
	if err != nil {
		log.Warn().Err(err).Msg("startup position sync failed, units will start flat")
		startPositions = map[string]types.Position{}
	}

	for _, symbol := range cfg.Symbols {
		feed := marketdata.New(symbol, cfg.ExchangeWSURL, nil, ex, log)

		coord := coordinator.New(symbol, cfg.CoordinatorInterval, tradingCfg, llmClient, ex, log)
		for _, role := range agentRoster {
			name := fmt.Sprintf("%s-%s", symbol, role)
			coord.AddAgent(agent.New(name, role, symbol, cfg.AgentInterval, ex, llmClient, log))
		}

		eng := risk.New(symbol, cfg.InitialEquity, limits)
		loop := hotloop.New(symbol, feed, coord, eng, ex, log)
		if p, ok := startPositions[symbol]; ok {
			loop.SetPosition(p)
		}

		sup.Add(&supervisor.Unit{
			Symbol:      symbol,
			Feed:        feed,
			Coordinator: coord,
			HotLoop:     loop,
			Risk:        eng,
		})
	}

	log.Info().Strs("symbols", cfg.Symbols).Bool("dry_run", cfg.DryRun).Msg("engine starting")
	sup.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info().Msg("engine stopped")
}
