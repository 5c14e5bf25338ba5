// Package supervisor wires one (MarketDataFeed, LeadCoordinator, HotLoop)
// triple per traded symbol and manages their lifecycle together (§5).
// Grounded on the teacher's main.go boot sequence (sequential per-symbol
// bring-up, signal-driven graceful shutdown) generalized from the
// teacher's single-symbol, single-loop process to many symbols running
// independently.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/perpengine/internal/coordinator"
	"github.com/chidi150c/perpengine/internal/exchange"
	"github.com/chidi150c/perpengine/internal/hotloop"
	"github.com/chidi150c/perpengine/internal/logging"
	"github.com/chidi150c/perpengine/internal/marketdata"
	"github.com/chidi150c/perpengine/internal/risk"
	"github.com/chidi150c/perpengine/internal/types"
)

// staggerDelay is the minimum spacing between two symbols' startups in
// multi-symbol mode (§5), keeping the initial burst of REST/WS dials from
// all landing in the same instant.
const staggerDelay = 5 * time.Second

// Unit is one symbol's wired trio plus the risk engine it shares.
type Unit struct {
	Symbol      string
	Feed        *marketdata.Feed
	Coordinator *coordinator.Coordinator
	HotLoop     *hotloop.HotLoop
	Risk        *risk.Engine
}

// Supervisor owns every symbol's Unit and coordinates startup/shutdown.
type Supervisor struct {
	log   zerolog.Logger
	units []*Unit
}

// New builds an empty Supervisor.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{log: log.With().Str("component", "supervisor").Logger()}
}

// Add registers a Unit. Must be called before Run.
func (s *Supervisor) Add(u *Unit) {
	s.units = append(s.units, u)
}

// Run starts every Unit, staggering symbols after the first by
// staggerDelay, then blocks until ctx is cancelled, logging a heartbeat
// every 5s. On the way out it drains every Unit that was started and stops
// every Unit's risk engine (§5).
func (s *Supervisor) Run(ctx context.Context) {
	started := 0
starting:
	for i, u := range s.units {
		if i > 0 {
			select {
			case <-time.After(staggerDelay):
			case <-ctx.Done():
				break starting
			}
		}
		s.startUnit(ctx, u)
		started++
	}

	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-heartbeat.C:
			logging.Heartbeat(&s.log, "supervisor", map[string]any{"units": started})
		}
	}
	s.log.Info().Msg("shutdown signal received, draining units")
	for i, u := range s.units {
		if i < started {
			u.HotLoop.Stop()
			u.Coordinator.Stop()
			u.Feed.Stop()
		}
		u.Risk.Stop()
	}
}

func (s *Supervisor) startUnit(ctx context.Context, u *Unit) {
	s.log.Info().Str("symbol", u.Symbol).Msg("starting unit")
	u.Feed.Start(ctx)
	u.Coordinator.Start(ctx)
	u.HotLoop.Start(ctx)
}

// SyncPositions queries the exchange once at startup so every Unit's
// HotLoop begins with an authoritative position rather than assuming flat
// (§4.5 step 7 applied at boot, §7 class 3).
func SyncPositions(ctx context.Context, ex exchange.Client, symbols []string) (map[string]types.Position, error) {
	positions, err := ex.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Position, len(symbols))
	for _, sym := range symbols {
		out[sym] = types.Position{Symbol: sym}
	}
	for _, p := range positions {
		if _, want := out[p.Symbol]; !want {
			continue
		}
		out[p.Symbol] = types.Position{
			Symbol:     p.Symbol,
			Side:       p.HoldSide,
			Size:       p.Total,
			EntryPrice: p.AverageOpenPrice,
		}
	}
	return out, nil
}
