package bot

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// MatchConfig describes one headless bot-only match.
type MatchConfig struct {
	Seed       int64
	Radius     int               // 0 keeps the default map size
	Strategies map[string]string // nation id -> strategy name
	Rules      *conquest.Rules   // nil uses conquest.DefaultRules
}

// MatchResult summarises a finished match.
type MatchResult struct {
	MatchID int64
	Seed    int64
	Winner  string
	Turns   int
	Battles int
}

// Recorder receives the turns of a match as they resolve.
type Recorder interface {
	StartMatch(seed int64, nations []string) (int64, error)
	SaveTurn(matchID int64, result *conquest.TurnResult, state *conquest.GameState) error
	FinishMatch(matchID int64, turns int, winner string) error
}

// RunMatch plays a match between bots in memory until the game ends or ctx
// is cancelled. rec may be nil.
func RunMatch(ctx context.Context, cfg MatchConfig, rec Recorder) (*MatchResult, error) {
	if len(cfg.Strategies) < 2 {
		return nil, fmt.Errorf("a match needs at least two nations, got %d", len(cfg.Strategies))
	}
	nations := make([]string, 0, len(cfg.Strategies))
	for id := range cfg.Strategies {
		nations = append(nations, id)
	}
	sort.Strings(nations)

	specs := make([]conquest.NationSpec, len(nations))
	strategies := make(map[string]Strategy, len(nations))
	for i, id := range nations {
		specs[i] = conquest.NationSpec{ID: id, Name: id}
		strategies[id] = StrategyFor(cfg.Strategies[id])
	}
	opts := conquest.DefaultMapOptions(cfg.Seed, specs)
	if cfg.Radius > 0 {
		opts.Radius = cfg.Radius
	}
	opts.Rules = cfg.Rules
	gs := conquest.GenerateMap(opts)

	out := &MatchResult{Seed: cfg.Seed}
	if rec != nil {
		id, err := rec.StartMatch(cfg.Seed, nations)
		if err != nil {
			return nil, fmt.Errorf("start match: %w", err)
		}
		out.MatchID = id
	}

	for !gs.Ended {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var intents []conquest.Intent
		for _, nation := range nations {
			if n := gs.Nations[nation]; n == nil || n.Eliminated {
				continue
			}
			rng := NewRng(cfg.Seed, gs.Turn, nation)
			for _, in := range strategies[nation].GenerateIntents(gs.Clone(), nation, rng) {
				in.ID = uuid.NewString()
				in.Player = nation
				intents = append(intents, in)
			}
		}

		res := conquest.ResolveTurn(ctx, gs, intents, conquest.ResolveOptions{})
		out.Turns++
		out.Battles += len(res.Battles)
		if rec != nil {
			if err := rec.SaveTurn(out.MatchID, res, gs); err != nil {
				return out, fmt.Errorf("save turn %d: %w", res.Turn, err)
			}
		}
		log.Debug().Int64("seed", cfg.Seed).Int("turn", res.Turn).Int("intents", len(intents)).
			Int("battles", len(res.Battles)).Msg("Simulated turn")
	}

	out.Winner = gs.Winner
	if rec != nil {
		if err := rec.FinishMatch(out.MatchID, out.Turns, out.Winner); err != nil {
			return out, fmt.Errorf("finish match: %w", err)
		}
	}
	return out, nil
}
