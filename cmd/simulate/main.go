package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/bot"
	"github.com/freeeve/hex-conquest/api/internal/repository/sqlite"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

var nationIDs = []string{"aurel", "brask", "corvan", "dravia", "elund", "ferox"}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		strategyCfg string
		nations     int
		numMatches  int
		workers     int
		radius      int
		maxTurns    int
		seed        int64
		dbPath      string
		jsonOut     bool
		verbose     bool
	)

	flag.StringVar(&strategyCfg, "s", "heuristic", "Strategies cycled over nations (e.g. heuristic,random) or per nation (aurel=random,*=heuristic)")
	flag.IntVar(&nations, "nations", 4, "Nations per match")
	flag.IntVar(&numMatches, "n", 1, "Number of matches to run")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel matches)")
	flag.IntVar(&radius, "radius", 0, "Map radius (0 = default)")
	flag.IntVar(&maxTurns, "max-turns", 0, "Turn limit (0 = rules default)")
	flag.Int64Var(&seed, "seed", 0, "Base seed (0 = time based)")
	flag.StringVar(&dbPath, "db", "", "SQLite archive path (empty = no archive)")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.BoolVar(&verbose, "v", false, "Log every turn")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if nations < 2 || nations > len(nationIDs) {
		log.Fatal().Int("nations", nations).Msgf("nations must be between 2 and %d", len(nationIDs))
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	strategies := parseStrategies(strategyCfg, nationIDs[:nations])

	rules := conquest.DefaultRules()
	if maxTurns > 0 {
		rules.MaxTurns = maxTurns
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Shutting down...")
		cancel()
	}()

	var rec bot.Recorder
	if dbPath != "" {
		archive, err := sqlite.Open(dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", dbPath).Msg("Archive open failed")
		}
		defer archive.Close()
		rec = &lockedRecorder{next: archive}
	}

	results := make([]*bot.MatchResult, numMatches)
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, max(workers, 1))
	errCount := 0

	for i := 0; i < numMatches; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			cfg := bot.MatchConfig{
				Seed:       seed + int64(idx),
				Radius:     radius,
				Strategies: strategies,
				Rules:      &rules,
			}
			result, err := bot.RunMatch(ctx, cfg, rec)
			if err != nil {
				log.Error().Err(err).Int("match", idx+1).Msg("Match failed")
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}

			mu.Lock()
			results[idx] = result
			mu.Unlock()

			log.Info().Int("match", idx+1).Str("winner", result.Winner).Int("turns", result.Turns).
				Int("battles", result.Battles).Msg("Match completed")
		}(i)
	}
	wg.Wait()

	if jsonOut {
		printJSON(results, errCount)
	} else {
		printSummary(results, strategies, errCount)
	}
}

// lockedRecorder serialises archive writes from parallel matches.
type lockedRecorder struct {
	mu   sync.Mutex
	next bot.Recorder
}

func (l *lockedRecorder) StartMatch(seed int64, nations []string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next.StartMatch(seed, nations)
}

func (l *lockedRecorder) SaveTurn(matchID int64, result *conquest.TurnResult, state *conquest.GameState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next.SaveTurn(matchID, result, state)
}

func (l *lockedRecorder) FinishMatch(matchID int64, turns int, winner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next.FinishMatch(matchID, turns, winner)
}

// parseStrategies reads either a list cycled over the nations or
// nation=strategy pairs with an optional "*" default.
func parseStrategies(cfg string, nations []string) map[string]string {
	out := make(map[string]string, len(nations))
	if !strings.Contains(cfg, "=") {
		list := strings.Split(cfg, ",")
		for i, n := range nations {
			out[n] = strings.TrimSpace(list[i%len(list)])
		}
		return out
	}
	fallback := "heuristic"
	for _, pair := range strings.Split(cfg, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "*" {
			fallback = v
			continue
		}
		out[k] = v
	}
	for _, n := range nations {
		if _, ok := out[n]; !ok {
			out[n] = fallback
		}
	}
	for k := range out {
		if !contains(nations, k) {
			delete(out, k)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func printSummary(results []*bot.MatchResult, strategies map[string]string, errCount int) {
	wins := make(map[string]int)
	stalemates, played, totalTurns := 0, 0, 0
	for _, r := range results {
		if r == nil {
			continue
		}
		played++
		totalTurns += r.Turns
		if r.Winner == "" {
			stalemates++
		} else {
			wins[r.Winner]++
		}
	}

	nations := make([]string, 0, len(strategies))
	for n := range strategies {
		nations = append(nations, n)
	}
	sort.Strings(nations)

	fmt.Printf("\n%d matches played, %d failed\n", played, errCount)
	if played == 0 {
		return
	}
	fmt.Printf("average length: %.1f turns\n\n", float64(totalTurns)/float64(played))
	fmt.Printf("%-10s %-10s %5s %6s\n", "NATION", "STRATEGY", "WINS", "RATE")
	for _, n := range nations {
		fmt.Printf("%-10s %-10s %5d %5.1f%%\n", n, strategies[n], wins[n], 100*float64(wins[n])/float64(played))
	}
	fmt.Printf("%-10s %-10s %5d %5.1f%%\n", "stalemate", "", stalemates, 100*float64(stalemates)/float64(played))
}

func printJSON(results []*bot.MatchResult, errCount int) {
	type matchJSON struct {
		Seed    int64  `json:"seed"`
		Winner  string `json:"winner"`
		Turns   int    `json:"turns"`
		Battles int    `json:"battles"`
	}
	out := struct {
		Matches []matchJSON `json:"matches"`
		Errors  int         `json:"errors"`
	}{Errors: errCount}
	for _, r := range results {
		if r != nil {
			out.Matches = append(out.Matches, matchJSON{Seed: r.Seed, Winner: r.Winner, Turns: r.Turns, Battles: r.Battles})
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}
