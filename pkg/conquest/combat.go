package conquest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Outcome is the winner category of a battle.
type Outcome string

const (
	OutcomeAttacker Outcome = "attacker"
	OutcomeDefender Outcome = "defender"
	OutcomeDraw     Outcome = "draw"
)

// Power ratio thresholds and loss fractions of the deterministic model.
const (
	attackerWinRatio = 1.5
	defenderWinRatio = 0.67

	attackerWinLoss = 0.3
	defenderWinLoss = 0.5
	drawLoss        = 0.4
	// The defender's fraction is this share of the attacker's.
	defenderLossShare = 0.8

	cityDefenseBonus = 0.1

	// DefaultAugmentTimeout bounds a narrative call.
	DefaultAugmentTimeout = 8 * time.Second

	// MaxAxisScore is the point value of one strategy scoring axis.
	MaxAxisScore = 25
)

// BattleInput is everything the resolver needs to decide a battle.
type BattleInput struct {
	Attacker         Troops  `json:"attacker"`
	Defender         Troops  `json:"defender"`
	Terrain          Terrain `json:"terrain"`
	CityDefenseLevel int     `json:"city_defense_level"`
	AttackerStrategy string  `json:"attacker_strategy,omitempty"`
	DefenderStrategy string  `json:"defender_strategy,omitempty"`
}

// StrategyScore rates a side's strategy text on four axes.
type StrategyScore struct {
	TerrainFit          int `json:"terrain_fit"`
	UnitSynergy         int `json:"unit_synergy"`
	LogicalCoherence    int `json:"logical_coherence"`
	CounterIntelligence int `json:"counter_intelligence"`
}

// Total sums the axes.
func (s StrategyScore) Total() int {
	return s.TerrainFit + s.UnitSynergy + s.LogicalCoherence + s.CounterIntelligence
}

func (s StrategyScore) clamped() StrategyScore {
	c := func(v int) int { return min(MaxAxisScore, max(0, v)) }
	return StrategyScore{
		TerrainFit:          c(s.TerrainFit),
		UnitSynergy:         c(s.UnitSynergy),
		LogicalCoherence:    c(s.LogicalCoherence),
		CounterIntelligence: c(s.CounterIntelligence),
	}
}

// BattleResult is the decided outcome of a battle.
type BattleResult struct {
	Winner         Outcome        `json:"winner"`
	AttackerLosses Troops         `json:"attacker_losses"`
	DefenderLosses Troops         `json:"defender_losses"`
	AttackerPower  float64        `json:"attacker_power"`
	DefenderPower  float64        `json:"defender_power"`
	Narrative      string         `json:"narrative,omitempty"`
	Augmented      bool           `json:"augmented"`
	AttackerScore  *StrategyScore `json:"attacker_score,omitempty"`
	DefenderScore  *StrategyScore `json:"defender_score,omitempty"`

	// FallbackReason records why augmentation was not used. It is never shown
	// to players.
	FallbackReason string `json:"-"`
}

// Power returns the weighted strength of a troop composition.
func Power(t Troops, weights map[UnitClass]float64) float64 {
	total := 0.0
	for _, c := range t.Classes() {
		total += float64(t[c]) * weights[c]
	}
	return total
}

// ResolveCombat decides a battle with the deterministic power model.
func ResolveCombat(in BattleInput, r *Rules) BattleResult {
	atk := Power(in.Attacker, r.Offense)
	def := Power(in.Defender, r.Defense) * (1 + cityDefenseBonus*float64(in.CityDefenseLevel))

	var winner Outcome
	switch {
	case atk == 0:
		winner = OutcomeDefender
	case def == 0:
		winner = OutcomeAttacker
	default:
		ratio := atk / def
		switch {
		case ratio > attackerWinRatio:
			winner = OutcomeAttacker
		case ratio < defenderWinRatio:
			winner = OutcomeDefender
		default:
			winner = OutcomeDraw
		}
	}

	frac := drawLoss
	switch winner {
	case OutcomeAttacker:
		frac = attackerWinLoss
	case OutcomeDefender:
		frac = defenderWinLoss
	}
	return BattleResult{
		Winner:         winner,
		AttackerLosses: lossesFor(in.Attacker, frac),
		DefenderLosses: lossesFor(in.Defender, frac*defenderLossShare),
		AttackerPower:  atk,
		DefenderPower:  def,
		Narrative:      defaultNarrative(winner, in.Terrain),
	}
}

func lossesFor(t Troops, frac float64) Troops {
	out := make(Troops)
	for _, c := range t.Classes() {
		f := frac
		if c == Siege {
			f /= 2
		}
		n := int(math.Round(float64(t[c]) * f))
		out[c] = min(n, t[c])
	}
	return out
}

func defaultNarrative(w Outcome, terrain Terrain) string {
	switch w {
	case OutcomeAttacker:
		return fmt.Sprintf("The attackers overwhelmed the defenders on the %s.", terrain)
	case OutcomeDefender:
		return fmt.Sprintf("The defenders held the %s and repelled the assault.", terrain)
	}
	return fmt.Sprintf("Both armies bled on the %s without a decision.", terrain)
}

// AugmentRequest is sent to a narrative service.
type AugmentRequest struct {
	BattleInput
	Baseline BattleResult `json:"baseline"`
}

// AugmentResponse is a narrative service's proposal. It follows the same
// winner and loss contract as the deterministic model.
type AugmentResponse struct {
	Winner         Outcome       `json:"winner"`
	AttackerLosses Troops        `json:"attacker_losses"`
	DefenderLosses Troops        `json:"defender_losses"`
	Narrative      string        `json:"narrative"`
	AttackerScore  StrategyScore `json:"attacker_score"`
	DefenderScore  StrategyScore `json:"defender_score"`
}

// NarrativeAugmenter proposes a narrated battle outcome.
type NarrativeAugmenter interface {
	Augment(ctx context.Context, req AugmentRequest) (*AugmentResponse, error)
}

// CombatResolver decides battles, consulting an optional augmenter.
type CombatResolver struct {
	Rules     *Rules
	Augmenter NarrativeAugmenter
	Timeout   time.Duration
}

// Resolve returns the augmented result when the augmenter answers in time
// with a well-formed proposal, and the deterministic result otherwise.
func (cr *CombatResolver) Resolve(ctx context.Context, in BattleInput) BattleResult {
	base := ResolveCombat(in, cr.Rules)
	if cr.Augmenter == nil {
		return base
	}
	timeout := cr.Timeout
	if timeout <= 0 {
		timeout = DefaultAugmentTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := cr.Augmenter.Augment(actx, AugmentRequest{BattleInput: in, Baseline: base})
	if err == nil {
		err = checkAugment(in, resp)
	}
	if err != nil {
		if !errors.Is(err, ErrExternalServiceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrExternalServiceUnavailable, err)
		}
		base.FallbackReason = err.Error()
		return base
	}

	out := BattleResult{
		Winner:         resp.Winner,
		AttackerLosses: resp.AttackerLosses.Clone(),
		DefenderLosses: resp.DefenderLosses.Clone(),
		AttackerPower:  base.AttackerPower,
		DefenderPower:  base.DefenderPower,
		Narrative:      resp.Narrative,
		Augmented:      true,
	}
	if out.Narrative == "" {
		out.Narrative = base.Narrative
	}
	// Without strategy text a side scores nothing.
	as, ds := StrategyScore{}, StrategyScore{}
	if in.AttackerStrategy != "" {
		as = resp.AttackerScore.clamped()
	}
	if in.DefenderStrategy != "" {
		ds = resp.DefenderScore.clamped()
	}
	out.AttackerScore, out.DefenderScore = &as, &ds
	return out
}

func checkAugment(in BattleInput, resp *AugmentResponse) error {
	if resp == nil {
		return errors.New("empty augment response")
	}
	switch resp.Winner {
	case OutcomeAttacker, OutcomeDefender, OutcomeDraw:
	default:
		return fmt.Errorf("unknown winner %q", resp.Winner)
	}
	if err := checkLosses(in.Attacker, resp.AttackerLosses); err != nil {
		return fmt.Errorf("attacker losses: %w", err)
	}
	if err := checkLosses(in.Defender, resp.DefenderLosses); err != nil {
		return fmt.Errorf("defender losses: %w", err)
	}
	return nil
}

func checkLosses(troops, losses Troops) error {
	for c, n := range losses {
		if n < 0 {
			return fmt.Errorf("negative %s losses", c)
		}
		if n > troops[c] {
			return fmt.Errorf("%d %s lost of %d", n, c, troops[c])
		}
	}
	return nil
}
