package conquest

import (
	"fmt"
	"sort"
	"strings"
)

// IntentKind identifies the variant of an Intent.
type IntentKind string

const (
	IntentMove            IntentKind = "move"
	IntentAttack          IntentKind = "attack"
	IntentBuild           IntentKind = "build"
	IntentRecruit         IntentKind = "recruit"
	IntentTax             IntentKind = "tax"
	IntentDefense         IntentKind = "defense"
	IntentCivilWar        IntentKind = "civil_war"
	IntentSpyMove         IntentKind = "spy_move"
	IntentAutoMove        IntentKind = "automove"
	IntentAutoMoveCancel  IntentKind = "automove_cancel"
	IntentAutoMoveResolve IntentKind = "automove_resolve"
	IntentBattlefield     IntentKind = "battlefield"
	IntentTradePropose    IntentKind = "trade_propose"
	IntentTradeRespond    IntentKind = "trade_respond"
	IntentDiplomacy       IntentKind = "diplomacy"
)

// MovePayload moves troops, or attacks an adjacent tile with them.
type MovePayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Units    Troops `json:"units"`
	Strategy string `json:"strategy,omitempty"`
}

// CityPayload targets one city: build, recruit, tax and defense intents.
type CityPayload struct {
	City     string       `json:"city"`
	Building BuildingKind `json:"building,omitempty"`
	Class    UnitClass    `json:"class,omitempty"`
	Amount   int          `json:"amount,omitempty"`
	Rate     int          `json:"rate,omitempty"`
	Strategy string       `json:"strategy,omitempty"`
}

// SpyPayload infiltrates a spy or uses it to incite a civil war.
type SpyPayload struct {
	SpyID string `json:"spy_id"`
	To    string `json:"to,omitempty"`
	City  string `json:"city,omitempty"`
}

// AutoMovePayload creates, cancels or resolves an auto-move order.
type AutoMovePayload struct {
	OrderID  string         `json:"order_id,omitempty"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Class    UnitClass      `json:"class,omitempty"`
	Amount   int            `json:"amount,omitempty"`
	Choice   AutoMoveChoice `json:"choice,omitempty"`
	Strategy string         `json:"strategy,omitempty"`
}

// BattlefieldPayload is a fight or retreat decision.
type BattlefieldPayload struct {
	BattlefieldID string       `json:"battlefield_id"`
	Action        BattleAction `json:"action"`
	Strategy      string       `json:"strategy,omitempty"`
}

// TradePayload proposes a trade or responds to one.
type TradePayload struct {
	Responder    string      `json:"responder,omitempty"`
	Offer        Bundle      `json:"offer"`
	Request      Bundle      `json:"request"`
	TradeID      string      `json:"trade_id,omitempty"`
	Action       TradeAction `json:"action,omitempty"`
	CounterOffer *Bundle     `json:"counter_offer,omitempty"`
}

// DiplomacyPayload is a diplomacy action towards another nation.
type DiplomacyPayload struct {
	Target string          `json:"target"`
	Action DiplomacyAction `json:"action"`
}

// Intent is a queued player command. Exactly one payload matching Kind is
// set.
type Intent struct {
	ID     string     `json:"id,omitempty"`
	Player string     `json:"player"`
	Kind   IntentKind `json:"kind"`
	Turn   int        `json:"turn"`

	Move        *MovePayload        `json:"move,omitempty"`
	City        *CityPayload        `json:"city,omitempty"`
	Spy         *SpyPayload         `json:"spy,omitempty"`
	AutoMove    *AutoMovePayload    `json:"automove,omitempty"`
	Battlefield *BattlefieldPayload `json:"battlefield,omitempty"`
	Trade       *TradePayload       `json:"trade,omitempty"`
	Diplomacy   *DiplomacyPayload   `json:"diplomacy,omitempty"`
}

func (in *Intent) payloadCount() int {
	n := 0
	for _, set := range []bool{
		in.Move != nil, in.City != nil, in.Spy != nil, in.AutoMove != nil,
		in.Battlefield != nil, in.Trade != nil, in.Diplomacy != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// SlotKey is the queue slot an intent occupies: its kind refined by its
// subject. A later intent in the same slot replaces the earlier one.
func (in *Intent) SlotKey() string {
	switch in.Kind {
	case IntentMove, IntentAttack:
		return fmt.Sprintf("%s:%s>%s", in.Kind, in.Move.From, in.Move.To)
	case IntentBuild, IntentTax, IntentDefense:
		return fmt.Sprintf("%s:%s", in.Kind, in.City.City)
	case IntentRecruit:
		return fmt.Sprintf("%s:%s:%s", in.Kind, in.City.City, in.City.Class)
	case IntentCivilWar, IntentSpyMove:
		return fmt.Sprintf("spy:%s", in.Spy.SpyID)
	case IntentAutoMove:
		return fmt.Sprintf("%s:%s>%s:%s", in.Kind, in.AutoMove.From, in.AutoMove.To, in.AutoMove.Class)
	case IntentAutoMoveCancel, IntentAutoMoveResolve:
		return "automove_order:" + in.AutoMove.OrderID
	case IntentBattlefield:
		return "battlefield:" + in.Battlefield.BattlefieldID
	case IntentTradePropose:
		return "trade_propose:" + in.Trade.Responder
	case IntentTradeRespond:
		return "trade_respond:" + in.Trade.TradeID
	case IntentDiplomacy:
		return "diplomacy:" + in.Diplomacy.Target
	}
	return string(in.Kind)
}

// Validate checks an intent's shape and, when gs is non-nil, that it still
// makes sense against that snapshot. Checks that depend on holdings at
// settlement time are left to resolution.
func (in *Intent) Validate(gs *GameState) error {
	if in.Player == "" {
		return invalid(in.Kind, "missing player")
	}
	if in.payloadCount() != 1 {
		return invalid(in.Kind, "exactly one payload required")
	}
	if err := in.validateShape(); err != nil {
		return err
	}
	if gs == nil {
		return nil
	}
	if gs.Nations[in.Player] == nil {
		return invalid(in.Kind, "unknown nation %s", in.Player)
	}
	return in.validateState(gs)
}

func (in *Intent) validateShape() error {
	k := in.Kind
	switch k {
	case IntentMove, IntentAttack:
		if in.Move == nil || in.Move.From == "" || in.Move.To == "" {
			return invalid(k, "from and to are required")
		}
		if in.Move.Units.Total() <= 0 {
			return invalid(k, "no units given")
		}
		for c, n := range in.Move.Units {
			if n < 0 {
				return invalid(k, "negative %s count", c)
			}
		}
		if in.Move.Units[Spy] > 0 {
			return ErrSpyBulkMove
		}
	case IntentBuild, IntentRecruit, IntentTax, IntentDefense:
		if in.City == nil || in.City.City == "" {
			return invalid(k, "city is required")
		}
		switch {
		case k == IntentBuild && in.City.Building == "":
			return invalid(k, "building is required")
		case k == IntentRecruit && (in.City.Class == "" || in.City.Amount <= 0):
			return invalid(k, "class and a positive amount are required")
		case k == IntentTax && in.City.Rate < 0:
			return invalid(k, "rate must not be negative")
		}
	case IntentSpyMove, IntentCivilWar:
		if in.Spy == nil || in.Spy.SpyID == "" {
			return invalid(k, "spy_id is required")
		}
		if k == IntentSpyMove && in.Spy.To == "" {
			return invalid(k, "to is required")
		}
		if k == IntentCivilWar && in.Spy.City == "" {
			return invalid(k, "city is required")
		}
	case IntentAutoMove:
		a := in.AutoMove
		if a == nil || a.From == "" || a.To == "" || a.Class == "" || a.Amount <= 0 {
			return invalid(k, "from, to, class and a positive amount are required")
		}
		if a.Class == Spy {
			return ErrSpyBulkMove
		}
	case IntentAutoMoveCancel, IntentAutoMoveResolve:
		if in.AutoMove == nil || in.AutoMove.OrderID == "" {
			return invalid(k, "order_id is required")
		}
		if k == IntentAutoMoveResolve {
			switch in.AutoMove.Choice {
			case ChoiceAttack, ChoiceRetreat, ChoiceCancel:
			default:
				return invalid(k, "choice must be attack, retreat or cancel")
			}
		}
	case IntentBattlefield:
		b := in.Battlefield
		if b == nil || b.BattlefieldID == "" {
			return invalid(k, "battlefield_id is required")
		}
		if b.Action != BattleFight && b.Action != BattleRetreat {
			return invalid(k, "action must be fight or retreat")
		}
	case IntentTradePropose:
		if in.Trade == nil || in.Trade.Responder == "" {
			return invalid(k, "responder is required")
		}
		if in.Trade.Offer.Empty() && in.Trade.Request.Empty() {
			return fmt.Errorf("%w: both sides are empty", ErrInvalidOffer)
		}
	case IntentTradeRespond:
		t := in.Trade
		if t == nil || t.TradeID == "" {
			return invalid(k, "trade_id is required")
		}
		switch t.Action {
		case TradeAccept, TradeReject:
		case TradeCounter:
			if t.CounterOffer == nil {
				return invalid(k, "counter_offer is required")
			}
		default:
			return invalid(k, "action must be accept, reject or counter")
		}
	case IntentDiplomacy:
		if in.Diplomacy == nil || in.Diplomacy.Target == "" || in.Diplomacy.Action == "" {
			return invalid(k, "target and action are required")
		}
	default:
		return invalid(k, "unknown intent kind")
	}
	return nil
}

func (in *Intent) validateState(gs *GameState) error {
	k := in.Kind
	switch k {
	case IntentMove, IntentAttack:
		m := in.Move
		if gs.Tiles[m.From] == nil || gs.Tiles[m.To] == nil {
			return invalid(k, "unknown tile")
		}
		for _, c := range m.Units.Classes() {
			if have := gs.StackCount(m.From, in.Player, c); have < m.Units[c] {
				return invalid(k, "only %d %s at %s", have, c, m.From)
			}
		}
		if k == IntentAttack && !gs.Adjacent(m.From, m.To) {
			return invalid(k, "%s is not adjacent to %s", m.To, m.From)
		}
	case IntentBuild, IntentRecruit, IntentTax, IntentDefense:
		if _, err := gs.ownedCity(k, in.Player, in.City.City); err != nil {
			return err
		}
	case IntentSpyMove, IntentCivilWar:
		if s := gs.SpyByID(in.Spy.SpyID); s == nil || s.Owner != in.Player {
			return invalid(k, "unknown spy %s", in.Spy.SpyID)
		}
	case IntentAutoMove:
		a := in.AutoMove
		if have := gs.StackCount(a.From, in.Player, a.Class); have < a.Amount {
			return invalid(k, "only %d %s at %s", have, a.Class, a.From)
		}
	case IntentAutoMoveCancel, IntentAutoMoveResolve:
		o := gs.AutoMoveByID(in.AutoMove.OrderID)
		if o == nil || o.Owner != in.Player {
			return invalid(k, "unknown order %s", in.AutoMove.OrderID)
		}
		if k == IntentAutoMoveCancel && o.Status != AutoMoveActive {
			return fmt.Errorf("auto-move %s is %s: %w", o.ID, o.Status, ErrOrderNotActive)
		}
		if k == IntentAutoMoveResolve && o.Status != AutoMoveBlocked {
			return fmt.Errorf("auto-move %s is %s: %w", o.ID, o.Status, ErrOrderNotBlocked)
		}
	case IntentBattlefield:
		b := gs.BattlefieldByID(in.Battlefield.BattlefieldID)
		if b == nil {
			return invalid(k, "unknown battlefield %s", in.Battlefield.BattlefieldID)
		}
		if b.participantOf(in.Player) == nil {
			return invalid(k, "not a participant of %s", b.ID)
		}
	case IntentTradePropose:
		if in.Trade.Responder == in.Player || gs.Nations[in.Trade.Responder] == nil {
			return fmt.Errorf("%w: invalid responder", ErrInvalidOffer)
		}
		if err := gs.canGive(in.Player, in.Trade.Responder, in.Trade.Offer); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOffer, err)
		}
	case IntentTradeRespond:
		t := gs.TradeByID(in.Trade.TradeID)
		if t == nil || t.Responder != in.Player {
			return invalid(k, "no trade %s awaiting your answer", in.Trade.TradeID)
		}
		if t.Status != TradeProposed {
			return invalid(k, "trade %s is %s", t.ID, t.Status)
		}
	case IntentDiplomacy:
		if in.Diplomacy.Target == in.Player || gs.Nations[in.Diplomacy.Target] == nil {
			return invalid(k, "invalid target %s", in.Diplomacy.Target)
		}
		// Dry-run the transition on a scratch copy of the relation.
		scratch := &GameState{Nations: gs.Nations, Relations: map[string]*Relation{}}
		r := gs.Relation(in.Player, in.Diplomacy.Target)
		scratch.Relations[PairKey(in.Player, in.Diplomacy.Target)] = &r
		if _, err := scratch.ProposeDiplomacy(in.Player, in.Diplomacy.Target, in.Diplomacy.Action); err != nil {
			return err
		}
	}
	return nil
}

// SortIntents orders intents by player then slot so replay is deterministic.
func SortIntents(intents []Intent) {
	sort.SliceStable(intents, func(i, j int) bool {
		if intents[i].Player != intents[j].Player {
			return intents[i].Player < intents[j].Player
		}
		return strings.Compare(intents[i].SlotKey(), intents[j].SlotKey()) < 0
	})
}
