package conquest

// RelationStatus is the diplomatic status between two nations.
type RelationStatus string

const (
	StatusNeutral  RelationStatus = "neutral"
	StatusFriendly RelationStatus = "friendly"
	StatusAlliance RelationStatus = "alliance"
	StatusHostile  RelationStatus = "hostile"
	StatusWar      RelationStatus = "war"
)

// DiplomacyAction is a diplomacy command issued by one nation to another.
type DiplomacyAction string

const (
	ActionDeclareWar        DiplomacyAction = "declare_war"
	ActionDeclareHostile    DiplomacyAction = "declare_hostile"
	ActionBreakAlliance     DiplomacyAction = "break_alliance"
	ActionProposeFriendship DiplomacyAction = "propose_friendship"
	ActionProposeAlliance   DiplomacyAction = "propose_alliance"
	ActionProposePeace      DiplomacyAction = "propose_peace"
	ActionAccept            DiplomacyAction = "accept"
	ActionReject            DiplomacyAction = "reject"
)

// Favorability bounds and per-event deltas.
const (
	MinFavorability = -100
	MaxFavorability = 100

	favorWar        = -30
	favorHostile    = -15
	favorBreak      = -10
	favorFriendship = 10
	favorAlliance   = 20
	favorPeace      = 10
	favorTrade      = 5
)

// Relation is the diplomatic record of an unordered nation pair. A and B are
// stored in lexical order.
type Relation struct {
	A                string         `json:"a"`
	B                string         `json:"b"`
	Status           RelationStatus `json:"status"`
	Favorability     int            `json:"favorability"`
	PendingStatus    RelationStatus `json:"pending_status,omitempty"`
	PendingRequester string         `json:"pending_requester,omitempty"`
}

// PairKey returns the order-independent key of a nation pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Relation returns the relation between a and b. An absent pair reads as
// neutral with zero favorability and is not created.
func (gs *GameState) Relation(a, b string) Relation {
	if r, ok := gs.Relations[PairKey(a, b)]; ok {
		return *r
	}
	if b < a {
		a, b = b, a
	}
	return Relation{A: a, B: b, Status: StatusNeutral}
}

// relation returns the stored record for a pair, creating it on first write.
func (gs *GameState) relation(a, b string) *Relation {
	key := PairKey(a, b)
	if r, ok := gs.Relations[key]; ok {
		return r
	}
	if gs.Relations == nil {
		gs.Relations = make(map[string]*Relation)
	}
	r := gs.Relation(a, b)
	gs.Relations[key] = &r
	return &r
}

// AtWar reports whether two nations are at war.
func (gs *GameState) AtWar(a, b string) bool {
	return a != b && gs.Relation(a, b).Status == StatusWar
}

// Allied reports whether b counts as friendly territory for a: the same
// nation or an alliance partner.
func (gs *GameState) Allied(a, b string) bool {
	return a == b || gs.Relation(a, b).Status == StatusAlliance
}

func (r *Relation) adjust(delta int) {
	r.Favorability = min(MaxFavorability, max(MinFavorability, r.Favorability+delta))
}

func (r *Relation) clearPending() {
	r.PendingStatus = ""
	r.PendingRequester = ""
}

// AdjustFavorability shifts the favorability of a pair within its bounds.
func (gs *GameState) AdjustFavorability(a, b string, delta int) {
	gs.relation(a, b).adjust(delta)
}

// mutualTarget returns the status a consent-requiring proposal leads to and
// the status it must start from.
func mutualTarget(action DiplomacyAction, from RelationStatus) (RelationStatus, bool) {
	switch action {
	case ActionProposeFriendship:
		return StatusFriendly, from == StatusNeutral || from == StatusHostile
	case ActionProposeAlliance:
		return StatusAlliance, from == StatusFriendly
	case ActionProposePeace:
		return StatusNeutral, from == StatusWar
	}
	return "", false
}

func favorFor(status RelationStatus) int {
	switch status {
	case StatusFriendly:
		return favorFriendship
	case StatusAlliance:
		return favorAlliance
	case StatusNeutral:
		return favorPeace
	}
	return 0
}

// ProposeDiplomacy applies a diplomacy action from actor towards target.
// Unilateral actions take effect immediately. Consent-requiring proposals
// record a pending status until the other side proposes the same transition
// or accepts. It reports whether the relation status changed.
func (gs *GameState) ProposeDiplomacy(actor, target string, action DiplomacyAction) (bool, error) {
	const kind = IntentDiplomacy
	if actor == target {
		return false, invalid(kind, "cannot target own nation")
	}
	if gs.Nations[actor] == nil || gs.Nations[target] == nil {
		return false, invalid(kind, "unknown nation")
	}
	cur := gs.Relation(actor, target)

	switch action {
	case ActionDeclareWar:
		if cur.Status == StatusWar {
			return false, invalid(kind, "already at war with %s", target)
		}
		r := gs.relation(actor, target)
		r.Status = StatusWar
		r.clearPending()
		r.adjust(favorWar)
		return true, nil

	case ActionDeclareHostile:
		if cur.Status != StatusNeutral && cur.Status != StatusFriendly {
			return false, invalid(kind, "cannot turn hostile from %s", cur.Status)
		}
		r := gs.relation(actor, target)
		r.Status = StatusHostile
		r.clearPending()
		r.adjust(favorHostile)
		return true, nil

	case ActionBreakAlliance:
		if cur.Status != StatusAlliance {
			return false, invalid(kind, "no alliance with %s", target)
		}
		r := gs.relation(actor, target)
		r.Status = StatusFriendly
		r.clearPending()
		r.adjust(favorBreak)
		return true, nil

	case ActionProposeFriendship, ActionProposeAlliance, ActionProposePeace:
		want, ok := mutualTarget(action, cur.Status)
		if !ok {
			return false, invalid(kind, "cannot %s from %s", action, cur.Status)
		}
		r := gs.relation(actor, target)
		if r.PendingStatus == want && r.PendingRequester == target {
			r.Status = want
			r.clearPending()
			r.adjust(favorFor(want))
			return true, nil
		}
		r.PendingStatus = want
		r.PendingRequester = actor
		return false, nil

	case ActionAccept:
		if cur.PendingStatus == "" || cur.PendingRequester != target {
			return false, invalid(kind, "no pending proposal from %s", target)
		}
		r := gs.relation(actor, target)
		r.Status = r.PendingStatus
		r.clearPending()
		r.adjust(favorFor(r.Status))
		return true, nil

	case ActionReject:
		if cur.PendingStatus == "" || cur.PendingRequester != target {
			return false, invalid(kind, "no pending proposal from %s", target)
		}
		gs.relation(actor, target).clearPending()
		return false, nil
	}
	return false, invalid(kind, "unknown action %q", action)
}

// makePeace ends a war between a and b as part of a treaty.
func (gs *GameState) makePeace(a, b string) bool {
	if !gs.AtWar(a, b) {
		return false
	}
	r := gs.relation(a, b)
	r.Status = StatusNeutral
	r.clearPending()
	r.adjust(favorPeace)
	return true
}

// RelationsOf returns nation's relation with every other nation, absent
// pairs included as defaults.
func (gs *GameState) RelationsOf(nation string) []Relation {
	var out []Relation
	for _, other := range gs.SortedNationIDs() {
		if other == nation {
			continue
		}
		out = append(out, gs.Relation(nation, other))
	}
	return out
}
