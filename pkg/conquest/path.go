package conquest

import (
	"container/heap"
	"fmt"
	"slices"
)

// Passable decides whether a group may step from one tile onto another,
// beyond the terrain and class rules. A nil Passable allows every step.
type Passable func(from, to *Tile) bool

// TraversalPredicate returns the ownership rule for a mover: a foreign tile
// blocks unless its owner is an ally or already at war with the mover.
func TraversalPredicate(gs *GameState, mover string) Passable {
	return func(_, to *Tile) bool {
		if to.Owner == "" || to.Owner == mover {
			return true
		}
		switch gs.Relation(mover, to.Owner).Status {
		case StatusAlliance, StatusWar:
			return true
		}
		return false
	}
}

// frontierItem is a tile waiting to be finalised at a tentative cost.
type frontierItem struct {
	tile string
	cost int
	seq  int
}

// frontier is a min-heap of tiles by cost; equal costs pop in discovery order.
type frontier []frontierItem

func (h frontier) Len() int { return len(h) }
func (h frontier) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].seq < h[j].seq
}
func (h frontier) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *frontier) Push(x any)   { *h = append(*h, x.(frontierItem)) }
func (h *frontier) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// search runs Dijkstra from origin. limit < 0 means unbounded. When target is
// non-empty the search stops as soon as target is finalised.
func search(gs *GameState, origin string, limit int, classes []UnitClass, passable Passable, target string) (map[string]int, map[string]string) {
	dist := make(map[string]int)
	prev := make(map[string]string)
	start := gs.Tiles[origin]
	if start == nil || hasClass(classes, Spy) {
		return dist, prev
	}
	navy := hasClass(classes, Navy)

	best := map[string]int{origin: 0}
	h := &frontier{{tile: origin, cost: 0}}
	seq := 1
	for h.Len() > 0 {
		cur := heap.Pop(h).(frontierItem)
		if _, done := dist[cur.tile]; done {
			continue
		}
		dist[cur.tile] = cur.cost
		if cur.tile == target {
			break
		}
		from := gs.Tiles[cur.tile]
		// A landfall tile ends a naval move.
		if navy && from.Terrain != Sea && cur.tile != origin {
			continue
		}
		for _, next := range gs.NeighborTiles(cur.tile) {
			if _, done := dist[next.ID]; done {
				continue
			}
			if !CanEnter(classes, from, next) {
				continue
			}
			if passable != nil && !passable(from, next) {
				continue
			}
			cost := cur.cost + gs.Rules.MoveCost(next.Terrain)
			if limit >= 0 && cost > limit {
				continue
			}
			if b, seen := best[next.ID]; seen && b <= cost {
				continue
			}
			best[next.ID] = cost
			prev[next.ID] = cur.tile
			heap.Push(h, frontierItem{tile: next.ID, cost: cost, seq: seq})
			seq++
		}
	}
	return dist, prev
}

// ReachableTiles returns every tile a group can reach from origin within
// budget, mapped to its minimal accumulated cost. The origin is included at
// cost 0. A negative budget is unbounded.
func ReachableTiles(gs *GameState, origin string, budget int, classes []UnitClass, passable Passable) map[string]int {
	dist, _ := search(gs, origin, budget, classes, passable, "")
	return dist
}

// FindPath returns the least-cost tile sequence from origin to target
// (both inclusive) and its cost. A budget <= 0 is unbounded.
func FindPath(gs *GameState, origin, target string, budget int, classes []UnitClass, passable Passable) ([]string, int, error) {
	if hasClass(classes, Spy) {
		return nil, 0, ErrSpyBulkMove
	}
	if gs.Tiles[target] == nil {
		return nil, 0, fmt.Errorf("%w: unknown tile %s", ErrNoPathAvailable, target)
	}
	limit := budget
	if limit <= 0 {
		limit = -1
	}
	dist, prev := search(gs, origin, limit, classes, passable, target)
	cost, ok := dist[target]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s to %s", ErrNoPathAvailable, origin, target)
	}
	path := []string{target}
	for cur := target; cur != origin; {
		cur = prev[cur]
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path, cost, nil
}

// PathCost sums the entry cost of every tile after the first.
func PathCost(gs *GameState, path []string) int {
	total := 0
	for _, id := range path[min(1, len(path)):] {
		if t := gs.Tiles[id]; t != nil {
			total += gs.Rules.MoveCost(t.Terrain)
		}
	}
	return total
}
