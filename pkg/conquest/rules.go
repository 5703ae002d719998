package conquest

// Terrain is the terrain type of a tile.
type Terrain string

const (
	Plains   Terrain = "plains"
	Coast    Terrain = "coast"
	Forest   Terrain = "forest"
	Hills    Terrain = "hills"
	Desert   Terrain = "desert"
	Swamp    Terrain = "swamp"
	Mountain Terrain = "mountain"
	Sea      Terrain = "sea"
)

// UnitClass is a category of troops sharing movement and combat stats.
type UnitClass string

const (
	Infantry UnitClass = "infantry"
	Archer   UnitClass = "archer"
	Cavalry  UnitClass = "cavalry"
	Siege    UnitClass = "siege"
	Navy     UnitClass = "navy"
	Spy      UnitClass = "spy"
)

// AllUnitClasses returns the unit classes in canonical order.
func AllUnitClasses() []UnitClass {
	return []UnitClass{Infantry, Archer, Cavalry, Siege, Navy, Spy}
}

// CityGrade determines base yields and population cap.
type CityGrade string

const (
	GradeCapital CityGrade = "capital"
	GradeMajor   CityGrade = "major"
	GradeNormal  CityGrade = "normal"
	GradeTown    CityGrade = "town"
)

// BuildingKind names a city building.
type BuildingKind string

const (
	BuildingWalls    BuildingKind = "walls"
	BuildingBarracks BuildingKind = "barracks"
	BuildingMarket   BuildingKind = "market"
	BuildingFarm     BuildingKind = "farm"
	BuildingHarbor   BuildingKind = "harbor"
)

// GradeStats are the per-grade base values of a city.
type GradeStats struct {
	Gold          int `json:"gold"`
	Food          int `json:"food"`
	Specialty     int `json:"specialty"`
	MaxPopulation int `json:"max_population"`
	Defense       int `json:"defense"`
}

// UnitCost is what recruiting one unit costs and how long it trains.
type UnitCost struct {
	Gold       int `json:"gold"`
	Food       int `json:"food"`
	Turns      int `json:"turns"`
	UpkeepGold int `json:"upkeep_gold"` // per 10 units per turn
	UpkeepFood int `json:"upkeep_food"` // per 10 units per turn
}

// BuildingSpec is the cost and construction time of one building level.
type BuildingSpec struct {
	Gold     int `json:"gold"`
	Turns    int `json:"turns"`
	MaxLevel int `json:"max_level"`
}

// Rules is the static stat table for a room. A default table ships with the
// engine; rooms may carry their own.
type Rules struct {
	TerrainCost map[Terrain]int               `json:"terrain_cost"`
	Movement    map[UnitClass]int             `json:"movement"`
	Offense     map[UnitClass]float64         `json:"offense"`
	Defense     map[UnitClass]float64         `json:"defense"`
	Grades      map[CityGrade]GradeStats      `json:"grades"`
	Units       map[UnitClass]UnitCost        `json:"units"`
	Buildings   map[BuildingKind]BuildingSpec `json:"buildings"`
	Specialties map[Terrain]string            `json:"specialties"`

	TradeExpiryTurns  int     `json:"trade_expiry_turns"`
	NewsCap           int     `json:"news_cap"`
	VictoryCityShare  float64 `json:"victory_city_share"`
	MaxTurns          int     `json:"max_turns"`
	SpyRange          int     `json:"spy_range"`
	CivilWarHappiness int     `json:"civil_war_happiness"`
	MaxTaxRate        int     `json:"max_tax_rate"`
	VisionRadius      int     `json:"vision_radius"`
	BarracksOutput    int     `json:"barracks_output"` // infantry per barracks level per turn
}

// DefaultRules returns the stock stat table.
func DefaultRules() Rules {
	return Rules{
		TerrainCost: map[Terrain]int{
			Plains: 1, Coast: 1, Desert: 2, Forest: 2, Hills: 2, Swamp: 3, Mountain: 3, Sea: 1,
		},
		Movement: map[UnitClass]int{
			Infantry: 2, Archer: 2, Cavalry: 4, Siege: 1, Navy: 4, Spy: 0,
		},
		Offense: map[UnitClass]float64{
			Infantry: 1.0, Archer: 1.2, Cavalry: 1.5, Siege: 2.0, Navy: 1.0, Spy: 0,
		},
		Defense: map[UnitClass]float64{
			Infantry: 1.0, Archer: 1.3, Cavalry: 1.2, Siege: 0.5, Navy: 1.0, Spy: 0,
		},
		Grades: map[CityGrade]GradeStats{
			GradeCapital: {Gold: 50, Food: 40, Specialty: 3, MaxPopulation: 100000, Defense: 3},
			GradeMajor:   {Gold: 30, Food: 30, Specialty: 2, MaxPopulation: 50000, Defense: 2},
			GradeNormal:  {Gold: 20, Food: 20, Specialty: 1, MaxPopulation: 20000, Defense: 1},
			GradeTown:    {Gold: 10, Food: 10, Specialty: 1, MaxPopulation: 5000, Defense: 0},
		},
		Units: map[UnitClass]UnitCost{
			Infantry: {Gold: 2, Food: 1, Turns: 1, UpkeepGold: 1, UpkeepFood: 2},
			Archer:   {Gold: 3, Food: 1, Turns: 1, UpkeepGold: 1, UpkeepFood: 2},
			Cavalry:  {Gold: 5, Food: 2, Turns: 2, UpkeepGold: 2, UpkeepFood: 3},
			Siege:    {Gold: 10, Food: 1, Turns: 3, UpkeepGold: 3, UpkeepFood: 1},
			Navy:     {Gold: 8, Food: 1, Turns: 2, UpkeepGold: 2, UpkeepFood: 1},
			Spy:      {Gold: 40, Food: 0, Turns: 2},
		},
		Buildings: map[BuildingKind]BuildingSpec{
			BuildingWalls:    {Gold: 80, Turns: 3, MaxLevel: 3},
			BuildingBarracks: {Gold: 60, Turns: 2, MaxLevel: 3},
			BuildingMarket:   {Gold: 50, Turns: 2, MaxLevel: 3},
			BuildingFarm:     {Gold: 40, Turns: 2, MaxLevel: 3},
			BuildingHarbor:   {Gold: 70, Turns: 3, MaxLevel: 1},
		},
		Specialties: map[Terrain]string{
			Plains: "grain", Coast: "fish", Forest: "timber", Hills: "iron",
			Desert: "spice", Swamp: "herbs", Mountain: "gems",
		},
		TradeExpiryTurns:  3,
		NewsCap:           100,
		VictoryCityShare:  0.6,
		MaxTurns:          200,
		SpyRange:          3,
		CivilWarHappiness: 40,
		MaxTaxRate:        50,
		VisionRadius:      2,
		BarracksOutput:    2,
	}
}

// MoveCost returns the cost of entering a tile of the given terrain.
// Unknown terrain costs 1.
func (r *Rules) MoveCost(t Terrain) int {
	if c, ok := r.TerrainCost[t]; ok && c > 0 {
		return c
	}
	return 1
}

// GroupMovement returns the movement budget of a group: the allowance of its
// slowest class.
func (r *Rules) GroupMovement(classes []UnitClass) int {
	if len(classes) == 0 {
		return 0
	}
	best := -1
	for _, c := range classes {
		m := r.Movement[c]
		if best < 0 || m < best {
			best = m
		}
	}
	return best
}

// CanEnter reports whether every class in the group may step from one tile
// onto another. Ownership is not considered here.
func CanEnter(classes []UnitClass, from, to *Tile) bool {
	for _, c := range classes {
		switch c {
		case Spy:
			return false
		case Navy:
			// Ships sail on sea, or make landfall from sea onto a coast.
			if to.Terrain != Sea && from.Terrain != Sea {
				return false
			}
		case Siege:
			if to.Terrain == Sea || to.Terrain == Mountain {
				return false
			}
		default:
			if to.Terrain == Sea {
				return false
			}
		}
	}
	return true
}

func hasClass(classes []UnitClass, c UnitClass) bool {
	for _, x := range classes {
		if x == c {
			return true
		}
	}
	return false
}
