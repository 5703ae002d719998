package conquest

import "fmt"

// NewsKind categorises a news item.
type NewsKind string

const (
	NewsBattle    NewsKind = "battle"
	NewsConquest  NewsKind = "conquest"
	NewsDiplomacy NewsKind = "diplomacy"
	NewsTrade     NewsKind = "trade"
	NewsBuild     NewsKind = "build"
	NewsRecruit   NewsKind = "recruit"
	NewsCivilWar  NewsKind = "civil_war"
	NewsAutoMove  NewsKind = "automove"
	NewsVictory   NewsKind = "victory"
)

// NewsItem is one entry in a room's news log.
type NewsItem struct {
	Turn    int      `json:"turn"`
	Kind    NewsKind `json:"kind"`
	Text    string   `json:"text"`
	Nations []string `json:"nations,omitempty"`
}

// addNews appends an item and drops the oldest entries beyond the cap.
func (gs *GameState) addNews(kind NewsKind, nations []string, format string, args ...any) NewsItem {
	item := NewsItem{Turn: gs.Turn, Kind: kind, Text: fmt.Sprintf(format, args...), Nations: nations}
	gs.News = append(gs.News, item)
	gs.unreported = append(gs.unreported, item)
	if limit := gs.Rules.NewsCap; limit > 0 && len(gs.News) > limit {
		gs.News = append([]NewsItem(nil), gs.News[len(gs.News)-limit:]...)
	}
	return item
}

// nationName returns a display name for a nation id.
func (gs *GameState) nationName(id string) string {
	if id == "" {
		return "rebels"
	}
	if n := gs.Nations[id]; n != nil && n.Name != "" {
		return n.Name
	}
	return id
}

func (gs *GameState) cityName(id string) string {
	if c := gs.Cities[id]; c != nil && c.Name != "" {
		return c.Name
	}
	return id
}
