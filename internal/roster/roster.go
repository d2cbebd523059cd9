// Package roster summarises the user's drafted players against starter
// requirements.
package roster

import (
	"slices"
	"strings"

	"github.com/Billy-Davies-2/draftkit/internal/models"
)

// StarterCount is the number of starter slots; drafted players beyond it
// make up the bench.
const StarterCount = 9

// CollisionThreshold is the number of drafted players sharing a bye week
// that counts as a collision.
const CollisionThreshold = 3

// Slot is a starter requirement for one position.
type Slot struct {
	Pos   models.Position `json:"pos"`
	Count int             `json:"count"`
}

// StarterSlots is the default lineup: QB, 2 RB, 3 WR, TE, K, DST.
var StarterSlots = []Slot{
	{Pos: models.PosQB, Count: 1},
	{Pos: models.PosRB, Count: 2},
	{Pos: models.PosWR, Count: 3},
	{Pos: models.PosTE, Count: 1},
	{Pos: models.PosK, Count: 1},
	{Pos: models.PosDST, Count: 1},
}

// Need is the fill state of one starter slot.
type Need struct {
	Pos     models.Position `json:"pos"`
	Count   int             `json:"count"`
	Filled  int             `json:"filled"`
	Needed  int             `json:"needed"`
	Players []models.Player `json:"players"`
}

// Collision is a bye week shared by too many drafted players.
type Collision struct {
	Bye     int             `json:"bye"`
	Players []models.Player `json:"players"`
}

// Summary is the derived roster view.
type Summary struct {
	Drafted    []models.Player `json:"drafted"`
	Needs      []Need          `json:"needs"`
	AllFilled  bool            `json:"allFilled"`
	Collisions []Collision     `json:"collisions"`
	Bench      []models.Player `json:"bench"`
}

// Analyze builds a Summary from the full player list and the drafted map.
// Drafted players keep player-list order.
func Analyze(players []models.Player, drafted map[string]bool) Summary {
	var mine []models.Player
	for _, p := range players {
		if drafted[p.PlayerID] {
			mine = append(mine, p)
		}
	}

	byPos := make(map[models.Position][]models.Player)
	for _, p := range mine {
		byPos[p.Pos] = append(byPos[p.Pos], p)
	}

	s := Summary{
		Drafted:    orEmpty(mine),
		AllFilled:  true,
		Collisions: []Collision{},
		Bench:      []models.Player{},
	}
	for _, slot := range StarterSlots {
		have := byPos[slot.Pos]
		n := Need{
			Pos:     slot.Pos,
			Count:   slot.Count,
			Filled:  len(have),
			Needed:  max(0, slot.Count-len(have)),
			Players: orEmpty(have[:min(len(have), slot.Count)]),
		}
		if n.Needed > 0 {
			s.AllFilled = false
		}
		s.Needs = append(s.Needs, n)
	}

	s.Collisions = collisions(mine)
	if len(mine) > StarterCount {
		s.Bench = slices.Clone(mine[StarterCount:])
	}
	return s
}

func collisions(players []models.Player) []Collision {
	byBye := make(map[int][]models.Player)
	for _, p := range players {
		if p.Bye != nil && *p.Bye > 0 {
			byBye[*p.Bye] = append(byBye[*p.Bye], p)
		}
	}

	out := []Collision{}
	for bye, group := range byBye {
		if len(group) < CollisionThreshold {
			continue
		}
		slices.SortStableFunc(group, func(a, b models.Player) int {
			return strings.Compare(string(a.Pos), string(b.Pos))
		})
		out = append(out, Collision{Bye: bye, Players: group})
	}
	slices.SortFunc(out, func(a, b Collision) int { return a.Bye - b.Bye })
	return out
}

func orEmpty(p []models.Player) []models.Player {
	if p == nil {
		return []models.Player{}
	}
	return slices.Clone(p)
}
