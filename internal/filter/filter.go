package filter

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/Billy-Davies-2/draftkit/internal/models"
)

// Players returns the players passing every active filter, in their original
// order. The input slice is never modified.
func Players(players []models.Player, f models.Filters) []models.Player {
	search := strings.ToLower(f.Search)
	out := make([]models.Player, 0, len(players))
	for _, p := range players {
		if Match(p, f.Pos, f.Tier, search) {
			out = append(out, p)
		}
	}
	return out
}

// Match applies the position, tier and search rules to one player.
// search must already be lowercased.
func Match(p models.Player, pos models.Position, tier *int, search string) bool {
	if pos != "" && pos != models.PosAll && p.Pos != pos {
		return false
	}
	if tier != nil && p.Tier != *tier {
		return false
	}
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), search) ||
		strings.Contains(strings.ToLower(p.Team), search) ||
		strings.Contains(strings.ToLower(string(p.Pos)), search)
}

// ParseTier turns user input into a tier filter. Anything that is not a
// positive integer clears the filter.
func ParseTier(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil
	}
	return &n
}

// ParsePosition turns user input into a position filter; unknown values mean ALL.
func ParsePosition(s string) models.Position {
	p := models.Position(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return models.PosAll
	}
	return p
}

// SortKey names a sortable table column.
type SortKey string

const (
	SortRank   SortKey = "rank"
	SortName   SortKey = "name"
	SortPoints SortKey = "points"
	SortVORP   SortKey = "vorp"
	SortTier   SortKey = "tier"
	SortBye    SortKey = "bye"
)

// Sort returns a stably sorted copy of players. Unknown keys sort by rank.
// Players without a bye week sort last in ascending order.
func Sort(players []models.Player, key SortKey, desc bool) []models.Player {
	out := slices.Clone(players)
	compare := comparator(key)
	slices.SortStableFunc(out, func(a, b models.Player) int {
		c := compare(a, b)
		if desc {
			return -c
		}
		return c
	})
	return out
}

func comparator(key SortKey) func(a, b models.Player) int {
	switch key {
	case SortName:
		return func(a, b models.Player) int { return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)) }
	case SortPoints:
		return func(a, b models.Player) int { return cmp.Compare(a.Points, b.Points) }
	case SortVORP:
		return func(a, b models.Player) int { return cmp.Compare(a.VORP, b.VORP) }
	case SortTier:
		return func(a, b models.Player) int { return cmp.Compare(a.Tier, b.Tier) }
	case SortBye:
		return func(a, b models.Player) int {
			switch {
			case a.Bye == nil && b.Bye == nil:
				return 0
			case a.Bye == nil:
				return 1
			case b.Bye == nil:
				return -1
			}
			return cmp.Compare(*a.Bye, *b.Bye)
		}
	default:
		return func(a, b models.Player) int { return cmp.Compare(a.OverallRank, b.OverallRank) }
	}
}
