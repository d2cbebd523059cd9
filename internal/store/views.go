package store

import (
	"fmt"

	"github.com/Billy-Davies-2/draftkit/internal/filter"
	"github.com/Billy-Davies-2/draftkit/internal/models"
	"github.com/Billy-Davies-2/draftkit/internal/roster"
	"github.com/Billy-Davies-2/draftkit/internal/snake"
)

// Derived views. Each one is computed from a single consistent state under
// the read lock and never cached.

// Filters returns the current filters.
func (s *Store) Filters() models.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneFilters(s.filters)
}

// Meta returns the dataset metadata.
func (s *Store) Meta() models.Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMeta(s.meta)
}

// FilteredPlayers applies the current filters to the player list.
func (s *Store) FilteredPlayers() []models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter.Players(s.players, s.filters)
}

// QueuedPlayers returns queued players in queue order, hiding drafted ones.
func (s *Store) QueuedPlayers() []models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Player, 0, len(s.queue))
	for _, id := range s.queue {
		i, ok := s.playerIndex[id]
		if !ok || s.drafted[id] {
			continue
		}
		out = append(out, s.players[i])
	}
	return out
}

// Rows returns the table view: players matching f, sorted, with session flags.
func (s *Store) Rows(f models.Filters, key filter.SortKey, desc bool) []models.PlayerRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowsLocked(f, key, desc)
}

// CurrentRows is Rows with the store's own filters, in rank order.
func (s *Store) CurrentRows() []models.PlayerRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowsLocked(s.filters, filter.SortRank, false)
}

func (s *Store) rowsLocked(f models.Filters, key filter.SortKey, desc bool) []models.PlayerRow {
	players := filter.Sort(filter.Players(s.players, f), key, desc)
	position := make(map[string]int, len(s.queue))
	for i, id := range s.queue {
		position[id] = i + 1
	}

	rows := make([]models.PlayerRow, len(players))
	for i, p := range players {
		rows[i] = models.PlayerRow{
			Player:     p,
			Drafted:    s.drafted[p.PlayerID],
			Queued:     position[p.PlayerID] > 0,
			QueueIndex: position[p.PlayerID],
			RoundPick:  roundPick(p, s.cfg.Teams),
			PointsText: models.FormatPoints(p.Points),
			VORPText:   models.FormatVORP(p.VORP),
		}
	}
	return rows
}

// roundPick prefers the dataset's own round estimate and falls back to the
// overall rank.
func roundPick(p models.Player, teams int) string {
	if p.RoundEst != nil && p.PickInRound != nil {
		return fmt.Sprintf("R%dP%d", *p.RoundEst, *p.PickInRound)
	}
	if p.OverallRank > 0 {
		return snake.Label(p.OverallRank, teams)
	}
	return ""
}

// Roster summarises drafted players against starter requirements.
func (s *Store) Roster() roster.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return roster.Analyze(s.players, s.drafted)
}

// PickStatus is one of the user's picks.
type PickStatus struct {
	snake.Pick
	Label string `json:"label"`
	Past  bool   `json:"past"`
}

// PickTracker is the pick schedule view.
type PickTracker struct {
	Teams          int          `json:"teams"`
	TotalRounds    int          `json:"totalRounds"`
	CurrentPick    int          `json:"currentPick"`
	CurrentLabel   string       `json:"currentLabel"`
	SlotOnClock    int          `json:"slotOnClock"`
	Complete       bool         `json:"complete"`
	MySlot         *int         `json:"mySlot"`
	IsYourTurn     bool         `json:"isYourTurn"`
	PicksUntilTurn int          `json:"picksUntilTurn"`
	PicksRemaining int          `json:"picksRemaining"`
	NextPicks      []PickStatus `json:"nextPicks"`
	Picks          []PickStatus `json:"picks"`
}

// PickTracker reports where the draft stands and, once a slot is chosen,
// the user's upcoming and past picks.
func (s *Store) PickTracker() PickTracker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pickTrackerLocked()
}

func (s *Store) pickTrackerLocked() PickTracker {
	teams := s.cfg.Teams
	cur := s.currentPick
	pt := PickTracker{
		Teams:       teams,
		TotalRounds: s.cfg.TotalRounds,
		CurrentPick: cur,
		Complete:    cur > s.cfg.TotalPicks(),
		MySlot:      cloneInt(s.mySlot),
		NextPicks:   []PickStatus{},
		Picks:       []PickStatus{},
	}
	if !pt.Complete {
		pt.CurrentLabel = snake.Label(cur, teams)
		pt.SlotOnClock = snake.SlotOnClock(cur, teams)
	}
	if s.mySlot == nil {
		return pt
	}

	slot := *s.mySlot
	pt.IsYourTurn = !pt.Complete && snake.IsYourTurn(slot, cur, teams)
	pt.PicksRemaining = snake.PicksRemaining(slot, cur, teams, s.cfg.TotalRounds)
	if !pt.Complete {
		pt.PicksUntilTurn = snake.PicksUntilYourTurn(slot, cur, teams)
	}
	for _, overall := range snake.NextTwoPicks(slot, cur, teams) {
		if overall > s.cfg.TotalPicks() {
			continue
		}
		pt.NextPicks = append(pt.NextPicks, status(overall, cur, teams))
	}
	for _, p := range snake.PicksForSlot(slot, teams, s.cfg.TotalRounds) {
		pt.Picks = append(pt.Picks, status(p.Overall, cur, teams))
	}
	return pt
}

func status(overall, current, teams int) PickStatus {
	round := snake.RoundOf(overall, teams)
	return PickStatus{
		Pick:  snake.Pick{Round: round, Pick: snake.PickInRound(overall, teams), Overall: overall},
		Label: snake.Label(overall, teams),
		Past:  overall < current,
	}
}

// State is the whole session plus its derived views, read under one lock.
type State struct {
	Snapshot
	Picks  PickTracker        `json:"picks"`
	Roster roster.Summary     `json:"roster"`
	Rows   []models.PlayerRow `json:"rows"`

	// MetaSummary is the one-line dataset description above the table.
	MetaSummary string `json:"metaSummary"`
}

// State returns the current session with every derived view.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Snapshot: s.snapshotLocked(),
		Picks:    s.pickTrackerLocked(),
		Roster:   roster.Analyze(s.players, s.drafted),
		Rows:     s.rowsLocked(s.filters, filter.SortRank, false),

		MetaSummary: s.meta.Summary(),
	}
}
