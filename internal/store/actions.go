package store

import (
	"fmt"
	"io"
	"slices"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/models"
	"github.com/Billy-Davies-2/draftkit/internal/overrides"
)

// Event types published by the store.
const (
	EventPlayersSet      = "players:set"
	EventMetaSet         = "meta:set"
	EventFiltersSet      = "filters:set"
	EventQueueToggle     = "queue:toggle"
	EventQueueMove       = "queue:move"
	EventQueueClear      = "queue:clear"
	EventDraftedMark     = "drafted:mark"
	EventSlotSet         = "slot:set"
	EventPickSet         = "pick:set"
	EventDenseSet        = "dense:set"
	EventDraftReset      = "draft:reset"
	EventOverridesImport = "overrides:import"
	EventSnapshotRestore = "snapshot:restore"
)

// SetPlayers replaces the player list.
func (s *Store) SetPlayers(players []models.Player) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players = slices.Clone(players)
	if s.players == nil {
		s.players = []models.Player{}
	}
	s.playerIndex = indexPlayers(s.players)
	s.commit(EventPlayersSet, map[string]any{"count": len(s.players)})
}

// SetMeta replaces the dataset metadata.
func (s *Store) SetMeta(meta models.Meta) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !meta.BlendConsistent() {
		logger.Warn("Meta blend weights do not match lookback years", "blend", meta.Blend, "lookback_years", meta.LookbackYears)
	}
	s.meta = cloneMeta(meta)
	s.commit(EventMetaSet, nil)
}

// SetFilters merges patch into the current filters and returns the result.
func (s *Store) SetFilters(patch FiltersPatch) models.Filters {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters = patch.apply(s.filters)
	f := cloneFilters(s.filters)
	s.commit(EventFiltersSet, map[string]any{"filters": f})
	return f
}

// ToggleQueue appends id to the queue, or removes it if already queued. It
// reports whether the id is queued afterwards. Unknown ids are ignored unless
// already queued, so entries left over from an earlier player list can still
// be removed.
func (s *Store) ToggleQueue(id string) bool {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	_, queued := s.queueIndex[id]
	if !queued && !s.knownLocked(id) {
		return false
	}
	if queued {
		i := slices.Index(s.queue, id)
		s.queue = slices.Delete(slices.Clone(s.queue), i, i+1)
		delete(s.queueIndex, id)
	} else {
		s.queue = append(slices.Clone(s.queue), id)
		s.queueIndex[id] = struct{}{}
	}
	s.commit(EventQueueToggle, map[string]any{"playerId": id, "queued": !queued})
	return !queued
}

// MoveQueue moves the entry at index from to index to. Out-of-range indexes
// are ignored and reported as false.
func (s *Store) MoveQueue(from, to int) bool {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.queue)
	if from < 0 || from >= n || to < 0 || to >= n {
		return false
	}
	if from == to {
		return true
	}
	q := slices.Clone(s.queue)
	id := q[from]
	q = slices.Delete(q, from, from+1)
	q = slices.Insert(q, to, id)
	s.queue = q
	s.commit(EventQueueMove, map[string]any{"playerId": id, "from": from, "to": to})
	return true
}

// ClearQueue empties the queue.
func (s *Store) ClearQueue() {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = []string{}
	s.queueIndex = map[string]struct{}{}
	s.commit(EventQueueClear, nil)
}

// MarkDrafted sets the drafted flag of id. A nil value flips it. It reports
// the resulting flag. Unknown ids are ignored unless already drafted.
func (s *Store) MarkDrafted(id string, value *bool) bool {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.drafted[id] && !s.knownLocked(id) {
		return false
	}

	v := !s.drafted[id]
	if value != nil {
		v = *value
	}
	drafted := make(map[string]bool, len(s.drafted)+1)
	for k, d := range s.drafted {
		drafted[k] = d
	}
	if v {
		drafted[id] = true
	} else {
		delete(drafted, id)
	}
	s.drafted = drafted
	s.commit(EventDraftedMark, map[string]any{"playerId": id, "drafted": v})
	return v
}

// SetMySlot selects the user's draft slot; nil clears it.
func (s *Store) SetMySlot(slot *int) error {
	if slot != nil && !s.cfg.ValidSlot(*slot) {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidSlot, *slot, s.cfg.Teams)
	}

	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mySlot = cloneInt(slot)
	s.commit(EventSlotSet, map[string]any{"mySlot": cloneInt(slot)})
	return nil
}

// SetCurrentPick moves the draft to overall pick n. One past the last pick
// marks the draft as finished.
func (s *Store) SetCurrentPick(n int) error {
	if n < 1 || n > s.cfg.TotalPicks()+1 {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidPick, n, s.cfg.TotalPicks()+1)
	}

	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentPick = n
	s.commit(EventPickSet, map[string]any{"currentPick": n})
	return nil
}

// NextPick advances the current pick by one and returns it.
func (s *Store) NextPick() (int, error) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentPick > s.cfg.TotalPicks() {
		return s.currentPick, fmt.Errorf("%w: draft is complete", ErrInvalidPick)
	}
	s.currentPick++
	s.commit(EventPickSet, map[string]any{"currentPick": s.currentPick})
	return s.currentPick, nil
}

// SetDense switches the compact table layout.
func (s *Store) SetDense(dense bool) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dense = dense
	s.commit(EventDenseSet, map[string]any{"dense": dense})
}

// Reset starts a new draft with the same player pool: drafted flags, queue,
// slot and current pick are cleared; players, meta, filters and the dense
// flag are kept.
func (s *Store) Reset() {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafted = map[string]bool{}
	s.queue = []string{}
	s.queueIndex = map[string]struct{}{}
	s.mySlot = nil
	s.currentPick = 1
	s.commit(EventDraftReset, nil)
}

// ImportOverrides applies CSV point overrides to the loaded players.
// The CSV is read before the lock is taken.
func (s *Store) ImportOverrides(r io.Reader) (overrides.Result, error) {
	ovs, skipped, err := overrides.Parse(r)
	if err != nil {
		return overrides.Result{}, fmt.Errorf("import overrides: %w", err)
	}

	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	players, res := overrides.Apply(s.players, ovs)
	res.Skipped = skipped
	for _, w := range res.Warnings {
		logger.Warn("Override warning", "warning", w)
	}
	logger.Info("Applied player overrides", "applied", res.Applied, "skipped", res.Skipped)

	s.players = players
	s.playerIndex = indexPlayers(players)
	s.commit(EventOverridesImport, map[string]any{"applied": res.Applied, "skipped": res.Skipped})
	return res, nil
}

// Restore replaces the whole session with snap. The league shape must match.
// Queue duplicates are dropped and the version continues from the larger of
// the two so observers never see it go backwards.
func (s *Store) Restore(snap Snapshot) error {
	if snap.Config != s.cfg {
		return fmt.Errorf("%w: league shape %dx%d does not match %dx%d", ErrInvalidSnapshot,
			snap.Config.Teams, snap.Config.TotalRounds, s.cfg.Teams, s.cfg.TotalRounds)
	}
	if snap.MySlot != nil && !s.cfg.ValidSlot(*snap.MySlot) {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, ErrInvalidSlot)
	}
	if snap.CurrentPick < 1 || snap.CurrentPick > s.cfg.TotalPicks()+1 {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, ErrInvalidPick)
	}

	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players = slices.Clone(snap.Players)
	if s.players == nil {
		s.players = []models.Player{}
	}
	s.playerIndex = indexPlayers(s.players)
	s.meta = cloneMeta(snap.Meta)
	s.filters = cloneFilters(snap.Filters)
	if !s.filters.Pos.Valid() {
		s.filters.Pos = models.PosAll
	}
	s.drafted = map[string]bool{}
	for id, d := range snap.Drafted {
		if d {
			s.drafted[id] = true
		}
	}
	s.queue = []string{}
	seen := map[string]struct{}{}
	for _, id := range snap.Queue {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		s.queue = append(s.queue, id)
	}
	s.rebuildQueueIndexLocked()
	s.mySlot = cloneInt(snap.MySlot)
	s.currentPick = snap.CurrentPick
	s.dense = snap.Dense

	s.version = max(s.version, snap.Version)
	s.commit(EventSnapshotRestore, map[string]any{"players": len(s.players), "queue": len(s.queue)})
	return nil
}
