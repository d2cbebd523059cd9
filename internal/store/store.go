// Package store owns the draft session state. Every action runs under one
// write lock and bumps the version, so readers only ever see whole states.
// Each applied action publishes exactly one event after the lock is
// released; observers still see events in version order.
package store

import (
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/Billy-Davies-2/draftkit/internal/models"
	"github.com/Billy-Davies-2/draftkit/internal/pubsub"
	"github.com/Billy-Davies-2/draftkit/internal/snake"
)

// SnapshotKey is the default persistence key for a store snapshot.
const SnapshotKey = "draftkid:v0.1"

var (
	ErrInvalidSlot     = errors.New("draft slot out of range")
	ErrInvalidPick     = errors.New("current pick out of range")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Snapshot is a deep copy of the whole store. It is also the persisted form.
type Snapshot struct {
	Version     uint64          `json:"version"`
	Config      snake.Config    `json:"config"`
	Players     []models.Player `json:"players"`
	Meta        models.Meta     `json:"meta"`
	Filters     models.Filters  `json:"filters"`
	Drafted     map[string]bool `json:"drafted"`
	Queue       []string        `json:"queue"`
	MySlot      *int            `json:"mySlot"`
	CurrentPick int             `json:"currentPick"`
	Dense       bool            `json:"dense"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(pubsub.Event) {}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sends every change event to p.
func WithPublisher(p pubsub.Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.pub = p
		}
	}
}

// Store is the single owner of draft session state.
type Store struct {
	mu sync.RWMutex
	// cfg is set once in New and never written again; actions validate
	// against it without holding mu.
	cfg snake.Config
	pub pubsub.Publisher

	// pubMu serialises flushes so events leave in commit order.
	pubMu   sync.Mutex
	pending []pubsub.Event

	version     uint64
	players     []models.Player
	playerIndex map[string]int
	meta        models.Meta
	filters     models.Filters
	drafted     map[string]bool
	queue       []string
	queueIndex  map[string]struct{}
	mySlot      *int
	currentPick int
	dense       bool
}

// New returns an empty store for a league of cfg's shape.
func New(cfg snake.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:         cfg,
		pub:         nopPublisher{},
		players:     []models.Player{},
		playerIndex: map[string]int{},
		filters:     models.DefaultFilters(),
		drafted:     map[string]bool{},
		queue:       []string{},
		queueIndex:  map[string]struct{}{},
		currentPick: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the league shape.
func (s *Store) Config() snake.Config {
	return s.cfg
}

// Version increases by one with every applied action.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:     s.version,
		Config:      s.cfg,
		Players:     slices.Clone(s.players),
		Meta:        cloneMeta(s.meta),
		Filters:     cloneFilters(s.filters),
		Drafted:     maps.Clone(s.drafted),
		Queue:       slices.Clone(s.queue),
		MySlot:      cloneInt(s.mySlot),
		CurrentPick: s.currentPick,
		Dense:       s.dense,
	}
}

// commit bumps the version and queues one event. Callers hold the write
// lock and flush after releasing it.
func (s *Store) commit(typ string, payload map[string]any) {
	s.version++
	if payload == nil {
		payload = map[string]any{}
	}
	payload["version"] = s.version
	s.pending = append(s.pending, pubsub.NewEvent(typ, s.version, payload))
}

// flush publishes queued events outside the state lock. Whoever holds pubMu
// drains everything committed so far, so a slow publisher delays other
// publishers but never readers or writers of the state.
func (s *Store) flush() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range events {
		s.pub.Publish(e)
	}
}

func (s *Store) knownLocked(id string) bool {
	_, ok := s.playerIndex[id]
	return ok
}

func (s *Store) rebuildQueueIndexLocked() {
	s.queueIndex = make(map[string]struct{}, len(s.queue))
	for _, id := range s.queue {
		s.queueIndex[id] = struct{}{}
	}
}

func indexPlayers(players []models.Player) map[string]int {
	idx := make(map[string]int, len(players))
	for i, p := range players {
		idx[p.PlayerID] = i
	}
	return idx
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFilters(f models.Filters) models.Filters {
	f.Tier = cloneInt(f.Tier)
	return f
}

func cloneMeta(m models.Meta) models.Meta {
	m.TargetYear = cloneInt(m.TargetYear)
	m.MinGames = cloneInt(m.MinGames)
	m.LookbackYears = slices.Clone(m.LookbackYears)
	m.Blend = slices.Clone(m.Blend)
	if m.PerGame != nil {
		v := *m.PerGame
		m.PerGame = &v
	}
	return m
}
