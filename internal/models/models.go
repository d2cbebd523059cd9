package models

import (
	"encoding/json"
	"strings"
)

// Position is a player's roster position
type Position string

const (
	PosAll Position = "ALL"
	PosQB  Position = "QB"
	PosRB  Position = "RB"
	PosWR  Position = "WR"
	PosTE  Position = "TE"
	PosK   Position = "K"
	PosDST Position = "DST"
)

// Positions lists the concrete positions in display order.
var Positions = []Position{PosQB, PosRB, PosWR, PosTE, PosK, PosDST}

// Valid reports whether p is ALL or one of the concrete positions.
func (p Position) Valid() bool {
	if p == PosAll {
		return true
	}
	for _, pos := range Positions {
		if p == pos {
			return true
		}
	}
	return false
}

// Player is one row of players.json. Records are immutable once loaded.
type Player struct {
	PlayerID     string   `json:"player_id"`
	Name         string   `json:"name"`
	Pos          Position `json:"pos"`
	Team         string   `json:"tm"`
	Points       float64  `json:"points"`
	VORP         float64  `json:"vorp"`
	PosRank      int      `json:"pos_rank,omitempty"`
	OverallRank  int      `json:"overall_rank"`
	Tier         int      `json:"tier"`
	ReplPts      float64  `json:"repl_pts,omitempty"`
	Bye          *int     `json:"bye,omitempty"`
	PPG          *float64 `json:"ppg,omitempty"`
	GP           *int     `json:"gp,omitempty"`
	Stdev        *float64 `json:"stdev,omitempty"`
	P10Share     *float64 `json:"p10_share,omitempty"`
	P15Share     *float64 `json:"p15_share,omitempty"`
	P20Share     *float64 `json:"p20_share,omitempty"`
	RoundEst     *int     `json:"round_est,omitempty"`
	PickInRound  *int     `json:"pick_in_round,omitempty"`
	Source       string   `json:"source,omitempty"` // "blend" or "override"
	OverrideNote string   `json:"override_note,omitempty"`
}

// UnmarshalJSON accepts "team" as an alias of "tm".
func (p *Player) UnmarshalJSON(data []byte) error {
	type plain Player
	aux := struct {
		*plain
		TeamAlias string `json:"team"`
	}{plain: (*plain)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.Team == "" {
		p.Team = aux.TeamAlias
	}
	p.Pos = Position(strings.ToUpper(string(p.Pos)))
	return nil
}

// Meta describes how players.json was generated. Every field is optional.
type Meta struct {
	GeneratedAt   string    `json:"generated_at,omitempty"`
	TargetYear    *int      `json:"target_year,omitempty"`
	LookbackYears []int     `json:"lookback_years,omitempty"`
	Blend         []float64 `json:"blend,omitempty"`
	PerGame       *bool     `json:"per_game,omitempty"`
	MinGames      *int      `json:"min_games,omitempty"`
	SchemaVersion string    `json:"schema_version,omitempty"`
}

// Filters is the transient table filter state.
type Filters struct {
	Pos    Position `json:"pos"`
	Search string   `json:"search"`
	Tier   *int     `json:"tier"`
}

// DefaultFilters returns the filters that pass every player.
func DefaultFilters() Filters {
	return Filters{Pos: PosAll}
}

// PlayerRow is a player annotated with the session flags a table view needs.
type PlayerRow struct {
	Player
	Drafted    bool   `json:"drafted"`
	Queued     bool   `json:"queued"`
	QueueIndex int    `json:"queueIndex,omitempty"` // 1-based, 0 when not queued
	RoundPick  string `json:"roundPick"`
	PointsText string `json:"pointsText"`
	VORPText   string `json:"vorpText"`
}
