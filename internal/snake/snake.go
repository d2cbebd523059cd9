// Package snake implements snake-draft pick arithmetic.
//
// Odd rounds run in slot order (slot 1 first), even rounds run reversed
// (slot N first). Picks and slots are 1-based. Functions are pure; callers
// pass positive inputs and get zero values back otherwise.
package snake

import (
	"errors"
	"fmt"
)

const (
	DefaultTeams       = 12
	DefaultTotalRounds = 16
)

var ErrInvalidConfig = errors.New("invalid draft config")

// Config carries the league shape. The defaults are configuration, nothing
// below assumes 12 teams or 16 rounds.
type Config struct {
	Teams       int `json:"teams"`
	TotalRounds int `json:"totalRounds"`
}

// DefaultConfig returns a 12-team, 16-round draft.
func DefaultConfig() Config {
	return Config{Teams: DefaultTeams, TotalRounds: DefaultTotalRounds}
}

// Validate checks that both dimensions are positive.
func (c Config) Validate() error {
	if c.Teams < 1 {
		return fmt.Errorf("%w: teams must be positive, got %d", ErrInvalidConfig, c.Teams)
	}
	if c.TotalRounds < 1 {
		return fmt.Errorf("%w: total rounds must be positive, got %d", ErrInvalidConfig, c.TotalRounds)
	}
	return nil
}

// TotalPicks is the number of picks in the whole draft.
func (c Config) TotalPicks() int {
	return c.Teams * c.TotalRounds
}

// ValidSlot reports whether slot is in [1, Teams].
func (c Config) ValidSlot(slot int) bool {
	return slot >= 1 && slot <= c.Teams
}

// Pick is one of a slot's picks.
type Pick struct {
	Round   int `json:"round"`
	Pick    int `json:"pick"`
	Overall int `json:"overall"`
}

// RoundOf returns ceil(overall / teams).
func RoundOf(overall, teams int) int {
	if overall < 1 || teams < 1 {
		return 0
	}
	return (overall + teams - 1) / teams
}

// PickInRound returns the 1-based position of overall within its round,
// ignoring snake reversal.
func PickInRound(overall, teams int) int {
	if overall < 1 || teams < 1 {
		return 0
	}
	return (overall-1)%teams + 1
}

// SlotPickInRound returns the position within round at which slot picks.
func SlotPickInRound(slot, round, teams int) int {
	if round%2 == 1 {
		return slot
	}
	return teams - slot + 1
}

// OverallForSlotRound returns the overall pick number of slot in round.
func OverallForSlotRound(slot, round, teams int) int {
	return (round-1)*teams + SlotPickInRound(slot, round, teams)
}

// NextTwoPicks returns slot's picks in the round containing currentPick and
// in the round after it. It does not check whether the first one has
// already passed.
func NextTwoPicks(slot, currentPick, teams int) [2]int {
	round := RoundOf(currentPick, teams)
	if round == 0 {
		round = 1
	}
	return [2]int{
		OverallForSlotRound(slot, round, teams),
		OverallForSlotRound(slot, round+1, teams),
	}
}

// PicksForSlot lists every pick slot makes in a draft of totalRounds.
func PicksForSlot(slot, teams, totalRounds int) []Pick {
	if totalRounds < 1 {
		return nil
	}
	picks := make([]Pick, 0, totalRounds)
	for round := 1; round <= totalRounds; round++ {
		picks = append(picks, Pick{
			Round:   round,
			Pick:    SlotPickInRound(slot, round, teams),
			Overall: OverallForSlotRound(slot, round, teams),
		})
	}
	return picks
}

// IsYourTurn reports whether slot is on the clock at currentPick.
func IsYourTurn(slot, currentPick, teams int) bool {
	round := RoundOf(currentPick, teams)
	if round == 0 {
		return false
	}
	return SlotPickInRound(slot, round, teams) == PickInRound(currentPick, teams)
}

// PicksUntilYourTurn counts the picks before slot's pick in the current round.
// It is zero when that pick is now or already passed.
func PicksUntilYourTurn(slot, currentPick, teams int) int {
	next := NextTwoPicks(slot, currentPick, teams)[0]
	return max(0, next-currentPick)
}

// SlotOnClock returns the slot that makes pick overall.
func SlotOnClock(overall, teams int) int {
	round := RoundOf(overall, teams)
	if round == 0 {
		return 0
	}
	pick := PickInRound(overall, teams)
	if round%2 == 1 {
		return pick
	}
	return teams - pick + 1
}

// PicksRemaining counts slot's picks at or after currentPick.
func PicksRemaining(slot, currentPick, teams, totalRounds int) int {
	n := 0
	for _, p := range PicksForSlot(slot, teams, totalRounds) {
		if p.Overall >= currentPick {
			n++
		}
	}
	return n
}

// Label renders an overall pick as "R<round>P<pick-in-round>".
func Label(overall, teams int) string {
	return fmt.Sprintf("R%dP%d", RoundOf(overall, teams), PickInRound(overall, teams))
}
