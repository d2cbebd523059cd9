// Package overrides applies manual point overrides (rookies, role changes)
// read from a CSV file to a loaded player list.
package overrides

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Billy-Davies-2/draftkit/internal/models"
)

const (
	SourceBlend    = "blend"
	SourceOverride = "override"
)

var requiredColumns = []string{"player_id", "name", "pos", "tm", "points"}

var ErrMissingColumns = errors.New("override file missing required columns")

// Override is one parsed CSV row.
type Override struct {
	PlayerID string
	Name     string
	Pos      models.Position
	Team     string
	Points   float64
	Note     string
}

// Result reports what Apply did.
type Result struct {
	Applied  int      `json:"applied"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings"`
}

// Parse reads overrides from r. Rows with non-numeric, non-finite or negative
// points are skipped and counted.
func Parse(r io.Reader) ([]Override, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("%w: empty file", ErrMissingColumns)
		}
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Override
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}
		points, err := strconv.ParseFloat(field(rec, "points"), 64)
		if err != nil || points < 0 || math.IsNaN(points) || math.IsInf(points, 0) || field(rec, "player_id") == "" {
			skipped++
			continue
		}
		out = append(out, Override{
			PlayerID: field(rec, "player_id"),
			Name:     field(rec, "name"),
			Pos:      models.Position(strings.ToUpper(field(rec, "pos"))),
			Team:     field(rec, "tm"),
			Points:   points,
			Note:     field(rec, "note"),
		})
	}
	return out, skipped, nil
}

// Apply returns a copy of players with overrides applied. Players that are not
// overridden and carry no source are marked as blend.
func Apply(players []models.Player, overrides []Override) ([]models.Player, Result) {
	res := Result{Warnings: []string{}}
	index := make(map[string]int, len(players))
	for i, p := range players {
		index[p.PlayerID] = i
	}

	out := make([]models.Player, len(players))
	copy(out, players)
	for i := range out {
		if out[i].Source == "" {
			out[i].Source = SourceBlend
		}
	}

	for _, o := range overrides {
		i, ok := index[o.PlayerID]
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("override for %s (%s): player not found", o.Name, o.PlayerID))
			continue
		}
		p := &out[i]
		if o.Pos != "" && o.Pos != p.Pos {
			res.Warnings = append(res.Warnings, fmt.Sprintf("position mismatch for %s: override=%s, data=%s", o.Name, o.Pos, p.Pos))
		}
		if o.Team != "" && !strings.EqualFold(o.Team, p.Team) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("team mismatch for %s: override=%s, data=%s", o.Name, o.Team, p.Team))
		}
		if o.Points > 500 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("very high points for %s: %.1f", o.Name, o.Points))
		}
		p.Points = o.Points
		p.Source = SourceOverride
		p.OverrideNote = o.Note
		res.Applied++
	}
	return out, res
}

// Import parses r and applies it to players.
func Import(players []models.Player, r io.Reader) ([]models.Player, Result, error) {
	ovs, skipped, err := Parse(r)
	if err != nil {
		return nil, Result{}, err
	}
	out, res := Apply(players, ovs)
	res.Skipped = skipped
	return out, res, nil
}
