package models

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatPoints renders projected points with one decimal.
func FormatPoints(v float64) string {
	return printer.Sprintf("%.1f", v)
}

// FormatVORP renders value over replacement with an explicit sign.
func FormatVORP(v float64) string {
	if v >= 0 {
		return "+" + printer.Sprintf("%.1f", v)
	}
	return printer.Sprintf("%.1f", v)
}

// Summary renders the one-line description shown above the player table,
// e.g. "2025 projections • 2024/2023/2022 blend (50%/30%/20%)".
func (m Meta) Summary() string {
	year := 2025
	if m.TargetYear != nil {
		year = *m.TargetYear
	}

	lookback := "2024/23/22"
	if len(m.LookbackYears) > 0 {
		parts := make([]string, len(m.LookbackYears))
		for i, y := range m.LookbackYears {
			parts[i] = strconv.Itoa(y)
		}
		lookback = strings.Join(parts, "/")
	}

	out := strconv.Itoa(year) + " projections • " + lookback + " blend"
	if len(m.Blend) > 0 {
		weights := make([]string, len(m.Blend))
		for i, w := range m.Blend {
			weights[i] = strconv.Itoa(int(math.Round(w*100))) + "%"
		}
		out += " (" + strings.Join(weights, "/") + ")"
	}
	return out
}

// BlendConsistent reports whether blend weights line up with lookback years
// and stay within [0,1].
func (m Meta) BlendConsistent() bool {
	if len(m.Blend) == 0 {
		return true
	}
	if len(m.Blend) != len(m.LookbackYears) {
		return false
	}
	for _, w := range m.Blend {
		if w < 0 || w > 1 {
			return false
		}
	}
	return true
}

// MetaView is Meta with its rendered summary line.
type MetaView struct {
	Meta
	Summary string `json:"summary"`
	BlendOK bool   `json:"blendConsistent"`
}

func (m Meta) View() MetaView {
	return MetaView{Meta: m, Summary: m.Summary(), BlendOK: m.BlendConsistent()}
}
