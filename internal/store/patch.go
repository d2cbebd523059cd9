package store

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/Billy-Davies-2/draftkit/internal/filter"
	"github.com/Billy-Davies-2/draftkit/internal/models"
)

// FiltersPatch is a partial filter update. Nil fields keep their value.
type FiltersPatch struct {
	Pos    *string      `json:"pos,omitempty"`
	Search *string      `json:"search,omitempty"`
	Tier   OptionalTier `json:"tier"`
}

// OptionalTier distinguishes "not given" from "cleared". Malformed input
// clears the tier filter.
type OptionalTier struct {
	Set   bool
	Value *int
}

// TierPatch sets the tier filter to v, or clears it when v is nil.
func TierPatch(v *int) OptionalTier {
	return OptionalTier{Set: true, Value: v}
}

// UnmarshalJSON accepts a number, a numeric string, null or anything else
// (treated as null).
func (t *OptionalTier) UnmarshalJSON(data []byte) error {
	t.Set = true
	t.Value = nil

	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Value = filter.ParseTier(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil && f == float64(int(f)) {
		t.Value = filter.ParseTier(strconv.Itoa(int(f)))
	}
	return nil
}

func (t OptionalTier) MarshalJSON() ([]byte, error) {
	if !t.Set || t.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*t.Value)
}

// apply merges p into f.
func (p FiltersPatch) apply(f models.Filters) models.Filters {
	if p.Pos != nil {
		f.Pos = filter.ParsePosition(*p.Pos)
	}
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.Tier.Set {
		f.Tier = cloneInt(p.Tier.Value)
	}
	return f
}

// PatchFromQuery builds a patch from raw string inputs such as URL query
// values; absent keys are left untouched.
func PatchFromQuery(get func(string) (string, bool)) FiltersPatch {
	var p FiltersPatch
	if v, ok := get("pos"); ok {
		p.Pos = &v
	}
	if v, ok := get("search"); ok {
		p.Search = &v
	}
	if v, ok := get("tier"); ok {
		p.Tier = TierPatch(filter.ParseTier(v))
	}
	return p
}

// Over returns f with the patch applied.
func (p FiltersPatch) Over(f models.Filters) models.Filters {
	return p.apply(cloneFilters(f))
}

// Filters returns a full filter value built from the patch over defaults.
func (p FiltersPatch) Filters() models.Filters {
	return p.apply(models.DefaultFilters())
}
