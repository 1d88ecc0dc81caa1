package model

import (
	"slices"
	"time"
)

// NormalizeSeasons returns a sorted, de-duplicated copy of seasons.
// ok is false if any season number is not positive.
func NormalizeSeasons(seasons []int) (out []int, ok bool) {
	out = make([]int, 0, len(seasons))
	for _, s := range seasons {
		if s <= 0 {
			return nil, false
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return slices.Compact(out), true
}

// Stamp normalizes t for storage: UTC, no monotonic reading.
func Stamp(t time.Time) time.Time {
	return t.UTC().Round(0)
}

// TimePtr returns a pointer to a stamped copy of t.
func TimePtr(t time.Time) *time.Time {
	s := Stamp(t)
	return &s
}
