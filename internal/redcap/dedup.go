package redcap

import (
	"sort"

	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// Keyed is satisfied by every current-row type a yearly merge operates
// over: anything with a primary-key projection.
type Keyed interface {
	PK() types.Key
}

// MergeYears combines a first-year and a second-year row sequence into
// one, per spec §4.6: first is inserted into a sequence sorted by
// primary key, then every second-year row is binary-searched against
// that sequence and inserted only when its key is absent. A key present
// in both years keeps the first year's row untouched — "first writer
// wins by year order" (spec §9's open question on the
// updated-in-a-later-year case is preserved here, not resolved).
func MergeYears[T Keyed](first, second []T) []T {
	merged := make([]T, len(first))
	copy(merged, first)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].PK().Less(merged[j].PK()) })

	for _, row := range second {
		if !pkPresent(merged, row.PK()) {
			merged = insertSorted(merged, row)
		}
	}
	return merged
}

// pkPresent binary-searches sorted (a PK-ascending sequence) for key.
func pkPresent[T Keyed](sorted []T, key types.Key) bool {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].PK().Less(key) })
	return i < len(sorted) && sorted[i].PK().Equal(key)
}

// insertSorted inserts row into sorted (a PK-ascending sequence) at the
// position its key belongs, preserving order.
func insertSorted[T Keyed](sorted []T, row T) []T {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].PK().Less(row.PK()) })
	var zero T
	sorted = append(sorted, zero)
	copy(sorted[i+1:], sorted[i:len(sorted)-1])
	sorted[i] = row
	return sorted
}
