package scanproto

import "sort"

// SortResolutions sorts a resolution list ascending in place and drops
// duplicates, returning the (possibly shortened) slice. The sort is
// stable, so equal elements keep their relative order even when the
// list carries duplicates from a device that advertises the same
// resolution under several capability elements.
func SortResolutions(rs []int) []int {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i] < rs[j] })
	out := rs[:0]
	for i, r := range rs {
		if i == 0 || r != rs[i-1] {
			out = append(out, r)
		}
	}
	return out
}

// BoundResolutions drops every element outside [min, max], preserving
// order. Used by vendor quirks that clamp a device's advertised
// resolution list to what its firmware actually handles.
func BoundResolutions(rs []int, min, max int) []int {
	out := make([]int, 0, len(rs))
	for _, r := range rs {
		if r >= min && r <= max {
			out = append(out, r)
		}
	}
	return out
}
