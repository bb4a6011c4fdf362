// Package fragment implements interval algebra over the used and
// free byte ranges of an archive. Ranges are half-open, kept sorted,
// and merged so that no two stored ranges overlap or touch.
package fragment

import (
	"fmt"
	"slices"
	"sort"

	"github.com/meigma/pak/internal/paktype"
)

// Range is a half-open byte interval [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the range's length in bytes.
func (r Range) Len() int64 { return r.End - r.Start }

// Map tracks used intervals within [0, Size()).
type Map struct {
	size   int64
	ranges []Range
}

// New creates an empty map covering [0, size).
func New(size int64) *Map {
	return &Map{size: size}
}

// Size returns the total tracked size.
func (m *Map) Size() int64 { return m.size }

// Len returns the number of merged intervals.
func (m *Map) Len() int { return len(m.ranges) }

// Ranges returns the merged intervals in ascending order. The
// returned slice is a copy.
func (m *Map) Ranges() []Range {
	return slices.Clone(m.ranges)
}

// Add marks [start, end) as used. Empty ranges are a no-op; ranges
// outside [0, size] fail with ErrRange. Overlapping or touching
// intervals are merged in a single pass.
func (m *Map) Add(start, end int64) error {
	if start >= end {
		return nil
	}
	if start < 0 || start >= m.size || end > m.size {
		return fmt.Errorf("%w: (%d, %d] of %d", paktype.ErrRange, start, end, m.size)
	}

	// First stored range that ends at or after the new start; every
	// range from there on that starts at or before the new end gets
	// absorbed.
	i := sort.Search(len(m.ranges), func(i int) bool {
		return m.ranges[i].End >= start
	})
	j := i
	for j < len(m.ranges) && m.ranges[j].Start <= end {
		if m.ranges[j].Start < start {
			start = m.ranges[j].Start
		}
		if m.ranges[j].End > end {
			end = m.ranges[j].End
		}
		j++
	}
	m.ranges = slices.Replace(m.ranges, i, j, Range{Start: start, End: end})
	return nil
}

// Invert returns the complement: the free intervals between the used
// ones, including the trailing gap up to the total size.
func (m *Map) Invert() *Map {
	inverted := New(m.size)
	var prevEnd int64
	for _, r := range m.ranges {
		if r.Start > prevEnd {
			inverted.ranges = append(inverted.ranges, Range{Start: prevEnd, End: r.Start})
		}
		prevEnd = r.End
	}
	if m.size > prevEnd {
		inverted.ranges = append(inverted.ranges, Range{Start: prevEnd, End: m.size})
	}
	return inverted
}

// Free returns the number of bytes not covered by any interval.
func (m *Map) Free() int64 {
	free := m.size
	for _, r := range m.ranges {
		free -= r.Len()
	}
	return free
}
