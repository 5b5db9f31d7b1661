package file

import "sort"

// span is a half-open byte range [start, end).
type span struct {
	start, end uint64
}

// coverage is a sorted set of disjoint, non-adjacent byte ranges.
type coverage struct {
	spans []span
}

// add marks [start, end) as covered and returns how many of those bytes
// were not covered before.
func (c *coverage) add(start, end uint64) uint64 {
	if end <= start {
		return 0
	}
	// First span that could touch the new range.
	i := sort.Search(len(c.spans), func(i int) bool { return c.spans[i].end >= start })
	j := i
	merged := span{start: start, end: end}
	var overlap uint64
	for ; j < len(c.spans) && c.spans[j].start <= end; j++ {
		s := c.spans[j]
		lo, hi := max(s.start, start), min(s.end, end)
		if hi > lo {
			overlap += hi - lo
		}
		merged.start = min(merged.start, s.start)
		merged.end = max(merged.end, s.end)
	}
	c.spans = append(c.spans[:i], append([]span{merged}, c.spans[j:]...)...)
	return (end - start) - overlap
}

// covered returns the total number of covered bytes.
func (c *coverage) covered() uint64 {
	var n uint64
	for _, s := range c.spans {
		n += s.end - s.start
	}
	return n
}
