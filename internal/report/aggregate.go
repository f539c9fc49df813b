// Package report turns query results into per-year aggregates and chart
// layouts.
package report

import (
	"sort"

	"rekord/internal/core"
)

// Aggregate groups rows by year and counts them, ascending by year.
func Aggregate(t *core.Table) []core.YearCount {
	if t.Empty() {
		return []core.YearCount{}
	}

	counts := make(map[int]int)
	for _, r := range t.Records {
		counts[r.Year]++
	}

	out := make([]core.YearCount, 0, len(counts))
	for year, n := range counts {
		out = append(out, core.YearCount{Year: year, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Total sums the counts.
func Total(counts []core.YearCount) int {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return total
}

// Max returns the largest count, or 0.
func Max(counts []core.YearCount) int {
	m := 0
	for _, c := range counts {
		if c.Count > m {
			m = c.Count
		}
	}
	return m
}
