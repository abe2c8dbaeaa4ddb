package mirror

import (
	"cmp"
	"slices"
)

// Rank returns a copy of survivors sorted by score ascending. Equal scores keep
// their input order. Every element must have a score; Filter guarantees that.
func Rank(survivors []Endpoint) []Endpoint {
	ranked := slices.Clone(survivors)
	slices.SortStableFunc(ranked, func(a, b Endpoint) int {
		return cmp.Compare(*a.Score, *b.Score)
	})
	return ranked
}

// Select filters candidates by c and ranks the survivors.
func Select(candidates []Endpoint, c Criteria) []Endpoint {
	return Rank(Filter(candidates, c))
}
