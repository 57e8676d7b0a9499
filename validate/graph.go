package validate

import (
	"fmt"
	"sort"
)

type nodeSet map[int]struct{}

func (s nodeSet) sorted() []int {
	out := make([]int, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// SupportGraph records which matches were used as neighbors of which.
// supportedBy(m) lists the neighbors that scored m; supports(n) lists the
// matches that used n. Both directions are kept in step except for one-way
// nodes, whose supportedBy edges have no reciprocal.
type SupportGraph struct {
	supportedBy map[int]nodeSet
	supports    map[int]nodeSet
	oneWay      map[int]bool
}

// NewSupportGraph creates an empty graph
func NewSupportGraph() *SupportGraph {
	return &SupportGraph{
		supportedBy: make(map[int]nodeSet),
		supports:    make(map[int]nodeSet),
		oneWay:      make(map[int]bool),
	}
}

// SetSupportedBy replaces the neighbors of m. Stale edges and their
// reciprocals are removed. With oneWay the reciprocal supports edges are
// not written.
func (g *SupportGraph) SetSupportedBy(m int, neighbors []int, oneWay bool) {
	for n := range g.supportedBy[m] {
		if s, ok := g.supports[n]; ok {
			delete(s, m)
			if len(s) == 0 {
				delete(g.supports, n)
			}
		}
	}

	set := make(nodeSet, len(neighbors))
	for _, n := range neighbors {
		if n == m {
			continue
		}
		set[n] = struct{}{}
		if oneWay {
			continue
		}
		if g.supports[n] == nil {
			g.supports[n] = make(nodeSet)
		}
		g.supports[n][m] = struct{}{}
	}
	g.supportedBy[m] = set
	if oneWay {
		g.oneWay[m] = true
	} else {
		delete(g.oneWay, m)
	}
}

// SupportedBy returns the neighbors of m in ascending order
func (g *SupportGraph) SupportedBy(m int) []int {
	return g.supportedBy[m].sorted()
}

// Supports returns the matches that use m as a neighbor, in ascending order
func (g *SupportGraph) Supports(m int) []int {
	return g.supports[m].sorted()
}

// CheckSymmetry lists every edge present in one direction only
func (g *SupportGraph) CheckSymmetry() []string {
	var out []string
	for m, ns := range g.supportedBy {
		if g.oneWay[m] {
			continue
		}
		for n := range ns {
			if _, ok := g.supports[n][m]; !ok {
				out = append(out, fmt.Sprintf("%d supported by %d without reciprocal", m, n))
			}
		}
	}
	for n, ms := range g.supports {
		for m := range ms {
			if _, ok := g.supportedBy[m][n]; !ok {
				out = append(out, fmt.Sprintf("%d supports %d without reciprocal", n, m))
			} else if g.oneWay[m] {
				out = append(out, fmt.Sprintf("%d supports one-way node %d", n, m))
			}
		}
	}
	sort.Strings(out)
	return out
}

// Clusters counts the connected groups among nodes 0..n-1
func (g *SupportGraph) Clusters(n int) int {
	uf := newUnionFind(n)
	for m, ns := range g.supportedBy {
		for k := range ns {
			if m < n && k < n {
				uf.union(m, k)
			}
		}
	}
	roots := make(map[int]struct{})
	for i := 0; i < n; i++ {
		roots[uf.find(i)] = struct{}{}
	}
	return len(roots)
}

// unionFind is a disjoint-set forest with path halving
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}
