package matcher

import (
	"sort"

	"github.com/kwv/geoconflate/feature"
)

// AttributeIndex answers which target objects carry a value close to a
// query value. Values are indexed after the target rule; queries are expected
// to be already rewritten by the source rule.
type AttributeIndex interface {
	Query(value string) []*feature.Object
	Len() int
}

// exactIndex maps a key derived from the value to the objects carrying it
type exactIndex struct {
	key    func(string) string
	values map[string][]*feature.Object
	n      int
}

func newExactIndex(key func(string) string) *exactIndex {
	return &exactIndex{key: key, values: make(map[string][]*feature.Object)}
}

func (x *exactIndex) add(value string, o *feature.Object) {
	k := x.key(value)
	x.values[k] = append(x.values[k], o)
	x.n++
}

func (x *exactIndex) Query(value string) []*feature.Object {
	return sortedUnique(x.values[x.key(value)])
}

func (x *exactIndex) Len() int { return x.n }

// BKTree indexes strings under an integer metric and finds every value
// within a distance of a query.
type BKTree struct {
	root     *bkNode
	size     int
	distance func(a, b string) int
}

type bkNode struct {
	value    string
	objects  []*feature.Object
	children map[int]*bkNode
}

// BKResult is one value found by a BKTree search
type BKResult struct {
	Value    string
	Distance int
	Objects  []*feature.Object
}

// NewBKTree creates an empty tree over a metric
func NewBKTree(distance func(a, b string) int) *BKTree {
	return &BKTree{distance: distance}
}

// Insert adds a value and the object carrying it. Equal values share a node.
func (t *BKTree) Insert(value string, o *feature.Object) {
	t.size++
	if t.root == nil {
		t.root = &bkNode{value: value, objects: []*feature.Object{o}, children: make(map[int]*bkNode)}
		return
	}
	current := t.root
	for {
		d := t.distance(value, current.value)
		if d == 0 {
			current.objects = append(current.objects, o)
			return
		}
		child, ok := current.children[d]
		if !ok {
			current.children[d] = &bkNode{value: value, objects: []*feature.Object{o}, children: make(map[int]*bkNode)}
			return
		}
		current = child
	}
}

// Len returns the number of inserted (value, object) entries
func (t *BKTree) Len() int { return t.size }

// Search returns every indexed value within maxDistance of query
func (t *BKTree) Search(query string, maxDistance int) []BKResult {
	if t.root == nil || maxDistance < 0 {
		return nil
	}
	var results []BKResult
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := t.distance(query, node.value)
		if d <= maxDistance {
			results = append(results, BKResult{Value: node.value, Distance: d, Objects: node.objects})
		}
		// triangle inequality bounds the children worth visiting
		for cd, child := range node.children {
			if cd >= d-maxDistance && cd <= d+maxDistance {
				stack = append(stack, child)
			}
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Value < results[j].Value
	})
	return results
}

// editIndex answers edit-distance queries through a BK-tree. The tree metric
// may be looser than the matcher distance; accept re-checks each candidate.
type editIndex struct {
	tree   *BKTree
	radius int
	accept func(query, value string) bool
	all    []*feature.Object
}

func (x *editIndex) Query(value string) []*feature.Object {
	if x.radius < 0 {
		return sortedUnique(x.all)
	}
	var out []*feature.Object
	for _, r := range x.tree.Search(value, x.radius) {
		if x.accept(value, r.Value) {
			out = append(out, r.Objects...)
		}
	}
	return sortedUnique(out)
}

func (x *editIndex) Len() int { return x.tree.Len() }

func sortedUnique(objs []*feature.Object) []*feature.Object {
	if len(objs) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(objs))
	out := make([]*feature.Object, 0, len(objs))
	for _, o := range objs {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		out = append(out, o)
	}
	feature.SortByID(out)
	return out
}
