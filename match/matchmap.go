package match

import (
	"sort"

	"go.uber.org/zap"
)

// Handle addresses a Match record inside a MatchMap arena
type Handle int

type pair struct {
	source, target int
}

// MatchMap is a deduplicated set of matches. Records live in an arena and
// are addressed by stable handles; the by-source and by-target indices store
// handles only. At most one record is retained per (source, target) pair.
type MatchMap struct {
	arena    []*Match
	byPair   map[pair]Handle
	bySource map[int][]Handle
	byTarget map[int][]Handle
	size     int
}

// NewMatchMap creates an empty MatchMap
func NewMatchMap() *MatchMap {
	return &MatchMap{
		byPair:   make(map[pair]Handle),
		bySource: make(map[int][]Handle),
		byTarget: make(map[int][]Handle),
	}
}

// Add inserts m. When a record for the same pair exists it is replaced only
// if m scores strictly higher. Returns the handle of the retained record and
// whether m was stored.
func (mm *MatchMap) Add(m Match) (Handle, bool) {
	key := pair{m.SourceID(), m.TargetID()}
	if h, ok := mm.byPair[key]; ok {
		existing := mm.arena[h]
		if m.Score > existing.Score {
			*existing = m
			return h, true
		}
		return h, false
	}

	h := Handle(len(mm.arena))
	rec := m
	mm.arena = append(mm.arena, &rec)
	mm.byPair[key] = h
	mm.bySource[key.source] = append(mm.bySource[key.source], h)
	mm.byTarget[key.target] = append(mm.byTarget[key.target], h)
	mm.size++
	return h, true
}

// Get returns the retained match for a pair
func (mm *MatchMap) Get(sourceID, targetID int) (Match, bool) {
	h, ok := mm.byPair[pair{sourceID, targetID}]
	if !ok {
		return Match{}, false
	}
	return *mm.arena[h], true
}

// Remove deletes the record for m's pair, if any
func (mm *MatchMap) Remove(m Match) bool {
	key := pair{m.SourceID(), m.TargetID()}
	h, ok := mm.byPair[key]
	if !ok {
		return false
	}
	delete(mm.byPair, key)
	mm.arena[h] = nil
	mm.bySource[key.source] = removeHandle(mm.bySource[key.source], h)
	if len(mm.bySource[key.source]) == 0 {
		delete(mm.bySource, key.source)
	}
	mm.byTarget[key.target] = removeHandle(mm.byTarget[key.target], h)
	if len(mm.byTarget[key.target]) == 0 {
		delete(mm.byTarget, key.target)
	}
	mm.size--
	return true
}

func removeHandle(hs []Handle, h Handle) []Handle {
	for i, x := range hs {
		if x == h {
			return append(hs[:i], hs[i+1:]...)
		}
	}
	zap.L().Warn("match: index out of sync with arena", zap.Int("handle", int(h)))
	return hs
}

// Combine multiplies the score of the record for a pair by factor.
// Returns the updated match.
func (mm *MatchMap) Combine(sourceID, targetID int, factor float64) (Match, bool) {
	h, ok := mm.byPair[pair{sourceID, targetID}]
	if !ok {
		return Match{}, false
	}
	*mm.arena[h] = mm.arena[h].Combine(factor)
	return *mm.arena[h], true
}

// Len returns the number of retained matches
func (mm *MatchMap) Len() int {
	return mm.size
}

// All returns every retained match in Match ordering
func (mm *MatchMap) All() []Match {
	out := make([]Match, 0, mm.size)
	for _, m := range mm.arena {
		if m != nil {
			out = append(out, *m)
		}
	}
	sortMatches(out)
	return out
}

// MatchesForSource returns the matches of a source object in Match ordering
func (mm *MatchMap) MatchesForSource(sourceID int) []Match {
	return mm.resolve(mm.bySource[sourceID])
}

// MatchesForTarget returns the matches of a target object in Match ordering
func (mm *MatchMap) MatchesForTarget(targetID int) []Match {
	return mm.resolve(mm.byTarget[targetID])
}

func (mm *MatchMap) resolve(hs []Handle) []Match {
	out := make([]Match, 0, len(hs))
	for _, h := range hs {
		if m := mm.arena[h]; m != nil {
			out = append(out, *m)
		}
	}
	sortMatches(out)
	return out
}

// SourceIDs returns the ids of matched source objects in ascending order
func (mm *MatchMap) SourceIDs() []int {
	return sortedKeys(mm.bySource)
}

// TargetIDs returns the ids of matched target objects in ascending order
func (mm *MatchMap) TargetIDs() []int {
	return sortedKeys(mm.byTarget)
}

func sortedKeys(m map[int][]Handle) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Filter resolves cardinality greedily: the highest-ranked remaining match
// is committed, then every other remaining match sharing its source
// (singleTargetPerSource) and/or its target (singleSourcePerTarget) is
// discarded. With neither flag the receiver is returned unchanged.
func (mm *MatchMap) Filter(singleTargetPerSource, singleSourcePerTarget bool) *MatchMap {
	if !singleTargetPerSource && !singleSourcePerTarget {
		return mm
	}

	out := NewMatchMap()
	usedSources := make(map[int]bool)
	usedTargets := make(map[int]bool)
	for _, m := range mm.All() {
		if singleTargetPerSource && usedSources[m.SourceID()] {
			continue
		}
		if singleSourcePerTarget && usedTargets[m.TargetID()] {
			continue
		}
		out.Add(m)
		usedSources[m.SourceID()] = true
		usedTargets[m.TargetID()] = true
	}
	return out
}

func sortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Less(ms[j]) })
}
