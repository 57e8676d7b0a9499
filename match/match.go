// Package match holds scored candidate correspondences between source and
// target objects and the MatchMap that deduplicates and filters them.
package match

import (
	"fmt"

	"github.com/kwv/geoconflate/feature"
)

// Match is a scored correspondence between a source and a target object
type Match struct {
	Source *feature.Object
	Target *feature.Object
	Score  float64
}

// New creates a Match
func New(source, target *feature.Object, score float64) Match {
	return Match{Source: source, Target: target, Score: score}
}

// SourceID returns the id of the source object, 0 when missing
func (m Match) SourceID() int {
	if m.Source == nil {
		return 0
	}
	return m.Source.ID
}

// TargetID returns the id of the target object, 0 when missing
func (m Match) TargetID() int {
	if m.Target == nil {
		return 0
	}
	return m.Target.ID
}

// Equal reports whether both matches link the same ids with the same score
func (m Match) Equal(o Match) bool {
	return m.SourceID() == o.SourceID() && m.TargetID() == o.TargetID() && m.Score == o.Score
}

// Less orders matches by descending score, then ascending source id, then
// ascending target id
func (m Match) Less(o Match) bool {
	if m.Score != o.Score {
		return m.Score > o.Score
	}
	if m.SourceID() != o.SourceID() {
		return m.SourceID() < o.SourceID()
	}
	return m.TargetID() < o.TargetID()
}

// Combine returns a copy whose score is multiplied by factor
func (m Match) Combine(factor float64) Match {
	m.Score *= factor
	return m
}

func (m Match) String() string {
	return fmt.Sprintf("%d->%d (%.3f)", m.SourceID(), m.TargetID(), m.Score)
}
