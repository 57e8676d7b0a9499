package validate

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/kwv/geoconflate/geometry"
)

// ObjectSimilarity measures the area shared by the two geometries of a
// match. Points and lines are buffered first.
type ObjectSimilarity struct {
	Kind   string
	Buffer float64
}

// NewObjectSimilarity validates the kind
func NewObjectSimilarity(kind string, buffer float64) (ObjectSimilarity, error) {
	if kind != SimilarityDice && kind != SimilarityMin {
		return ObjectSimilarity{}, eris.Wrapf(ErrConfig, "unknown object similarity %q", kind)
	}
	return ObjectSimilarity{Kind: kind, Buffer: buffer}, nil
}

func (s ObjectSimilarity) region(g orb.Geometry) geometry.Region {
	if geometry.Dimension(g) == 2 {
		return geometry.AsRegion(g)
	}
	return geometry.Buffer(g, s.Buffer)
}

// Score returns 2|A∩B|/(|A|+|B|) for dice or |A∩B|/min(|A|,|B|) for min
func (s ObjectSimilarity) Score(a, b orb.Geometry) float64 {
	if a == nil || b == nil {
		return 0
	}
	ra, rb := s.region(a), s.region(b)
	inter := geometry.IntersectionArea(ra, rb)
	if inter <= 0 {
		return 0
	}
	areaA, areaB := geometry.RegionArea(ra), geometry.RegionArea(rb)
	var v float64
	switch s.Kind {
	case SimilarityMin:
		m := math.Min(areaA, areaB)
		if m <= 0 {
			return 0
		}
		v = inter / m
	default:
		if areaA+areaB <= 0 {
			return 0
		}
		v = 2 * inter / (areaA + areaB)
	}
	return math.Min(1, v)
}
