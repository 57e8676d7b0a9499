// Package validate judges committed matches by their local context: each
// match is compared with the matches around it, and matches whose
// neighborhood disagrees are invalidated. Invalidation propagates through the
// support graph until the partition settles.
package validate

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrConfig marks invalid validation options
var ErrConfig = eris.New("invalid validation options")

// ErrNotFound is returned when an object or match id is unknown
var ErrNotFound = eris.New("not found")

// Status is the validation state of a committed match
type Status int

const (
	Undiscovered Status = iota
	Queued
	Valid
	Invalid
	// New marks matches found by missing-match discovery. They never change
	// status and never support other matches.
	New
)

func (s Status) String() string {
	switch s {
	case Undiscovered:
		return "undiscovered"
	case Queued:
		return "queued"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case New:
		return "new"
	}
	return "unknown"
}

// ConfidenceRecord holds the scores behind a validation decision
type ConfidenceRecord struct {
	Context    float64
	Object     float64
	Confidence float64
	Radius     float64
	Neighbors  int
}

// Estimator names
const (
	EstimatorAngle    = "angle"
	EstimatorSequence = "sequence"
)

// Object similarity names
const (
	SimilarityDice = "dice"
	SimilarityMin  = "min"
)

// Options tunes the validation engine
type Options struct {
	Threshold      float64
	ContextWeight  float64
	MinNeighbors   int
	RadiusGrowth   float64
	MinRadius      float64
	MaxRadiusSteps int
	AngleTolerance float64
	Estimator      string
	Similarity     string
	// LinearBuffer is the buffer applied to points and lines before measuring
	// object similarity
	LinearBuffer float64
	MaxBacktrack int

	DiscoverMissing       bool
	MissingSearchDistance float64
}

// DefaultOptions returns the default tuning
func DefaultOptions() Options {
	return Options{
		Threshold:       0.8,
		ContextWeight:   0.5,
		MinNeighbors:    4,
		RadiusGrowth:    1.1,
		MinRadius:       1,
		MaxRadiusSteps:  200,
		AngleTolerance:  5,
		Estimator:       EstimatorAngle,
		Similarity:      SimilarityDice,
		LinearBuffer:    1,
		MaxBacktrack:    10000,
		DiscoverMissing: true,
	}
}

// Validate checks the option ranges
func (o Options) Validate() error {
	inUnit := func(v float64) bool { return v >= 0 && v <= 1 && !math.IsNaN(v) }
	switch {
	case !inUnit(o.Threshold):
		return eris.Wrapf(ErrConfig, "threshold %v outside [0, 1]", o.Threshold)
	case !inUnit(o.ContextWeight):
		return eris.Wrapf(ErrConfig, "context weight %v outside [0, 1]", o.ContextWeight)
	case o.MinNeighbors < 1:
		return eris.Wrapf(ErrConfig, "min neighbors must be positive, got %d", o.MinNeighbors)
	case !(o.RadiusGrowth > 1):
		return eris.Wrapf(ErrConfig, "radius growth must exceed 1, got %v", o.RadiusGrowth)
	case !(o.MinRadius > 0):
		return eris.Wrapf(ErrConfig, "min radius must be positive, got %v", o.MinRadius)
	case o.MaxRadiusSteps < 1:
		return eris.Wrapf(ErrConfig, "max radius steps must be positive, got %d", o.MaxRadiusSteps)
	case o.AngleTolerance < 0 || o.AngleTolerance > 180:
		return eris.Wrapf(ErrConfig, "angle tolerance %v outside [0, 180]", o.AngleTolerance)
	case o.LinearBuffer < 0:
		return eris.Wrapf(ErrConfig, "negative linear buffer %v", o.LinearBuffer)
	case o.MaxBacktrack < 1:
		return eris.Wrapf(ErrConfig, "max backtrack must be positive, got %d", o.MaxBacktrack)
	case o.MissingSearchDistance < 0:
		return eris.Wrapf(ErrConfig, "negative missing search distance %v", o.MissingSearchDistance)
	}
	if o.Estimator != EstimatorAngle && o.Estimator != EstimatorSequence {
		return eris.Wrapf(ErrConfig, "unknown estimator %q", o.Estimator)
	}
	if o.Similarity != SimilarityDice && o.Similarity != SimilarityMin {
		return eris.Wrapf(ErrConfig, "unknown object similarity %q", o.Similarity)
	}
	return nil
}
