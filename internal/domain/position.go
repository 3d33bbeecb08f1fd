package domain

import (
	"errors"
	"math"
)

// Position is a hotspot location in percent of the question image's bounding box.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DefaultHitRadius is how far, in percent, a click may land from a marker and still select it.
const DefaultHitRadius = 5.0

var ErrEmptyImageBox = errors.New("image bounding box has zero size")

// PositionFromPixels converts a click offset inside a rendered image box to percent.
// Offsets outside the box are clamped to its edge.
func PositionFromPixels(offsetX, offsetY, width, height float64) (Position, error) {
	if width <= 0 || height <= 0 {
		return Position{}, ErrEmptyImageBox
	}
	p := Position{X: offsetX * 100 / width, Y: offsetY * 100 / height}
	return p.Clamp(), nil
}

// Clamp limits both coordinates to [0,100]. NaN becomes 0.
func (p Position) Clamp() Position {
	return Position{X: clampPercent(p.X), Y: clampPercent(p.Y)}
}

// InBounds reports whether both coordinates lie in [0,100].
func (p Position) InBounds() bool {
	return p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100
}

// Distance is the euclidean distance between two positions in percent units.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// NearestMarker returns the index of the positioned answer closest to p within
// radius, or -1 when no marker is close enough.
func NearestMarker(answers []Answer, p Position, radius float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, a := range answers {
		if a.Position == nil {
			continue
		}
		if d := a.Position.Distance(p); d <= radius && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
