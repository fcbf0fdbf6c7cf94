// Package geometry holds the pure distance/volume/pan math.
package geometry

import (
	"math"

	"github.com/dkeye/ProximityVoice/internal/domain"
)

// Distance returns the Euclidean distance between two samples.
func Distance(a, b domain.PositionSample) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Volume maps a distance onto [0,1]: full volume up to near, silence
// from far, linear falloff between. Non-finite input yields silence.
func Volume(d, near, far float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	if d <= near {
		return 1
	}
	if d >= far || far <= near {
		return 0
	}
	v := 1 - (d-near)/(far-near)
	return clamp(v, 0, 1)
}

// Pan maps a horizontal offset onto [-1,1]; positive dx (peer to the
// right of self) pans right. Non-finite input centers the pan.
func Pan(dx, panRange float64) float64 {
	if math.IsNaN(dx) || math.IsInf(dx, 0) || panRange <= 0 {
		return 0
	}
	return clamp(dx/panRange, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
