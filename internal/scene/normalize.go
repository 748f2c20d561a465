package scene

import (
	vec3d "github.com/flywave/go3d/float64/vec3"
)

const (
	// DistanceFactor scales the largest bounding-box dimension into the
	// initial camera distance.
	DistanceFactor = 2.5

	// MinFramingDistance is the fallback camera distance for scenes with
	// zero extent (a single point, or no geometry at all).
	MinFramingDistance = 10.0
)

// Framing is the initial camera placement derived from scene extent.
type Framing struct {
	Position vec3d.T
	Target   vec3d.T
	Distance float64
}

// Normalize translates every vertex of every mesh so the scene's
// bounding-box center sits at the origin, then derives the initial camera
// framing from the largest box dimension. The translation is applied once,
// destructively, to the owned scene; callers must not normalize twice.
func Normalize(s *Scene) Framing {
	box := s.Bounds()

	var center vec3d.T
	var maxDim float64
	if s.VertexCount() > 0 {
		center = vec3d.T{
			(box.Min[0] + box.Max[0]) / 2,
			(box.Min[1] + box.Max[1]) / 2,
			(box.Min[2] + box.Max[2]) / 2,
		}
		for i := 0; i < 3; i++ {
			if d := box.Max[i] - box.Min[i]; d > maxDim {
				maxDim = d
			}
		}
	}

	offset := center
	offset.Scale(-1)
	for _, m := range s.Meshes {
		for i := range m.Vertices {
			m.Vertices[i].Add(&offset)
		}
	}

	dist := maxDim * DistanceFactor
	if dist <= 0 {
		dist = MinFramingDistance
	}

	return Framing{
		Position: vec3d.T{dist, dist * 0.8, dist},
		Target:   vec3d.T{0, 0, 0},
		Distance: dist,
	}
}
