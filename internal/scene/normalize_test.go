package scene

import (
	"math"
	"testing"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

const epsilon = 1e-9

func TestNormalizeCentersScene(t *testing.T) {
	sc := NewScene("box", "obj")
	sc.Meshes = append(sc.Meshes, &Mesh{
		Vertices: []vec3d.T{
			{10, 20, 30},
			{14, 22, 36},
			{12, 21, 33},
		},
		Faces: [][3]uint32{{0, 1, 2}},
	})

	framing := Normalize(sc)

	box := sc.Bounds()
	for i := 0; i < 3; i++ {
		center := (box.Min[i] + box.Max[i]) / 2
		if math.Abs(center) > epsilon {
			t.Errorf("axis %d: bounding box center %g, want 0", i, center)
		}
	}

	// Largest extent is 6 on the z axis.
	wantDist := 6 * DistanceFactor
	if math.Abs(framing.Distance-wantDist) > epsilon {
		t.Errorf("distance = %g, want %g", framing.Distance, wantDist)
	}
	if framing.Distance <= 0 {
		t.Error("camera distance must be strictly positive")
	}
	if framing.Target != (vec3d.T{0, 0, 0}) {
		t.Errorf("target = %v, want origin", framing.Target)
	}

	want := vec3d.T{wantDist, wantDist * 0.8, wantDist}
	for i := 0; i < 3; i++ {
		if math.Abs(framing.Position[i]-want[i]) > epsilon {
			t.Errorf("position[%d] = %g, want %g", i, framing.Position[i], want[i])
		}
	}
}

func TestNormalizeSpansMultipleMeshes(t *testing.T) {
	sc := NewScene("two", "ply")
	sc.Meshes = append(sc.Meshes,
		&Mesh{Vertices: []vec3d.T{{-4, 0, 0}}},
		&Mesh{Vertices: []vec3d.T{{8, 0, 0}}},
	)

	Normalize(sc)

	if got := sc.Meshes[0].Vertices[0][0]; math.Abs(got+6) > epsilon {
		t.Errorf("first mesh vertex x = %g, want -6", got)
	}
	if got := sc.Meshes[1].Vertices[0][0]; math.Abs(got-6) > epsilon {
		t.Errorf("second mesh vertex x = %g, want 6", got)
	}
}

func TestNormalizeDegenerateScene(t *testing.T) {
	single := NewScene("point", "ply")
	single.Meshes = append(single.Meshes, &Mesh{Vertices: []vec3d.T{{5, 5, 5}}})

	framing := Normalize(single)
	if framing.Distance != MinFramingDistance {
		t.Errorf("single point distance = %g, want fallback %g", framing.Distance, MinFramingDistance)
	}
	if single.Meshes[0].Vertices[0] != (vec3d.T{0, 0, 0}) {
		t.Errorf("single point not moved to origin: %v", single.Meshes[0].Vertices[0])
	}

	empty := NewScene("empty", "obj")
	framing = Normalize(empty)
	if framing.Distance != MinFramingDistance {
		t.Errorf("empty scene distance = %g, want fallback %g", framing.Distance, MinFramingDistance)
	}
	if framing.Position == framing.Target {
		t.Error("degenerate framing must not collapse position onto target")
	}
}
