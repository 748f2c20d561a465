// Package scene holds the canonical in-memory model every decoder produces
// and every encoder consumes.
package scene

import (
	vec2d "github.com/flywave/go3d/float64/vec2"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// Material is a single flat material. Formats that carry no material data
// (STL, PLY) get DefaultMaterial on decode.
type Material struct {
	BaseColor [4]float64 `json:"baseColor"`
	Metallic  float64    `json:"metallic"`
	Roughness float64    `json:"roughness"`
}

// DefaultMaterial returns the placeholder material: gray, slightly metallic,
// fairly rough.
func DefaultMaterial() *Material {
	return &Material{
		BaseColor: [4]float64{0.78, 0.78, 0.78, 1},
		Metallic:  0.25,
		Roughness: 0.6,
	}
}

// Mesh is one decoded mesh. Attribute slices are planar: Normals, TexCoords
// and Colors are either empty or exactly len(Vertices) long. Faces are
// triangles indexing into Vertices. A mesh is not mutated after decode
// except for the translation applied by Normalize.
type Mesh struct {
	Vertices  []vec3d.T   `json:"vertices"`
	Normals   []vec3d.T   `json:"normals,omitempty"`
	TexCoords []vec2d.T   `json:"texCoords,omitempty"`
	Colors    [][4]float64 `json:"colors,omitempty"`
	Faces     [][3]uint32 `json:"faces"`
	Material  *Material   `json:"material,omitempty"`
}

// HasNormals reports whether per-vertex normals are present.
func (m *Mesh) HasNormals() bool { return len(m.Normals) == len(m.Vertices) && len(m.Normals) > 0 }

// HasTexCoords reports whether per-vertex UVs are present.
func (m *Mesh) HasTexCoords() bool {
	return len(m.TexCoords) == len(m.Vertices) && len(m.TexCoords) > 0
}

// HasColors reports whether per-vertex colors are present.
func (m *Mesh) HasColors() bool { return len(m.Colors) == len(m.Vertices) && len(m.Colors) > 0 }

// Bounds returns the mesh's axis-aligned bounding box.
func (m *Mesh) Bounds() vec3d.Box {
	box := vec3d.MinBox
	for i := range m.Vertices {
		box.Extend(&m.Vertices[i])
	}
	return box
}

// Scene is the flat canonical scene: an ordered list of meshes, no
// hierarchy. It exclusively owns its meshes and materials.
type Scene struct {
	Name   string  `json:"name"`
	Format string  `json:"format"`
	Meshes []*Mesh `json:"meshes"`
}

// NewScene returns an empty scene tagged with its source name and format.
func NewScene(name, format string) *Scene {
	return &Scene{Name: name, Format: format}
}

func (s *Scene) MeshCount() int { return len(s.Meshes) }

// VertexCount returns the total vertex count across all meshes.
func (s *Scene) VertexCount() int {
	n := 0
	for _, m := range s.Meshes {
		n += len(m.Vertices)
	}
	return n
}

// FaceCount returns the total triangle count across all meshes.
func (s *Scene) FaceCount() int {
	n := 0
	for _, m := range s.Meshes {
		n += len(m.Faces)
	}
	return n
}

// Bounds returns the axis-aligned bounding box over every vertex of every
// mesh. Empty scenes yield an inverted (MinBox) box.
func (s *Scene) Bounds() vec3d.Box {
	box := vec3d.MinBox
	for _, m := range s.Meshes {
		mb := m.Bounds()
		box.Join(&mb)
	}
	return box
}
