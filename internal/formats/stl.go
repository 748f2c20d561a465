package formats

import (
	"bytes"
	"fmt"

	stl "github.com/flywave/go-stl"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/flywave/go3d/vec3"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/scene"
)

// decodeSTL parses ASCII or binary STL (the library sniffs the container).
// STL triangles do not share vertices, so every facet contributes three
// fresh canonical vertices. The format carries no color, UV or material;
// the default material is synthesized.
func decodeSTL(data []byte, name string) (*scene.Scene, error) {
	solid, err := stl.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: STL, Element: "solid", Err: err}
	}

	mesh := &scene.Mesh{Material: scene.DefaultMaterial()}
	for _, tri := range solid.Triangles {
		normal := vec3d.T{float64(tri.Normal[0]), float64(tri.Normal[1]), float64(tri.Normal[2])}
		if normal.Length() == 0 {
			normal = facetNormal(
				toVec3d(tri.Vertices[0]),
				toVec3d(tri.Vertices[1]),
				toVec3d(tri.Vertices[2]),
			)
		}
		base := uint32(len(mesh.Vertices))
		for _, v := range tri.Vertices {
			mesh.Vertices = append(mesh.Vertices, toVec3d(v))
			mesh.Normals = append(mesh.Normals, normal)
		}
		mesh.Faces = append(mesh.Faces, [3]uint32{base, base + 1, base + 2})
	}

	out := scene.NewScene(name, string(STL))
	out.Meshes = append(out.Meshes, mesh)
	return out, nil
}

// encodeSTL writes the binary 50-byte-record form. Color, UV and material
// data have no STL representation and are dropped. Facet normals come from
// the vertex winding unless the mesh already carries normals.
func encodeSTL(sc *scene.Scene) ([]byte, error) {
	solid := &stl.Solid{Name: sc.Name}

	for _, m := range sc.Meshes {
		hasNormals := m.HasNormals()
		for _, f := range m.Faces {
			a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]

			var n vec3d.T
			if hasNormals {
				n = vec3d.Add(&m.Normals[f[0]], &m.Normals[f[1]])
				n.Add(&m.Normals[f[2]])
				if n.Length() > 0 {
					n.Normalize()
				}
			}
			if n.Length() == 0 {
				n = facetNormal(a, b, c)
			}

			solid.Triangles = append(solid.Triangles, stl.Triangle{
				Normal:   toVec3f(n),
				Vertices: [3]vec3.T{toVec3f(a), toVec3f(b), toVec3f(c)},
			})
		}
	}

	var buf bytes.Buffer
	if err := solid.WriteAll(&buf); err != nil {
		return nil, &EncodeError{Format: STL, Err: fmt.Errorf("write solid: %w", err)}
	}
	return buf.Bytes(), nil
}

// facetNormal derives the facet normal from the triangle winding. Degenerate
// triangles yield a zero vector.
func facetNormal(a, b, c vec3d.T) vec3d.T {
	e1 := vec3d.Sub(&b, &a)
	e2 := vec3d.Sub(&c, &a)
	n := vec3d.Cross(&e1, &e2)
	if l := n.Length(); l > 0 {
		n.Scale(1 / l)
	}
	return n
}

func toVec3d(v vec3.T) vec3d.T {
	return vec3d.T{float64(v[0]), float64(v[1]), float64(v[2])}
}

func toVec3f(v vec3d.T) vec3.T {
	return vec3.T{float32(v[0]), float32(v[1]), float32(v[2])}
}
