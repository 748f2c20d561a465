package formats

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	vec2d "github.com/flywave/go3d/float64/vec2"
	vec3d "github.com/flywave/go3d/float64/vec3"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/scene"
)

// objIndex is one face corner: position/texcoord/normal indices, already
// resolved to 0-based. Missing sub-indices are -1.
type objIndex struct {
	v, vt, vn int
}

// decodeOBJ parses the Wavefront OBJ text format. Polygon faces are
// fan-triangulated from the first corner; negative indices resolve against
// the running element counts; corners sharing the same index triple share
// one canonical vertex.
func decodeOBJ(data []byte, name string) (*scene.Scene, error) {
	var (
		positions []vec3d.T
		normals   []vec3d.T
		texCoords []vec2d.T
	)

	mesh := &scene.Mesh{}
	corners := make(map[objIndex]uint32)

	addCorner := func(idx objIndex) uint32 {
		if i, ok := corners[idx]; ok {
			return i
		}
		i := uint32(len(mesh.Vertices))
		corners[idx] = i
		mesh.Vertices = append(mesh.Vertices, positions[idx.v])
		if idx.vn >= 0 {
			mesh.Normals = append(mesh.Normals, normals[idx.vn])
		}
		if idx.vt >= 0 {
			mesh.TexCoords = append(mesh.TexCoords, texCoords[idx.vt])
		}
		return i
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		el := fmt.Sprintf("line %d", lineNo)

		switch fields[0] {
		case "v":
			p, err := parseFloats3(fields[1:])
			if err != nil {
				return nil, decodeErrf(OBJ, el, "vertex: %v", err)
			}
			positions = append(positions, p)
		case "vn":
			n, err := parseFloats3(fields[1:])
			if err != nil {
				return nil, decodeErrf(OBJ, el, "normal: %v", err)
			}
			normals = append(normals, n)
		case "vt":
			if len(fields) < 3 {
				return nil, decodeErrf(OBJ, el, "texcoord: want 2 components, got %d", len(fields)-1)
			}
			u, err1 := strconv.ParseFloat(fields[1], 64)
			v, err2 := strconv.ParseFloat(fields[2], 64)
			if err1 != nil || err2 != nil {
				return nil, decodeErrf(OBJ, el, "texcoord: bad component")
			}
			texCoords = append(texCoords, vec2d.T{u, v})
		case "f":
			if len(fields) < 4 {
				return nil, decodeErrf(OBJ, el, "face: want at least 3 corners, got %d", len(fields)-1)
			}
			face := make([]objIndex, 0, len(fields)-1)
			for _, spec := range fields[1:] {
				idx, err := parseObjCorner(spec, len(positions), len(texCoords), len(normals))
				if err != nil {
					return nil, decodeErrf(OBJ, el, "face corner %q: %v", spec, err)
				}
				face = append(face, idx)
			}
			for i := 1; i < len(face)-1; i++ {
				mesh.Faces = append(mesh.Faces, [3]uint32{
					addCorner(face[0]),
					addCorner(face[i]),
					addCorner(face[i+1]),
				})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &DecodeError{Format: OBJ, Err: err}
	}

	// Attribute slices are either complete or absent; mixed faces (some
	// corners with normals, some without) degrade to positions only.
	if len(mesh.Normals) != len(mesh.Vertices) {
		mesh.Normals = nil
	}
	if len(mesh.TexCoords) != len(mesh.Vertices) {
		mesh.TexCoords = nil
	}

	out := scene.NewScene(name, string(OBJ))
	out.Meshes = append(out.Meshes, mesh)
	return out, nil
}

// parseObjCorner resolves one "v", "v/vt", "v//vn" or "v/vt/vn" reference
// against the running element counts. Index 0 is invalid; negative indices
// are relative to the current count.
func parseObjCorner(spec string, nv, nvt, nvn int) (objIndex, error) {
	parts := strings.Split(spec, "/")
	if len(parts) > 3 {
		return objIndex{}, fmt.Errorf("too many index components")
	}

	resolve := func(raw string, count int, what string) (int, error) {
		if raw == "" {
			return -1, nil
		}
		i, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("bad %s index %q", what, raw)
		}
		switch {
		case i > 0:
			i--
		case i < 0:
			i = count + i
		default:
			return 0, fmt.Errorf("%s index 0 is invalid", what)
		}
		if i < 0 || i >= count {
			return 0, fmt.Errorf("%s index %s out of range (have %d)", what, raw, count)
		}
		return i, nil
	}

	idx := objIndex{vt: -1, vn: -1}
	var err error
	if idx.v, err = resolve(parts[0], nv, "vertex"); err != nil {
		return objIndex{}, err
	}
	if idx.v < 0 {
		return objIndex{}, fmt.Errorf("missing vertex index")
	}
	if len(parts) > 1 {
		if idx.vt, err = resolve(parts[1], nvt, "texcoord"); err != nil {
			return objIndex{}, err
		}
	}
	if len(parts) > 2 {
		if idx.vn, err = resolve(parts[2], nvn, "normal"); err != nil {
			return objIndex{}, err
		}
	}
	return idx, nil
}

func parseFloats3(fields []string) (vec3d.T, error) {
	var out vec3d.T
	if len(fields) < 3 {
		return out, fmt.Errorf("want 3 components, got %d", len(fields))
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return out, fmt.Errorf("bad component %q", fields[i])
		}
		out[i] = f
	}
	return out, nil
}

// encodeOBJ writes v/vn/vt/f lines with 1-based indices in declaration
// order. Per-vertex color has no OBJ representation and is dropped.
func encodeOBJ(sc *scene.Scene) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n", sc.Name)

	base := 1
	for mi, m := range sc.Meshes {
		if len(sc.Meshes) > 1 {
			fmt.Fprintf(&buf, "o mesh_%d\n", mi)
		}
		for _, v := range m.Vertices {
			fmt.Fprintf(&buf, "v %g %g %g\n", v[0], v[1], v[2])
		}
		hasN := m.HasNormals()
		hasT := m.HasTexCoords()
		for _, n := range m.Normals {
			fmt.Fprintf(&buf, "vn %g %g %g\n", n[0], n[1], n[2])
		}
		for _, t := range m.TexCoords {
			fmt.Fprintf(&buf, "vt %g %g\n", t[0], t[1])
		}
		for _, f := range m.Faces {
			a, b, c := base+int(f[0]), base+int(f[1]), base+int(f[2])
			switch {
			case hasN && hasT:
				fmt.Fprintf(&buf, "f %d/%d/%d %d/%d/%d %d/%d/%d\n", a, a, a, b, b, b, c, c, c)
			case hasN:
				fmt.Fprintf(&buf, "f %d//%d %d//%d %d//%d\n", a, a, b, b, c, c)
			case hasT:
				fmt.Fprintf(&buf, "f %d/%d %d/%d %d/%d\n", a, a, b, b, c, c)
			default:
				fmt.Fprintf(&buf, "f %d %d %d\n", a, b, c)
			}
		}
		base += len(m.Vertices)
	}
	return buf.Bytes(), nil
}
