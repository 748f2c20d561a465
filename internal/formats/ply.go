package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	vec2d "github.com/flywave/go3d/float64/vec2"
	vec3d "github.com/flywave/go3d/float64/vec3"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/scene"
)

type plyFormat int

const (
	plyASCII plyFormat = iota
	plyBinaryLE
)

// plyProperty is one declared property. List properties carry the count
// type in CountType; scalar properties leave it empty.
type plyProperty struct {
	Name      string
	Type      string
	List      bool
	CountType string
}

type plyElement struct {
	Name       string
	Count      int
	Properties []plyProperty
}

var plyTypeSize = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4, "double": 8, "float64": 8,
}

func plyTypeIsFloat(t string) bool {
	switch t {
	case "float", "float32", "double", "float64":
		return true
	}
	return false
}

// decodePLY parses ASCII or binary little-endian PLY. Property order is
// taken from the header as declared, never assumed. Vertex properties
// beyond position (normals, colors, UVs) are optional; unknown elements
// are parsed and discarded.
func decodePLY(data []byte, name string) (*scene.Scene, error) {
	format, elements, body, err := parsePLYHeader(data)
	if err != nil {
		return nil, err
	}

	mesh := &scene.Mesh{}
	var vertexCount int

	rows := &plyReader{format: format, data: body}
	for _, el := range elements {
		switch el.Name {
		case "vertex":
			vertexCount = el.Count
			if err := readPLYVertices(rows, el, mesh); err != nil {
				return nil, err
			}
		case "face":
			if err := readPLYFaces(rows, el, mesh, vertexCount); err != nil {
				return nil, err
			}
		default:
			for i := 0; i < el.Count; i++ {
				if _, err := rows.readRow(el); err != nil {
					return nil, decodeErrf(PLY, el.Name, "row %d: %v", i, err)
				}
			}
		}
	}

	if len(mesh.Colors) > 0 {
		mesh.Material = nil
	} else {
		mesh.Material = scene.DefaultMaterial()
	}

	out := scene.NewScene(name, string(PLY))
	out.Meshes = append(out.Meshes, mesh)
	return out, nil
}

func parsePLYHeader(data []byte) (plyFormat, []plyElement, []byte, error) {
	end := bytes.Index(data, []byte("end_header"))
	if end < 0 {
		return 0, nil, nil, decodeErrf(PLY, "header", "missing end_header")
	}
	headerText := string(data[:end])
	body := data[end:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = nil
	}

	lines := strings.Split(strings.ReplaceAll(headerText, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "ply" {
		return 0, nil, nil, decodeErrf(PLY, "header", "missing ply magic")
	}

	format := plyASCII
	haveFormat := false
	var elements []plyElement

	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "comment" || fields[0] == "obj_info" {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return 0, nil, nil, decodeErrf(PLY, "header", "malformed format line")
			}
			switch fields[1] {
			case "ascii":
				format = plyASCII
			case "binary_little_endian":
				format = plyBinaryLE
			default:
				return 0, nil, nil, decodeErrf(PLY, "header", "unsupported format %q", fields[1])
			}
			haveFormat = true
		case "element":
			if len(fields) != 3 {
				return 0, nil, nil, decodeErrf(PLY, "header", "malformed element line %q", line)
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return 0, nil, nil, decodeErrf(PLY, "header", "bad element count %q", fields[2])
			}
			elements = append(elements, plyElement{Name: fields[1], Count: count})
		case "property":
			if len(elements) == 0 {
				return 0, nil, nil, decodeErrf(PLY, "header", "property before element")
			}
			el := &elements[len(elements)-1]
			if len(fields) >= 5 && fields[1] == "list" {
				if plyTypeSize[fields[2]] == 0 || plyTypeSize[fields[3]] == 0 {
					return 0, nil, nil, decodeErrf(PLY, "header", "bad list types in %q", line)
				}
				el.Properties = append(el.Properties, plyProperty{
					Name: fields[4], Type: fields[3], List: true, CountType: fields[2],
				})
			} else if len(fields) == 3 {
				if plyTypeSize[fields[1]] == 0 {
					return 0, nil, nil, decodeErrf(PLY, "header", "unknown property type %q", fields[1])
				}
				el.Properties = append(el.Properties, plyProperty{Name: fields[2], Type: fields[1]})
			} else {
				return 0, nil, nil, decodeErrf(PLY, "header", "malformed property line %q", line)
			}
		default:
			return 0, nil, nil, decodeErrf(PLY, "header", "unexpected keyword %q", fields[0])
		}
	}
	if !haveFormat {
		return 0, nil, nil, decodeErrf(PLY, "header", "missing format line")
	}
	return format, elements, body, nil
}

// plyReader walks element rows in either container. ASCII rows are
// whitespace-separated lines; binary rows are packed little-endian.
type plyReader struct {
	format  plyFormat
	data    []byte
	off     int
	scanner *bufio.Scanner
}

// readRow returns one value per declared property, lists as slices.
func (r *plyReader) readRow(el plyElement) (map[string][]float64, error) {
	row := make(map[string][]float64, len(el.Properties))
	if r.format == plyASCII {
		fields, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		pos := 0
		take := func() (float64, error) {
			if pos >= len(fields) {
				return 0, fmt.Errorf("row too short")
			}
			v, err := strconv.ParseFloat(fields[pos], 64)
			if err != nil {
				return 0, fmt.Errorf("bad value %q", fields[pos])
			}
			pos++
			return v, nil
		}
		for _, p := range el.Properties {
			if p.List {
				n, err := take()
				if err != nil {
					return nil, err
				}
				items := make([]float64, int(n))
				for i := range items {
					if items[i], err = take(); err != nil {
						return nil, err
					}
				}
				row[p.Name] = items
			} else {
				v, err := take()
				if err != nil {
					return nil, err
				}
				row[p.Name] = []float64{v}
			}
		}
		return row, nil
	}

	for _, p := range el.Properties {
		if p.List {
			n, err := r.readScalar(p.CountType)
			if err != nil {
				return nil, err
			}
			items := make([]float64, int(n))
			for i := range items {
				if items[i], err = r.readScalar(p.Type); err != nil {
					return nil, err
				}
			}
			row[p.Name] = items
		} else {
			v, err := r.readScalar(p.Type)
			if err != nil {
				return nil, err
			}
			row[p.Name] = []float64{v}
		}
	}
	return row, nil
}

func (r *plyReader) nextLine() ([]string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(bytes.NewReader(r.data))
		r.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	}
	for r.scanner.Scan() {
		fields := strings.Fields(r.scanner.Text())
		if len(fields) > 0 {
			return fields, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unexpected end of data")
}

func (r *plyReader) readScalar(typ string) (float64, error) {
	size := plyTypeSize[typ]
	if r.off+size > len(r.data) {
		return 0, fmt.Errorf("truncated data reading %s", typ)
	}
	b := r.data[r.off:]
	r.off += size
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(binary.LittleEndian.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(binary.LittleEndian.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	case "uint", "uint32":
		return float64(binary.LittleEndian.Uint32(b)), nil
	case "float", "float32":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case "double", "float64":
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, fmt.Errorf("unknown type %q", typ)
}

func readPLYVertices(rows *plyReader, el plyElement, mesh *scene.Mesh) error {
	props := make(map[string]plyProperty, len(el.Properties))
	for _, p := range el.Properties {
		props[p.Name] = p
	}
	has := func(names ...string) bool {
		for _, n := range names {
			if _, ok := props[n]; !ok {
				return false
			}
		}
		return true
	}
	if !has("x", "y", "z") {
		return decodeErrf(PLY, "vertex", "missing x/y/z properties")
	}

	hasNormal := has("nx", "ny", "nz")
	hasColor := has("red", "green", "blue")
	hasAlpha := has("alpha")
	uvNames := [2]string{}
	hasUV := false
	if has("s", "t") {
		uvNames, hasUV = [2]string{"s", "t"}, true
	} else if has("u", "v") {
		uvNames, hasUV = [2]string{"u", "v"}, true
	}

	// Integer color channels are 0-255, float channels already 0-1.
	colorScale := 1.0
	if !plyTypeIsFloat(props["red"].Type) {
		colorScale = 1.0 / 255.0
	}

	scalar := func(row map[string][]float64, name string) float64 {
		v := row[name]
		if len(v) == 0 {
			return 0
		}
		return v[0]
	}

	for i := 0; i < el.Count; i++ {
		row, err := rows.readRow(el)
		if err != nil {
			return decodeErrf(PLY, "vertex", "row %d: %v", i, err)
		}
		mesh.Vertices = append(mesh.Vertices, vec3d.T{
			scalar(row, "x"), scalar(row, "y"), scalar(row, "z"),
		})
		if hasNormal {
			mesh.Normals = append(mesh.Normals, vec3d.T{
				scalar(row, "nx"), scalar(row, "ny"), scalar(row, "nz"),
			})
		}
		if hasUV {
			mesh.TexCoords = append(mesh.TexCoords, vec2d.T{
				scalar(row, uvNames[0]), scalar(row, uvNames[1]),
			})
		}
		if hasColor {
			alpha := 1.0
			if hasAlpha {
				alpha = scalar(row, "alpha") * colorScale
			}
			mesh.Colors = append(mesh.Colors, [4]float64{
				scalar(row, "red") * colorScale,
				scalar(row, "green") * colorScale,
				scalar(row, "blue") * colorScale,
				alpha,
			})
		}
	}
	return nil
}

func readPLYFaces(rows *plyReader, el plyElement, mesh *scene.Mesh, vertexCount int) error {
	listName := ""
	for _, p := range el.Properties {
		if p.List && (p.Name == "vertex_indices" || p.Name == "vertex_index") {
			listName = p.Name
			break
		}
	}
	if listName == "" {
		return decodeErrf(PLY, "face", "missing vertex_indices property")
	}

	for i := 0; i < el.Count; i++ {
		row, err := rows.readRow(el)
		if err != nil {
			return decodeErrf(PLY, "face", "row %d: %v", i, err)
		}
		idx := row[listName]
		if len(idx) < 3 {
			return decodeErrf(PLY, "face", "row %d: %d indices, want at least 3", i, len(idx))
		}
		face := make([]uint32, len(idx))
		for j, raw := range idx {
			v := int(raw)
			if v < 0 || v >= vertexCount {
				return decodeErrf(PLY, "face", "row %d: vertex index %d out of range (have %d)", i, v, vertexCount)
			}
			face[j] = uint32(v)
		}
		for j := 1; j < len(face)-1; j++ {
			mesh.Faces = append(mesh.Faces, [3]uint32{face[0], face[j], face[j+1]})
		}
	}
	return nil
}

// encodePLY writes the ASCII container: header declaring vertex count and
// properties in emission order, then faces. Per-vertex color survives when
// the source carried it; UVs and materials have no place in this profile
// and are dropped.
func encodePLY(sc *scene.Scene) ([]byte, error) {
	vertexCount := sc.VertexCount()
	faceCount := sc.FaceCount()

	hasNormals := vertexCount > 0
	hasColors := false
	for _, m := range sc.Meshes {
		if !m.HasNormals() {
			hasNormals = false
		}
		if m.HasColors() {
			hasColors = true
		}
	}

	var buf bytes.Buffer
	buf.WriteString("ply\n")
	buf.WriteString("format ascii 1.0\n")
	fmt.Fprintf(&buf, "comment %s\n", sc.Name)
	fmt.Fprintf(&buf, "element vertex %d\n", vertexCount)
	buf.WriteString("property float x\nproperty float y\nproperty float z\n")
	if hasNormals {
		buf.WriteString("property float nx\nproperty float ny\nproperty float nz\n")
	}
	if hasColors {
		buf.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\nproperty uchar alpha\n")
	}
	fmt.Fprintf(&buf, "element face %d\n", faceCount)
	buf.WriteString("property list uchar int vertex_indices\n")
	buf.WriteString("end_header\n")

	for _, m := range sc.Meshes {
		fallback := [4]float64{0.78, 0.78, 0.78, 1}
		if m.Material != nil {
			fallback = m.Material.BaseColor
		}
		for i, v := range m.Vertices {
			fmt.Fprintf(&buf, "%g %g %g", v[0], v[1], v[2])
			if hasNormals {
				n := m.Normals[i]
				fmt.Fprintf(&buf, " %g %g %g", n[0], n[1], n[2])
			}
			if hasColors {
				c := fallback
				if m.HasColors() {
					c = m.Colors[i]
				}
				fmt.Fprintf(&buf, " %d %d %d %d",
					colorByte(c[0]), colorByte(c[1]), colorByte(c[2]), colorByte(c[3]))
			}
			buf.WriteByte('\n')
		}
	}

	base := uint32(0)
	for _, m := range sc.Meshes {
		for _, f := range m.Faces {
			fmt.Fprintf(&buf, "3 %d %d %d\n", base+f[0], base+f[1], base+f[2])
		}
		base += uint32(len(m.Vertices))
	}
	return buf.Bytes(), nil
}

func colorByte(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return int(v*255 + 0.5)
}
