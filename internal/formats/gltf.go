package formats

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	mat4d "github.com/flywave/go3d/float64/mat4"
	vec2d "github.com/flywave/go3d/float64/vec2"
	vec3d "github.com/flywave/go3d/float64/vec3"
	vec4d "github.com/flywave/go3d/float64/vec4"
	"github.com/qmuntal/gltf"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/scene"
)

// GLTFVersion is the version written into the emitted asset header.
const GLTFVersion = "2.0"

// decodeGLTF parses a glTF JSON document or a GLB container (the decoder
// sniffs the magic). The node hierarchy is flattened: every node transform
// is pre-multiplied into vertex positions so the canonical scene stays
// hierarchy-free.
func decodeGLTF(data []byte, f Format, name string) (*scene.Scene, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(doc); err != nil {
		return nil, &DecodeError{Format: f, Element: "document", Err: err}
	}
	return sceneFromDocument(doc, f, name)
}

// sceneFromDocument flattens a parsed glTF document into a canonical scene.
func sceneFromDocument(doc *gltf.Document, f Format, name string) (*scene.Scene, error) {
	out := scene.NewScene(name, string(f))

	visited := make(map[uint32]bool, len(doc.Nodes))
	for _, root := range sceneRoots(doc) {
		if err := flattenNode(doc, f, out, root, mat4d.Ident, visited); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// sceneRoots returns the root node indices of the default scene, falling
// back to every node when no scene is declared.
func sceneRoots(doc *gltf.Document) []uint32 {
	if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	if len(doc.Scenes) > 0 {
		return doc.Scenes[0].Nodes
	}
	roots := make([]uint32, 0, len(doc.Nodes))
	for i := range doc.Nodes {
		roots = append(roots, uint32(i))
	}
	return roots
}

func flattenNode(doc *gltf.Document, f Format, out *scene.Scene, index uint32, parent mat4d.T, visited map[uint32]bool) error {
	if int(index) >= len(doc.Nodes) {
		return decodeErrf(f, "node", "index %d out of range (have %d)", index, len(doc.Nodes))
	}
	// glTF nodes form a strict tree; a revisit means the document's
	// hierarchy contains a cycle.
	if visited[index] {
		return decodeErrf(f, "node", "node %d visited twice, hierarchy has a cycle", index)
	}
	visited[index] = true
	node := doc.Nodes[index]

	local := nodeMatrix(node)
	var world mat4d.T
	world.AssignMul(&parent, &local)

	if node.Mesh != nil {
		if int(*node.Mesh) >= len(doc.Meshes) {
			return decodeErrf(f, "node", "mesh index %d out of range (have %d)", *node.Mesh, len(doc.Meshes))
		}
		if err := flattenMesh(doc, f, out, doc.Meshes[*node.Mesh], &world); err != nil {
			return err
		}
	}
	for _, child := range node.Children {
		if err := flattenNode(doc, f, out, child, world, visited); err != nil {
			return err
		}
	}
	return nil
}

// nodeMatrix composes the node's local transform: the explicit matrix when
// present, otherwise T*R*S. Zero-valued TRS fields from hand-built
// documents are treated as identity, matching the glTF defaults.
func nodeMatrix(node *gltf.Node) mat4d.T {
	if node.Matrix != ([16]float64{}) && node.Matrix != identityArray() {
		return matFromColumns(node.Matrix)
	}

	m := mat4d.Ident

	if s := node.Scale; s != ([3]float64{}) && s != ([3]float64{1, 1, 1}) {
		m[0][0], m[1][1], m[2][2] = s[0], s[1], s[2]
	}

	if q := node.Rotation; q != ([4]float64{}) && q != ([4]float64{0, 0, 0, 1}) {
		r := quaternionMatrix(q)
		var rs mat4d.T
		rs.AssignMul(&r, &m)
		m = rs
	}

	m[3][0] = node.Translation[0]
	m[3][1] = node.Translation[1]
	m[3][2] = node.Translation[2]
	return m
}

func identityArray() [16]float64 {
	return [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

// matFromColumns loads the glTF column-major 16-float array.
func matFromColumns(a [16]float64) mat4d.T {
	return mat4d.T{
		vec4d.T{a[0], a[1], a[2], a[3]},
		vec4d.T{a[4], a[5], a[6], a[7]},
		vec4d.T{a[8], a[9], a[10], a[11]},
		vec4d.T{a[12], a[13], a[14], a[15]},
	}
}

// quaternionMatrix expands a glTF XYZW unit quaternion to a rotation matrix.
func quaternionMatrix(q [4]float64) mat4d.T {
	x, y, z, w := q[0], q[1], q[2], q[3]
	m := mat4d.Ident
	m[0][0] = 1 - 2*(y*y+z*z)
	m[0][1] = 2 * (x*y + z*w)
	m[0][2] = 2 * (x*z - y*w)
	m[1][0] = 2 * (x*y - z*w)
	m[1][1] = 1 - 2*(x*x+z*z)
	m[1][2] = 2 * (y*z + x*w)
	m[2][0] = 2 * (x*z + y*w)
	m[2][1] = 2 * (y*z - x*w)
	m[2][2] = 1 - 2*(x*x+y*y)
	return m
}

func transformPoint(m *mat4d.T, v vec3d.T) vec3d.T {
	return vec3d.T{
		m[0][0]*v[0] + m[1][0]*v[1] + m[2][0]*v[2] + m[3][0],
		m[0][1]*v[0] + m[1][1]*v[1] + m[2][1]*v[2] + m[3][1],
		m[0][2]*v[0] + m[1][2]*v[1] + m[2][2]*v[2] + m[3][2],
	}
}

func transformDirection(m *mat4d.T, v vec3d.T) vec3d.T {
	out := vec3d.T{
		m[0][0]*v[0] + m[1][0]*v[1] + m[2][0]*v[2],
		m[0][1]*v[0] + m[1][1]*v[1] + m[2][1]*v[2],
		m[0][2]*v[0] + m[1][2]*v[1] + m[2][2]*v[2],
	}
	if out.Length() > 0 {
		out.Normalize()
	}
	return out
}

// flattenMesh converts every triangle primitive of a glTF mesh into one
// canonical mesh with the world transform baked in.
func flattenMesh(doc *gltf.Document, f Format, out *scene.Scene, gm *gltf.Mesh, world *mat4d.T) error {
	for pi, prim := range gm.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			continue
		}
		el := fmt.Sprintf("mesh %q primitive %d", gm.Name, pi)

		posIdx, ok := prim.Attributes["POSITION"]
		if !ok {
			return decodeErrf(f, el, "missing POSITION attribute")
		}
		positions, err := readVec3Accessor(doc, f, el, posIdx)
		if err != nil {
			return err
		}

		mesh := &scene.Mesh{}
		mesh.Vertices = make([]vec3d.T, len(positions))
		for i, p := range positions {
			mesh.Vertices[i] = transformPoint(world, p)
		}

		if idx, ok := prim.Attributes["NORMAL"]; ok {
			normals, err := readVec3Accessor(doc, f, el, idx)
			if err != nil {
				return err
			}
			if len(normals) == len(positions) {
				mesh.Normals = make([]vec3d.T, len(normals))
				for i, n := range normals {
					mesh.Normals[i] = transformDirection(world, n)
				}
			}
		}
		if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
			uvs, err := readVec2Accessor(doc, f, el, idx)
			if err != nil {
				return err
			}
			if len(uvs) == len(positions) {
				mesh.TexCoords = uvs
			}
		}
		if idx, ok := prim.Attributes["COLOR_0"]; ok {
			colors, err := readColorAccessor(doc, f, el, idx)
			if err != nil {
				return err
			}
			if len(colors) == len(positions) {
				mesh.Colors = colors
			}
		}

		indices, err := readIndices(doc, f, el, prim, len(positions))
		if err != nil {
			return err
		}
		if len(indices)%3 != 0 {
			return decodeErrf(f, el, "index count %d is not a multiple of 3", len(indices))
		}
		for i := 0; i+2 < len(indices); i += 3 {
			mesh.Faces = append(mesh.Faces, [3]uint32{indices[i], indices[i+1], indices[i+2]})
		}

		mesh.Material = materialFromDocument(doc, prim.Material)
		out.Meshes = append(out.Meshes, mesh)
	}
	return nil
}

func materialFromDocument(doc *gltf.Document, index *uint32) *scene.Material {
	mat := scene.DefaultMaterial()
	if index == nil || int(*index) >= len(doc.Materials) {
		return mat
	}
	pbr := doc.Materials[*index].PBRMetallicRoughness
	if pbr == nil {
		return mat
	}
	if c := pbr.BaseColorFactor; c != nil {
		mat.BaseColor = [4]float64{c.R, c.G, c.B, c.A}
	}
	if pbr.MetallicFactor != nil {
		mat.Metallic = *pbr.MetallicFactor
	}
	if pbr.RoughnessFactor != nil {
		mat.Roughness = *pbr.RoughnessFactor
	}
	return mat
}

// accessorBytes resolves an accessor to its backing bytes plus the element
// stride, validating every bound along the way.
func accessorBytes(doc *gltf.Document, f Format, el string, index uint32, elemSize int) ([]byte, int, uint32, error) {
	if int(index) >= len(doc.Accessors) {
		return nil, 0, 0, decodeErrf(f, el, "accessor %d out of range (have %d)", index, len(doc.Accessors))
	}
	acc := doc.Accessors[index]
	if acc.BufferView == nil {
		return nil, 0, 0, decodeErrf(f, el, "accessor %d has no buffer view", index)
	}
	if int(*acc.BufferView) >= len(doc.BufferViews) {
		return nil, 0, 0, decodeErrf(f, el, "buffer view %d out of range (have %d)", *acc.BufferView, len(doc.BufferViews))
	}
	view := doc.BufferViews[*acc.BufferView]
	if int(view.Buffer) >= len(doc.Buffers) {
		return nil, 0, 0, decodeErrf(f, el, "buffer %d out of range (have %d)", view.Buffer, len(doc.Buffers))
	}
	data := bufferData(doc.Buffers[view.Buffer])
	if len(data) == 0 {
		return nil, 0, 0, decodeErrf(f, el, "buffer %d has no data (external references are not resolvable)", view.Buffer)
	}

	stride := int(view.ByteStride)
	if stride == 0 {
		stride = elemSize
	}
	start := int(view.ByteOffset) + int(acc.ByteOffset)
	need := start + int(acc.Count-1)*stride + elemSize
	if acc.Count == 0 {
		need = start
	}
	if need > len(data) {
		return nil, 0, 0, decodeErrf(f, el, "accessor %d truncated: need %d bytes, buffer has %d", index, need, len(data))
	}
	return data[start:], stride, acc.Count, nil
}

// bufferData returns the buffer payload, decoding a data URI in place when
// the decoder left it unresolved.
func bufferData(buf *gltf.Buffer) []byte {
	if len(buf.Data) > 0 {
		return buf.Data
	}
	const prefix = "data:"
	if strings.HasPrefix(buf.URI, prefix) {
		if i := strings.Index(buf.URI, "base64,"); i >= 0 {
			if raw, err := base64.StdEncoding.DecodeString(buf.URI[i+len("base64,"):]); err == nil {
				buf.Data = raw
			}
		}
	}
	return buf.Data
}

func readVec3Accessor(doc *gltf.Document, f Format, el string, index uint32) ([]vec3d.T, error) {
	acc := accessorAt(doc, index)
	if acc == nil || acc.Type != gltf.AccessorVec3 || acc.ComponentType != gltf.ComponentFloat {
		return nil, decodeErrf(f, el, "accessor %d: want float vec3", index)
	}
	data, stride, count, err := accessorBytes(doc, f, el, index, 12)
	if err != nil {
		return nil, err
	}
	out := make([]vec3d.T, count)
	for i := range out {
		b := data[i*stride:]
		out[i] = vec3d.T{
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b))),
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))),
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))),
		}
	}
	return out, nil
}

func readVec2Accessor(doc *gltf.Document, f Format, el string, index uint32) ([]vec2d.T, error) {
	acc := accessorAt(doc, index)
	if acc == nil || acc.Type != gltf.AccessorVec2 || acc.ComponentType != gltf.ComponentFloat {
		return nil, decodeErrf(f, el, "accessor %d: want float vec2", index)
	}
	data, stride, count, err := accessorBytes(doc, f, el, index, 8)
	if err != nil {
		return nil, err
	}
	out := make([]vec2d.T, count)
	for i := range out {
		b := data[i*stride:]
		out[i] = vec2d.T{
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b))),
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))),
		}
	}
	return out, nil
}

// readColorAccessor accepts the COLOR_0 encodings glTF allows: vec3 or vec4
// in float, normalized ubyte, or normalized ushort components.
func readColorAccessor(doc *gltf.Document, f Format, el string, index uint32) ([][4]float64, error) {
	acc := accessorAt(doc, index)
	if acc == nil {
		return nil, decodeErrf(f, el, "color accessor %d out of range", index)
	}
	comps := 0
	switch acc.Type {
	case gltf.AccessorVec3:
		comps = 3
	case gltf.AccessorVec4:
		comps = 4
	default:
		return nil, decodeErrf(f, el, "color accessor %d: want vec3 or vec4", index)
	}

	var compSize int
	var read func(b []byte) float64
	switch acc.ComponentType {
	case gltf.ComponentFloat:
		compSize = 4
		read = func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	case gltf.ComponentUbyte:
		compSize = 1
		read = func(b []byte) float64 { return float64(b[0]) / 255 }
	case gltf.ComponentUshort:
		compSize = 2
		read = func(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) / 65535 }
	default:
		return nil, decodeErrf(f, el, "color accessor %d: unsupported component type", index)
	}

	data, stride, count, err := accessorBytes(doc, f, el, index, comps*compSize)
	if err != nil {
		return nil, err
	}
	out := make([][4]float64, count)
	for i := range out {
		b := data[i*stride:]
		c := [4]float64{0, 0, 0, 1}
		for j := 0; j < comps; j++ {
			c[j] = read(b[j*compSize:])
		}
		out[i] = c
	}
	return out, nil
}

// readIndices reads the primitive's index accessor, or synthesizes
// sequential indices for non-indexed geometry. Every index is bounds-checked
// against the vertex count.
func readIndices(doc *gltf.Document, f Format, el string, prim *gltf.Primitive, vertexCount int) ([]uint32, error) {
	if prim.Indices == nil {
		out := make([]uint32, vertexCount)
		for i := range out {
			out[i] = uint32(i)
		}
		return out, nil
	}

	acc := accessorAt(doc, *prim.Indices)
	if acc == nil || acc.Type != gltf.AccessorScalar {
		return nil, decodeErrf(f, el, "index accessor %d: want scalar", *prim.Indices)
	}

	var compSize int
	var read func(b []byte) uint32
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		compSize = 1
		read = func(b []byte) uint32 { return uint32(b[0]) }
	case gltf.ComponentUshort:
		compSize = 2
		read = func(b []byte) uint32 { return uint32(binary.LittleEndian.Uint16(b)) }
	case gltf.ComponentUint:
		compSize = 4
		read = func(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
	default:
		return nil, decodeErrf(f, el, "index accessor %d: unsupported component type", *prim.Indices)
	}

	data, stride, count, err := accessorBytes(doc, f, el, *prim.Indices, compSize)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		v := read(data[i*stride:])
		if int(v) >= vertexCount {
			return nil, decodeErrf(f, el, "index %d out of range (have %d vertices)", v, vertexCount)
		}
		out[i] = v
	}
	return out, nil
}

func accessorAt(doc *gltf.Document, index uint32) *gltf.Accessor {
	if int(index) >= len(doc.Accessors) {
		return nil
	}
	return doc.Accessors[index]
}

// encodeGLTF builds a glTF document from the canonical scene: one node and
// one mesh per canonical mesh, planar buffer views, a PBR metallic-roughness
// material each. GLB packing versus JSON with an embedded buffer is decided
// by the target tag alone.
func encodeGLTF(sc *scene.Scene, f Format) ([]byte, error) {
	doc := newDocument()
	for _, m := range sc.Meshes {
		if err := appendMesh(doc, m); err != nil {
			return nil, &EncodeError{Format: f, Err: err}
		}
	}

	if f == GLB {
		return encodeBinaryDocument(doc)
	}

	doc.Buffers[0].EmbeddedResource()
	var buf bytes.Buffer
	if err := gltf.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, &EncodeError{Format: f, Err: err}
	}
	return buf.Bytes(), nil
}

func newDocument() *gltf.Document {
	doc := &gltf.Document{
		Asset:   gltf.Asset{Version: GLTFVersion},
		Scenes:  []*gltf.Scene{{}},
		Buffers: []*gltf.Buffer{{}},
	}
	sceneIndex := uint32(0)
	doc.Scene = &sceneIndex
	return doc
}

// encodeBinaryDocument writes the GLB container. The encoder aligns the
// chunks itself; the header's total length must match the file exactly.
func encodeBinaryDocument(doc *gltf.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendMesh(doc *gltf.Document, m *scene.Mesh) error {
	buffer := doc.Buffers[0]
	var payload bytes.Buffer

	addView := func(write func(*bytes.Buffer)) uint32 {
		start := uint32(payload.Len())
		write(&payload)
		view := &gltf.BufferView{
			Buffer:     0,
			ByteOffset: buffer.ByteLength + start,
			ByteLength: uint32(payload.Len()) - start,
		}
		doc.BufferViews = append(doc.BufferViews, view)
		return uint32(len(doc.BufferViews) - 1)
	}

	indexView := addView(func(w *bytes.Buffer) {
		for _, face := range m.Faces {
			binary.Write(w, binary.LittleEndian, face)
		}
	})
	posView := addView(func(w *bytes.Buffer) {
		for _, v := range m.Vertices {
			binary.Write(w, binary.LittleEndian, [3]float32{float32(v[0]), float32(v[1]), float32(v[2])})
		}
	})

	var normalView, uvView, colorView uint32
	hasNormals, hasUVs, hasColors := m.HasNormals(), m.HasTexCoords(), m.HasColors()
	if hasNormals {
		normalView = addView(func(w *bytes.Buffer) {
			for _, n := range m.Normals {
				binary.Write(w, binary.LittleEndian, [3]float32{float32(n[0]), float32(n[1]), float32(n[2])})
			}
		})
	}
	if hasUVs {
		uvView = addView(func(w *bytes.Buffer) {
			for _, t := range m.TexCoords {
				binary.Write(w, binary.LittleEndian, [2]float32{float32(t[0]), float32(t[1])})
			}
		})
	}
	if hasColors {
		colorView = addView(func(w *bytes.Buffer) {
			for _, c := range m.Colors {
				binary.Write(w, binary.LittleEndian, [4]float32{
					float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3]),
				})
			}
		})
	}

	buffer.ByteLength += uint32(payload.Len())
	buffer.Data = append(buffer.Data, payload.Bytes()...)

	addAccessor := func(acc *gltf.Accessor) uint32 {
		doc.Accessors = append(doc.Accessors, acc)
		return uint32(len(doc.Accessors) - 1)
	}

	indexAcc := addAccessor(&gltf.Accessor{
		BufferView:    &indexView,
		ComponentType: gltf.ComponentUint,
		Type:          gltf.AccessorScalar,
		Count:         uint32(len(m.Faces) * 3),
	})

	box := m.Bounds()
	posAcc := addAccessor(&gltf.Accessor{
		BufferView:    &posView,
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec3,
		Count:         uint32(len(m.Vertices)),
		Min:           []float64{box.Min[0], box.Min[1], box.Min[2]},
		Max:           []float64{box.Max[0], box.Max[1], box.Max[2]},
	})

	attrs := gltf.Attribute{"POSITION": posAcc}
	if hasNormals {
		attrs["NORMAL"] = addAccessor(&gltf.Accessor{
			BufferView:    &normalView,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec3,
			Count:         uint32(len(m.Normals)),
		})
	}
	if hasUVs {
		attrs["TEXCOORD_0"] = addAccessor(&gltf.Accessor{
			BufferView:    &uvView,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec2,
			Count:         uint32(len(m.TexCoords)),
		})
	}
	if hasColors {
		attrs["COLOR_0"] = addAccessor(&gltf.Accessor{
			BufferView:    &colorView,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec4,
			Count:         uint32(len(m.Colors)),
		})
	}

	materialIndex := appendMaterial(doc, m.Material)
	primitive := &gltf.Primitive{
		Attributes: attrs,
		Indices:    &indexAcc,
		Material:   &materialIndex,
		Mode:       gltf.PrimitiveTriangles,
	}

	meshIndex := uint32(len(doc.Meshes))
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Primitives: []*gltf.Primitive{primitive}})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: &meshIndex})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	return nil
}

func appendMaterial(doc *gltf.Document, mat *scene.Material) uint32 {
	if mat == nil {
		mat = scene.DefaultMaterial()
	}
	metallic := mat.Metallic
	roughness := mat.Roughness
	gm := &gltf.Material{
		DoubleSided: true,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &gltf.RGBA{
				R: mat.BaseColor[0],
				G: mat.BaseColor[1],
				B: mat.BaseColor[2],
				A: mat.BaseColor[3],
			},
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	}
	doc.Materials = append(doc.Materials, gm)
	return uint32(len(doc.Materials) - 1)
}
