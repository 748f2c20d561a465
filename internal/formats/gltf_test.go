package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	vec2d "github.com/flywave/go3d/float64/vec2"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/qmuntal/gltf"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/scene"
)

// buildTriangleDocument assembles a minimal one-primitive document with the
// given node transform applied.
func buildTriangleDocument(t *testing.T, node *gltf.Node) *gltf.Document {
	t.Helper()

	var payload bytes.Buffer
	for _, v := range [][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		if err := binary.Write(&payload, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}

	doc := newDocument()
	doc.Buffers[0].Data = payload.Bytes()
	doc.Buffers[0].ByteLength = uint32(payload.Len())
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{
		Buffer:     0,
		ByteLength: uint32(payload.Len()),
	})
	view := uint32(0)
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView:    &view,
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec3,
		Count:         3,
	})
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Primitives: []*gltf.Primitive{{
			Attributes: gltf.Attribute{"POSITION": 0},
			Mode:       gltf.PrimitiveTriangles,
		}},
	})
	meshIndex := uint32(0)
	node.Mesh = &meshIndex
	doc.Nodes = append(doc.Nodes, node)
	doc.Scenes[0].Nodes = []uint32{0}
	return doc
}

func TestFlattenBakesNodeRotation(t *testing.T) {
	// 90 degrees around Z: (1,0,0) -> (0,1,0).
	s := math.Sin(math.Pi / 4)
	doc := buildTriangleDocument(t, &gltf.Node{Rotation: [4]float64{0, 0, s, math.Cos(math.Pi / 4)}})

	sc, err := sceneFromDocument(doc, GLTF, "rot.gltf")
	if err != nil {
		t.Fatalf("sceneFromDocument failed: %v", err)
	}
	got := sc.Meshes[0].Vertices[0]
	want := vec3d.T{0, 1, 0}
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-want[i]) > epsilon {
			t.Errorf("rotated vertex = %v, want %v", got, want)
			break
		}
	}
	// No residual transform: z-axis vertex stays put under a Z rotation.
	if got := sc.Meshes[0].Vertices[2]; math.Abs(got[2]-1) > epsilon {
		t.Errorf("z vertex = %v, want z=1", got)
	}
}

func TestFlattenBakesNodeMatrixTranslation(t *testing.T) {
	// Column-major glTF matrix: translation lives in elements 12..14.
	doc := buildTriangleDocument(t, &gltf.Node{
		Matrix: [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 10, 20, 30, 1},
	})

	sc, err := sceneFromDocument(doc, GLTF, "trans.gltf")
	if err != nil {
		t.Fatalf("sceneFromDocument failed: %v", err)
	}
	got := sc.Meshes[0].Vertices[0]
	if got != (vec3d.T{11, 20, 30}) {
		t.Errorf("translated vertex = %v, want (11,20,30)", got)
	}
}

func TestFlattenComposesChildTransforms(t *testing.T) {
	doc := buildTriangleDocument(t, &gltf.Node{Translation: [3]float64{1, 0, 0}})
	// Re-parent the mesh node under a translated root.
	doc.Nodes = append([]*gltf.Node{{
		Translation: [3]float64{0, 5, 0},
		Children:    []uint32{1},
	}}, doc.Nodes...)
	doc.Nodes[1].Children = nil
	doc.Scenes[0].Nodes = []uint32{0}

	sc, err := sceneFromDocument(doc, GLTF, "nested.gltf")
	if err != nil {
		t.Fatalf("sceneFromDocument failed: %v", err)
	}
	if got := sc.Meshes[0].Vertices[0]; got != (vec3d.T{2, 5, 0}) {
		t.Errorf("composed vertex = %v, want (2,5,0)", got)
	}
}

func TestGLBRoundTrip(t *testing.T) {
	src := scene.NewScene("roundtrip", string(OBJ))
	src.Meshes = append(src.Meshes, &scene.Mesh{
		Vertices:  []vec3d.T{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:   []vec3d.T{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		TexCoords: []vec2d.T{{0, 0}, {1, 0}, {0, 1}},
		Colors:    [][4]float64{{1, 0, 0, 1}, {0, 1, 0, 1}, {0, 0, 1, 0.5}},
		Faces:     [][3]uint32{{0, 1, 2}},
		Material: &scene.Material{
			BaseColor: [4]float64{0.5, 0.25, 0.125, 1},
			Metallic:  0.75,
			Roughness: 0.3,
		},
	})

	data, err := encodeGLTF(src, GLB)
	if err != nil {
		t.Fatalf("encodeGLTF(GLB) failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("glTF")) {
		t.Fatal("GLB output missing container magic")
	}
	// The 12-byte header declares the total file length; trailing bytes
	// beyond it make strict loaders reject the container.
	if declared := binary.LittleEndian.Uint32(data[8:12]); int(declared) != len(data) {
		t.Fatalf("GLB header declares %d bytes, file has %d", declared, len(data))
	}

	back, err := decodeGLTF(data, GLB, "roundtrip.glb")
	if err != nil {
		t.Fatalf("decodeGLTF failed: %v", err)
	}
	if back.MeshCount() != 1 {
		t.Fatalf("mesh count = %d, want 1", back.MeshCount())
	}
	m := back.Meshes[0]
	for i, want := range src.Meshes[0].Vertices {
		for c := 0; c < 3; c++ {
			if math.Abs(m.Vertices[i][c]-want[c]) > epsilon {
				t.Errorf("vertex %d component %d = %g, want %g", i, c, m.Vertices[i][c], want[c])
			}
		}
	}
	if len(m.Faces) != 1 || m.Faces[0] != ([3]uint32{0, 1, 2}) {
		t.Errorf("faces = %v, want [[0 1 2]]", m.Faces)
	}
	if !m.HasNormals() || !m.HasTexCoords() || !m.HasColors() {
		t.Error("attributes lost in round trip")
	}
	if m.Material == nil {
		t.Fatal("material lost in round trip")
	}
	if math.Abs(m.Material.Metallic-0.75) > epsilon || math.Abs(m.Material.Roughness-0.3) > epsilon {
		t.Errorf("material factors = %g/%g, want 0.75/0.3", m.Material.Metallic, m.Material.Roughness)
	}
	if math.Abs(m.Material.BaseColor[0]-0.5) > epsilon {
		t.Errorf("base color R = %g, want 0.5", m.Material.BaseColor[0])
	}
}

func TestGLTFJSONRoundTrip(t *testing.T) {
	src := scene.NewScene("json", string(STL))
	src.Meshes = append(src.Meshes, &scene.Mesh{
		Vertices: []vec3d.T{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Faces:    [][3]uint32{{0, 1, 2}},
	})

	data, err := encodeGLTF(src, GLTF)
	if err != nil {
		t.Fatalf("encodeGLTF(GLTF) failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"asset"`)) {
		t.Fatal("JSON output missing asset block")
	}
	// The single buffer must be embedded; a byte-buffer upload has no way
	// to resolve external .bin references.
	if !bytes.Contains(data, []byte("data:")) {
		t.Fatal("JSON output buffer is not embedded")
	}

	back, err := decodeGLTF(data, GLTF, "json.gltf")
	if err != nil {
		t.Fatalf("decodeGLTF failed: %v", err)
	}
	if back.VertexCount() != 3 || back.FaceCount() != 1 {
		t.Errorf("got %d vertices / %d faces, want 3 / 1", back.VertexCount(), back.FaceCount())
	}
}

func TestDecodeGLTFTruncatedBuffer(t *testing.T) {
	doc := buildTriangleDocument(t, &gltf.Node{})
	doc.Accessors[0].Count = 50

	if _, err := sceneFromDocument(doc, GLTF, "short.gltf"); err == nil {
		t.Fatal("want error for accessor past buffer end")
	}
}

func TestDecodeGLTFRejectsNodeCycle(t *testing.T) {
	doc := buildTriangleDocument(t, &gltf.Node{})
	doc.Nodes[0].Children = []uint32{0}
	if _, err := sceneFromDocument(doc, GLTF, "self.gltf"); err == nil {
		t.Fatal("want error for node listing itself as a child")
	}

	doc = buildTriangleDocument(t, &gltf.Node{})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Children: []uint32{0}})
	doc.Nodes[0].Children = []uint32{1}
	var decodeErr *DecodeError
	if _, err := sceneFromDocument(doc, GLTF, "cycle.gltf"); !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want DecodeError for ancestor cycle", err)
	}
}

func TestDecodeGLTFSkipsNonTrianglePrimitives(t *testing.T) {
	doc := buildTriangleDocument(t, &gltf.Node{})
	doc.Meshes[0].Primitives[0].Mode = gltf.PrimitiveLines

	sc, err := sceneFromDocument(doc, GLTF, "lines.gltf")
	if err != nil {
		t.Fatalf("sceneFromDocument failed: %v", err)
	}
	if sc.MeshCount() != 0 {
		t.Errorf("mesh count = %d, want 0 (lines are not modeled)", sc.MeshCount())
	}
}
