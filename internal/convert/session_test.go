package convert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/formats"
)

const cubeOBJ = `v -1 -1 -1
v 1 -1 -1
v 1 1 -1
v -1 1 -1
f 1 2 3
f 1 3 4
`

const offsetOBJ = `v 9 9 9
v 11 9 9
v 9 11 9
f 1 2 3
`

func loadScene(t *testing.T, s *Session, name, data, tag string) {
	t.Helper()
	res := <-s.Load(context.Background(), name, []byte(data), tag)
	if res.Err != nil {
		t.Fatalf("load %s failed: %v", name, res.Err)
	}
	if res.Stale {
		t.Fatalf("load %s unexpectedly marked stale", name)
	}
}

func TestSessionBeforeFirstLoad(t *testing.T) {
	s := NewSession(nil)

	if s.Scene() != nil {
		t.Error("Scene() non-nil before any load")
	}
	if _, _, ok := s.Raw(); ok {
		t.Error("Raw() reports data before any load")
	}
	if _, err := s.Camera(ZoomIn); !errors.Is(err, ErrNoSceneLoaded) {
		t.Errorf("Camera error = %v, want ErrNoSceneLoaded", err)
	}
	if _, err := s.CameraState(); !errors.Is(err, ErrNoSceneLoaded) {
		t.Errorf("CameraState error = %v, want ErrNoSceneLoaded", err)
	}
	if _, err := s.Export("stl"); !errors.Is(err, ErrNoSceneLoaded) {
		t.Errorf("Export error = %v, want ErrNoSceneLoaded", err)
	}
}

func TestSessionLoadPopulatesState(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")

	sc := s.Scene()
	if sc == nil {
		t.Fatal("Scene() nil after load")
	}
	if sc.VertexCount() != 4 || sc.FaceCount() != 2 {
		t.Errorf("got %d vertices / %d faces, want 4 / 2", sc.VertexCount(), sc.FaceCount())
	}
	if f, ok := s.SourceFormat(); !ok || f != formats.OBJ {
		t.Errorf("SourceFormat() = %q, %v", f, ok)
	}
	name, raw, ok := s.Raw()
	if !ok || name != "cube.obj" || string(raw) != cubeOBJ {
		t.Errorf("Raw() = %q, %d bytes, %v", name, len(raw), ok)
	}
	st, err := s.CameraState()
	if err != nil {
		t.Fatalf("CameraState failed: %v", err)
	}
	if st.Position == st.Target {
		t.Error("framed camera position coincides with target")
	}
}

func TestSessionLoadRejectsUnknownTag(t *testing.T) {
	s := NewSession(nil)
	res := <-s.Load(context.Background(), "mesh.dae", []byte("x"), "dae")
	var unsupported *formats.UnsupportedFormatError
	if !errors.As(res.Err, &unsupported) {
		t.Fatalf("error = %v, want UnsupportedFormatError", res.Err)
	}
}

func TestSessionLoadKeepsSceneOnDecodeFailure(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")

	res := <-s.Load(context.Background(), "broken.obj", []byte("f 1 2 99\n"), "obj")
	var decodeErr *formats.DecodeError
	if !errors.As(res.Err, &decodeErr) {
		t.Fatalf("error = %v, want DecodeError", res.Err)
	}
	if sc := s.Scene(); sc == nil || sc.VertexCount() != 4 {
		t.Error("failed load disturbed the live scene")
	}
}

func TestSessionCanceledLoadIsDiscarded(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")
	first := s.Scene()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := <-s.Load(ctx, "late.obj", []byte(offsetOBJ), "obj")
	if !res.Stale {
		t.Fatal("canceled load not marked stale")
	}
	if s.Scene() != first {
		t.Error("stale load replaced the live scene")
	}
	if name, _, _ := s.Raw(); name != "cube.obj" {
		t.Errorf("Raw() name = %q, want cube.obj", name)
	}
}

func TestSessionSupersededGenerationIsDiscarded(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")
	first := s.Scene()

	// A completion carrying an older generation than the session's current
	// one must be discarded even when its own context was never canceled.
	stale := s.gen.Load()
	s.gen.Add(1)
	res := s.runLoad(context.Background(), stale, "old.obj", []byte(offsetOBJ), formats.OBJ)
	if !res.Stale {
		t.Fatal("superseded generation not marked stale")
	}
	if s.Scene() != first {
		t.Error("superseded load replaced the live scene")
	}
}

func TestSessionSecondLoadWins(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")
	loadScene(t, s, "tri.obj", offsetOBJ, "obj")

	if name, _, _ := s.Raw(); name != "tri.obj" {
		t.Errorf("Raw() name = %q, want tri.obj", name)
	}
	if sc := s.Scene(); sc.VertexCount() != 3 {
		t.Errorf("live scene has %d vertices, want 3", sc.VertexCount())
	}
	// Framing follows the newest scene, so the camera was reset.
	if _, err := s.CameraState(); err != nil {
		t.Errorf("CameraState failed: %v", err)
	}
}

func TestSessionCameraCommands(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")

	before, _ := s.CameraState()
	after, err := s.Camera(ZoomIn)
	if err != nil {
		t.Fatalf("Camera(ZoomIn) failed: %v", err)
	}
	if after.Distance() >= before.Distance() {
		t.Error("zoom in did not reduce camera distance")
	}

	if _, err := s.Camera(Command("barrelRoll")); err == nil {
		t.Error("want error for unknown command")
	}
}

func TestSessionExport(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")

	job, err := s.Export("stl")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if job.Filename != "cube.stl" {
		t.Errorf("Filename = %q, want cube.stl", job.Filename)
	}
	if job.Source != formats.OBJ || job.Target != formats.STL {
		t.Errorf("job formats = %s -> %s", job.Source, job.Target)
	}
	if job.ContentType != formats.STL.ContentType() {
		t.Errorf("ContentType = %q", job.ContentType)
	}
	if len(job.Data) == 0 {
		t.Error("export produced no bytes")
	}
}

func TestSessionExportRejectsSameFormat(t *testing.T) {
	s := NewSession(nil)
	loadScene(t, s, "cube.obj", cubeOBJ, "obj")

	for _, target := range []string{"obj", "OBJ"} {
		_, err := s.Export(target)
		var redundant *RedundantConversionError
		if !errors.As(err, &redundant) {
			t.Fatalf("Export(%q) error = %v, want RedundantConversionError", target, err)
		}
		if !strings.Contains(redundant.Error(), "obj") {
			t.Errorf("error message %q does not name the format", redundant.Error())
		}
	}
}
