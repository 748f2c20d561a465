// Package convert orchestrates decode, normalization, navigation and
// export around a single live canonical scene.
package convert

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/camera"
	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/formats"
	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/scene"
)

// Command is one discrete camera navigation command.
type Command string

const (
	ZoomIn      Command = "zoomIn"
	ZoomOut     Command = "zoomOut"
	RotateLeft  Command = "rotateLeft"
	RotateRight Command = "rotateRight"
	TopView     Command = "topView"
	BottomView  Command = "bottomView"
)

// loaded bundles everything belonging to one successful load. It is swapped
// wholesale, never mutated field by field, so export readers can never
// observe a torn scene.
type loaded struct {
	scene  *scene.Scene
	source formats.Format
	name   string
	raw    []byte
}

// LoadResult is the terminal outcome of one load request. Stale marks a
// completion that arrived after a newer load superseded it; its scene was
// discarded, not applied.
type LoadResult struct {
	Scene *scene.Scene
	Err   error
	Stale bool
}

// Session owns the single live scene and its camera state. Loads replace
// the scene atomically under a last-writer-wins rule; exports read a
// snapshot and never block navigation.
type Session struct {
	log *zap.Logger

	gen     atomic.Uint64
	current atomic.Pointer[loaded]

	mu         sync.Mutex // guards cam and cancelPrev
	cam        *camera.State
	cancelPrev context.CancelFunc
}

// NewSession returns an empty session; every operation except Load fails
// with ErrNoSceneLoaded until the first successful load completes.
func NewSession(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{log: log}
}

// Load decodes and normalizes the given bytes asynchronously. Issuing a new
// load supersedes any load still in flight: the stale operation's result is
// discarded even if it finishes later, and only the newest load may replace
// the live scene. The returned channel receives exactly one result.
func (s *Session) Load(ctx context.Context, name string, data []byte, tag string) <-chan LoadResult {
	out := make(chan LoadResult, 1)

	format, err := formats.ParseFormat(tag)
	if err != nil {
		out <- LoadResult{Err: err}
		return out
	}

	ctx, cancel := context.WithCancel(ctx)

	// Generation allocation and cancel registration happen under one lock
	// hold so later generations always register later: an older load can
	// never cancel a newer one.
	s.mu.Lock()
	gen := s.gen.Add(1)
	if s.cancelPrev != nil {
		s.cancelPrev()
	}
	s.cancelPrev = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		out <- s.runLoad(ctx, gen, name, data, format)
	}()
	return out
}

func (s *Session) runLoad(ctx context.Context, gen uint64, name string, data []byte, format formats.Format) LoadResult {
	sc, err := formats.Decode(data, format, name)
	if err != nil {
		s.log.Warn("decode failed",
			zap.String("file", name),
			zap.String("format", string(format)),
			zap.Error(err))
		return LoadResult{Err: err}
	}

	// Cancellation point: a failed or superseded load leaves the previous
	// scene untouched.
	if ctx.Err() != nil || gen != s.gen.Load() {
		s.log.Info("discarding stale load",
			zap.String("file", name),
			zap.Uint64("generation", gen))
		return LoadResult{Scene: sc, Stale: true, Err: ctx.Err()}
	}

	framing := scene.Normalize(sc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen.Load() {
		s.log.Info("discarding stale load",
			zap.String("file", name),
			zap.Uint64("generation", gen))
		return LoadResult{Scene: sc, Stale: true}
	}
	s.current.Store(&loaded{scene: sc, source: format, name: name, raw: data})
	s.cam = camera.NewState(framing.Position, framing.Target)

	s.log.Info("scene loaded",
		zap.String("file", name),
		zap.String("format", string(format)),
		zap.Int("meshes", sc.MeshCount()),
		zap.Int("vertices", sc.VertexCount()),
		zap.Int("faces", sc.FaceCount()))
	return LoadResult{Scene: sc}
}

// Scene returns the live scene, or nil before the first successful load.
func (s *Session) Scene() *scene.Scene {
	if cur := s.current.Load(); cur != nil {
		return cur.scene
	}
	return nil
}

// SourceFormat returns the live scene's source format tag.
func (s *Session) SourceFormat() (formats.Format, bool) {
	if cur := s.current.Load(); cur != nil {
		return cur.source, true
	}
	return "", false
}

// Raw returns the most recently loaded original bytes and file name.
func (s *Session) Raw() (string, []byte, bool) {
	if cur := s.current.Load(); cur != nil {
		return cur.name, cur.raw, true
	}
	return "", nil, false
}

// Camera applies one navigation command and returns the resulting state.
// Commands are serialized through the single owned camera state and fail
// with ErrNoSceneLoaded before the first load.
func (s *Session) Camera(cmd Command) (camera.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cam == nil {
		return camera.State{}, ErrNoSceneLoaded
	}
	switch cmd {
	case ZoomIn:
		s.cam.ZoomIn()
	case ZoomOut:
		s.cam.ZoomOut()
	case RotateLeft:
		s.cam.RotateLeft()
	case RotateRight:
		s.cam.RotateRight()
	case TopView:
		s.cam.TopView()
	case BottomView:
		s.cam.BottomView()
	default:
		return camera.State{}, fmt.Errorf("unknown camera command %q", cmd)
	}
	return *s.cam, nil
}

// CameraState returns the current camera state without mutating it.
func (s *Session) CameraState() (camera.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cam == nil {
		return camera.State{}, ErrNoSceneLoaded
	}
	return *s.cam, nil
}

// Export encodes the live scene into the target format. Exporting to the
// scene's own source format is rejected before any encoder runs. Export
// reads an atomic snapshot, so it may interleave freely with navigation and
// with in-flight loads.
func (s *Session) Export(target string) (*Job, error) {
	format, err := formats.ParseFormat(target)
	if err != nil {
		return nil, err
	}

	cur := s.current.Load()
	if cur == nil {
		return nil, ErrNoSceneLoaded
	}
	if strings.EqualFold(string(format), string(cur.source)) {
		return nil, &RedundantConversionError{Format: string(format)}
	}

	data, err := formats.Encode(cur.scene, format)
	if err != nil {
		s.log.Warn("encode failed",
			zap.String("target", string(format)),
			zap.Error(err))
		return nil, err
	}

	job := &Job{
		Source:      cur.source,
		Target:      format,
		Filename:    outputName(cur.name, format),
		ContentType: format.ContentType(),
		Data:        data,
	}
	s.log.Info("scene exported",
		zap.String("source", string(job.Source)),
		zap.String("target", string(job.Target)),
		zap.String("file", job.Filename),
		zap.Int("bytes", len(job.Data)))
	return job, nil
}
