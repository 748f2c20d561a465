// Package camera implements the orbit navigation state machine. All
// commands pivot around a fixed target (the normalized scene origin) and
// never touch the up vector.
package camera

import (
	"math"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

const (
	// RotateStep is the yaw applied by one rotate command, in radians.
	RotateStep = 0.1

	// ZoomInFactor and ZoomOutFactor scale the camera offset per zoom
	// command (20% steps either way).
	ZoomInFactor  = 0.8
	ZoomOutFactor = 1.2

	// MinZoomDistance is the closest the camera may get to the target.
	// Zooming in at or below this distance is a no-op.
	MinZoomDistance = 1e-2
)

// State is the mutable camera state for one loaded scene. Target is the
// orbit pivot and stays put for the scene's lifetime; Up is fixed to the
// vertical axis.
type State struct {
	Position vec3d.T `json:"position"`
	Target   vec3d.T `json:"target"`
	Up       vec3d.T `json:"up"`
}

// NewState places the camera at position looking at target with a vertical
// up vector.
func NewState(position, target vec3d.T) *State {
	return &State{
		Position: position,
		Target:   target,
		Up:       vec3d.T{0, 1, 0},
	}
}

// Distance returns the current distance from position to target.
func (s *State) Distance() float64 {
	off := s.offset()
	return off.Length()
}

func (s *State) offset() vec3d.T {
	return vec3d.Sub(&s.Position, &s.Target)
}

func (s *State) setOffset(off vec3d.T) {
	s.Position = vec3d.Add(&s.Target, &off)
}

// ZoomIn moves the camera 20% closer to the target. At or below the minimum
// distance the command is a no-op so the offset can never collapse to zero.
func (s *State) ZoomIn() {
	off := s.offset()
	dist := off.Length()
	if dist <= MinZoomDistance {
		return
	}
	off.Scale(ZoomInFactor)
	if off.Length() < MinZoomDistance {
		off.Normalize().Scale(MinZoomDistance)
	}
	s.setOffset(off)
}

// ZoomOut moves the camera 20% further from the target.
func (s *State) ZoomOut() {
	off := s.offset()
	off.Scale(ZoomOutFactor)
	s.setOffset(off)
}

// RotateLeft orbits the camera around the vertical axis through the target
// by +0.1 radian.
func (s *State) RotateLeft() {
	s.rotate(RotateStep)
}

// RotateRight orbits the camera around the vertical axis through the target
// by -0.1 radian.
func (s *State) RotateRight() {
	s.rotate(-RotateStep)
}

// rotate is a pure rotation of the offset vector about the vertical axis;
// distance to target is preserved, no translation drift.
func (s *State) rotate(angle float64) {
	off := s.offset()
	sin, cos := math.Sin(angle), math.Cos(angle)
	rotated := vec3d.T{
		off[0]*cos + off[2]*sin,
		off[1],
		-off[0]*sin + off[2]*cos,
	}
	s.setOffset(rotated)
}

// TopView relocates the camera directly above the target at the current
// distance. Repeated calls are idempotent.
func (s *State) TopView() {
	s.setOffset(vec3d.T{0, s.Distance(), 0})
}

// BottomView relocates the camera directly below the target at the current
// distance. Repeated calls are idempotent.
func (s *State) BottomView() {
	s.setOffset(vec3d.T{0, -s.Distance(), 0})
}
