// Package formats decodes and encodes the supported mesh interchange
// formats against the canonical scene model. The format set is closed:
// dispatch is an exhaustive switch, not a registry.
package formats

import (
	"fmt"
	"strings"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/scene"
)

// Format is a mesh file format tag.
type Format string

const (
	OBJ  Format = "obj"
	STL  Format = "stl"
	PLY  Format = "ply"
	GLTF Format = "gltf"
	GLB  Format = "glb"
)

// All lists every supported format tag.
func All() []Format {
	return []Format{OBJ, STL, PLY, GLTF, GLB}
}

// ParseFormat normalizes a tag (case-insensitive, optional leading dot) and
// rejects anything outside the supported set.
func ParseFormat(tag string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), ".")))
	switch f {
	case OBJ, STL, PLY, GLTF, GLB:
		return f, nil
	}
	return "", &UnsupportedFormatError{Tag: tag}
}

// Ext returns the file extension for the format, with leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ContentType returns the MIME classification used by the export boundary.
func (f Format) ContentType() string {
	switch f {
	case STL:
		return "model/stl"
	case OBJ, PLY:
		return "text/plain"
	case GLTF:
		return "application/json"
	case GLB:
		return "model/gltf-binary"
	}
	return "application/octet-stream"
}

// Binary reports whether the format's on-disk form is binary.
func (f Format) Binary() bool {
	return f == STL || f == GLB
}

// Decode parses raw bytes in the given format into a canonical scene. A
// failed decode returns a *DecodeError and leaves no partial state behind.
func Decode(data []byte, f Format, name string) (*scene.Scene, error) {
	switch f {
	case OBJ:
		return decodeOBJ(data, name)
	case STL:
		return decodeSTL(data, name)
	case PLY:
		return decodePLY(data, name)
	case GLTF, GLB:
		return decodeGLTF(data, f, name)
	}
	return nil, &UnsupportedFormatError{Tag: string(f)}
}

// Encode serializes a canonical scene into the target format, applying that
// format's capability truncation (dropped color/UV/material are expected
// loss, not errors).
func Encode(sc *scene.Scene, f Format) ([]byte, error) {
	switch f {
	case OBJ:
		return encodeOBJ(sc)
	case STL:
		return encodeSTL(sc)
	case PLY:
		return encodePLY(sc)
	case GLTF, GLB:
		return encodeGLTF(sc, f)
	}
	return nil, &UnsupportedFormatError{Tag: string(f)}
}

// UnsupportedFormatError reports a tag outside the supported set, at either
// the ingestion or the export boundary.
type UnsupportedFormatError struct {
	Tag string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q", e.Tag)
}

// DecodeError reports malformed or truncated input. Element identifies the
// offending part of the file (a line number, element name, or chunk).
type DecodeError struct {
	Format  Format
	Element string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("decode %s: %s: %v", e.Format, e.Element, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a serialization failure for the target format.
type EncodeError struct {
	Format Format
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func decodeErrf(f Format, element, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Format: f, Element: element, Err: fmt.Errorf(format, args...)}
}
