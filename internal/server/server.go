// Package server exposes the mesh core over HTTP: file ingestion, format
// conversion downloads, and camera navigation commands.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/convert"
	"github.com/nagasai-03/Insyde.IO-3D-Model/internal/formats"
)

// Server wires the conversion session to HTTP handlers.
type Server struct {
	session     *convert.Session
	log         *zap.Logger
	maxUploadMB int
}

// New creates a server around the given session.
func New(session *convert.Session, log *zap.Logger, maxUploadMB int) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 64
	}
	return &Server{session: session, log: log, maxUploadMB: maxUploadMB}
}

// Handler returns the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/models/", s.handleModel)
	mux.HandleFunc("/convert/", s.handleConvert)
	mux.HandleFunc("/camera", s.handleCameraState)
	mux.HandleFunc("/camera/", s.handleCameraCommand)
	mux.HandleFunc("/scene", s.handleScene)
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// statusFor maps the core's error kinds onto HTTP statuses.
func statusFor(err error) int {
	var unsupported *formats.UnsupportedFormatError
	var decodeErr *formats.DecodeError
	var redundant *convert.RedundantConversionError
	switch {
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &redundant):
		return http.StatusBadRequest
	case errors.Is(err, convert.ErrNoSceneLoaded):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleUpload ingests one model file (multipart field "file"), decodes and
// normalizes it, and makes it the live scene.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxUploadMB)<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: %v", err)
		return
	}

	tag := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	result := <-s.session.Load(r.Context(), filepath.Base(header.Filename), data, tag)
	switch {
	case result.Err != nil:
		writeError(w, statusFor(result.Err), "%v", result.Err)
	case result.Stale:
		writeError(w, http.StatusConflict, "superseded by a newer upload")
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"message":  "File uploaded successfully",
			"filename": header.Filename,
		})
	}
}

// handleModel serves the most recently uploaded raw bytes, mirroring the
// original GET /models/<filename> route. Nothing is persisted server-side.
func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name, data, ok := s.session.Raw()
	requested := path.Base(r.URL.Path)
	if !ok || requested != name {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	contentType := "application/octet-stream"
	if f, err := formats.ParseFormat(filepath.Ext(name)); err == nil {
		contentType = f.ContentType()
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// handleConvert exports the live scene to the target format named in the
// path and streams it back as an attachment.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	target := path.Base(r.URL.Path)

	job, err := s.session.Export(target)
	if err != nil {
		writeError(w, statusFor(err), "%v", err)
		return
	}
	w.Header().Set("Content-Type", job.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": job.Filename}))
	_, _ = w.Write(job.Data)
}

func (s *Server) handleCameraState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	state, err := s.session.CameraState()
	if err != nil {
		writeError(w, statusFor(err), "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleCameraCommand applies one discrete navigation command named in the
// path and returns the resulting camera state.
func (s *Server) handleCameraCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cmd := convert.Command(path.Base(r.URL.Path))

	state, err := s.session.Camera(cmd)
	if err != nil {
		writeError(w, statusFor(err), "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleScene reports a summary of the live scene.
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sc := s.session.Scene()
	if sc == nil {
		writeError(w, http.StatusNotFound, "no scene loaded")
		return
	}
	source, _ := s.session.SourceFormat()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":     sc.Name,
		"format":   source,
		"meshes":   sc.MeshCount(),
		"vertices": sc.VertexCount(),
		"faces":    sc.FaceCount(),
	})
}
