// Package server exposes the intake pipeline over HTTP: an upload page, the
// POST /process_audio endpoint, health probes, and Prometheus metrics.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MrWong99/intake/internal/health"
	"github.com/MrWong99/intake/internal/observe"
	"github.com/MrWong99/intake/internal/pipeline"
)

//go:embed index.html
var indexHTML []byte

// uploadField is the multipart field carrying the audio file.
const uploadField = "audio_file"

// Runner runs the pipeline on a staged audio file.
type Runner interface {
	Run(ctx context.Context, audioPath string) (*pipeline.Result, error)
}

// Config holds the server settings.
type Config struct {
	// UploadDir is where uploads are staged. Created on first use.
	UploadDir string

	// MaxUploadBytes caps the request body. Zero means no limit.
	MaxUploadBytes int64

	// RequestTimeout bounds each request. Zero means no limit.
	RequestTimeout time.Duration

	// Metrics receives HTTP request durations. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MetricsHandler serves GET /metrics when non-nil.
	MetricsHandler http.Handler

	// Checkers back GET /readyz.
	Checkers []health.Checker
}

// Server is the HTTP surface. It implements [http.Handler].
type Server struct {
	runner Runner
	cfg    Config
	router chi.Router
}

var _ http.Handler = (*Server)(nil)

// New returns a Server that processes uploads with runner.
func New(runner Runner, cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	s := &Server{runner: runner, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(cfg.Metrics))

	health.New(cfg.Checkers...).Register(r)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Get("/", s.index)
		r.Post("/process_audio", s.processAudio)
	})

	s.router = r
	return s
}

// ServeHTTP dispatches to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) processAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	file, header, err := r.FormFile(uploadField)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit)
		} else {
			err = fmt.Errorf("missing or invalid %s upload: %w", uploadField, err)
		}
		log.Warn("upload rejected", "err", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse(err))
		return
	}
	defer file.Close()

	path, err := s.stage(file, header.Filename)
	if err != nil {
		log.Error("staging upload failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse(err))
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("removing staged upload failed", "path", path, "err", err)
		}
	}()
	log.Debug("upload staged", "path", path, "size", header.Size)

	res, err := s.runner.Run(ctx, path)
	if err != nil {
		writeJSON(w, HTTPStatus(ctx, err), ErrorResponse(err))
		return
	}
	writeJSON(w, http.StatusOK, NewResponse(res))
}

// stage copies the upload to <UploadDir>/<uuid hex>_<sanitised name>.
func (s *Server) stage(src multipart.File, filename string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("server: create upload dir: %w", err)
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	path := filepath.Join(s.cfg.UploadDir, id+"_"+SanitizeFilename(filename))

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("server: create staged file: %w", err)
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("server: write staged file: %w", err)
	}
	return path, nil
}

// SanitizeFilename reduces a client-supplied file name to its base name with
// every byte outside [A-Za-z0-9._-] replaced by '_' and leading dots removed.
// Names with nothing else left become "upload".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	b := []byte(name)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
		default:
			b[i] = '_'
		}
	}
	out := strings.TrimLeft(string(b), ".")
	if strings.Trim(out, "._") == "" {
		return "upload"
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
