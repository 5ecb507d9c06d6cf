// Package server is the HTTP adapter around the conversion pipeline:
// multipart upload in, plain text out. It owns transport concerns only;
// all conversion semantics live in internal/convert.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/webarctools/webarc/internal/app"
	"github.com/webarctools/webarc/internal/convert"
)

//go:embed static/index.html
var indexPage []byte

// multipart framing slack on top of the payload cap, so the transport-edge
// body limit does not reject uploads whose file part is exactly at the cap.
const multipartOverhead = 1 << 20

// Server serves the conversion API.
type Server struct {
	cfg  app.Config
	conv *convert.Converter
	log  zerolog.Logger
}

// New wires a Server around a Converter built from cfg.
func New(cfg app.Config, logger zerolog.Logger) *Server {
	return &Server{
		cfg: cfg,
		conv: convert.New(convert.Options{
			MaxBytes: cfg.MaxUploadBytes,
			Timeout:  cfg.ConvertTimeout,
		}),
		log: logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(req).Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Int("bytes", size).
			Dur("duration", duration).
			Msg("request")
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/api/convert", s.handleConvert)
	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": app.Version,
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		switch {
		case isMaxBytesError(err):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusUnprocessableEntity, "missing file in request")
		default:
			writeError(w, http.StatusBadRequest, "malformed upload")
		}
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed upload")
		return
	}

	text, err := s.conv.Convert(r.Context(), data)
	if err != nil {
		var cerr *convert.Error
		if errors.As(err, &cerr) {
			hlog.FromRequest(r).Warn().
				Str("kind", string(cerr.Kind)).
				Str("stage", cerr.Stage).
				Str("filename", header.Filename).
				Msg("conversion rejected")
			switch cerr.Kind {
			case convert.KindSizeLimit:
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			case convert.KindFormat:
				writeError(w, http.StatusBadRequest, cerr.Detail)
			default:
				writeError(w, http.StatusInternalServerError, "server processing error")
			}
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("conversion failed")
		writeError(w, http.StatusInternalServerError, "server processing error")
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": txtName(header.Filename),
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", disposition)
	w.Write([]byte(text))
}

// txtName derives the download filename from the uploaded one, swapping the
// extension for .txt.
func txtName(uploaded string) string {
	base := filepath.Base(strings.ReplaceAll(uploaded, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		return "converted.txt"
	}
	return base + ".txt"
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
