package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/tracekit/pkg/buildinfo"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/session"
	"github.com/matzehuels/tracekit/pkg/source"
)

// fallbackFilename is served when a stored name is unsafe for a header.
const fallbackFilename = "image.svg"

// convertResponse is a session snapshot plus upload bookkeeping.
type convertResponse struct {
	session.Snapshot
	Ignored int `json:"ignored,omitempty"`
}

// downloadResponse describes a created artifact.
type downloadResponse struct {
	Handle    string `json:"handle"`
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Size      int    `json:"size"`
	URL       string `json:"url"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, struct {
		Status string         `json:"status"`
		Build  buildinfo.Info `json:"build"`
		Tracer string         `json:"tracer"`
	}{"ok", buildinfo.Get(), s.runner.Adapter.Name()}, http.StatusOK)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := session.New(s.artifacts, s.cfg.SessionTTL)
	if err := s.sessions.Set(r.Context(), sess); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Debug("session created", "session", sess.ID)
	respondJSON(w, sess.Snapshot(), http.StatusCreated)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, sess.Snapshot(), http.StatusOK)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.sessions.Delete(r.Context(), sess.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConvert converts the single multipart field "file".
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	s.convertUpload(w, r, "file")
}

// handleDrop converts the first of the multipart fields "files". The rest
// are reported as ignored.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	s.convertUpload(w, r, "files")
}

func (s *Server) convertUpload(w http.ResponseWriter, r *http.Request, field string) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUpload)
	if err := r.ParseMultipartForm(s.cfg.MaxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondError(w, errors.ErrCodeInvalidInput, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "failed to parse form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.options(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	f, ignored, err := source.First(uploads(r.MultipartForm, field))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if ignored > 0 {
		s.logger.Warn("only the first file is converted", "session", sess.ID, "ignored", ignored)
	}

	if _, err := sess.Convert(r.Context(), s.runner, f, opts); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, convertResponse{Snapshot: sess.Snapshot(), Ignored: ignored}, http.StatusOK)
}

// options merges the optional JSON form field "options" over the server
// defaults.
func (s *Server) options(r *http.Request) (pipeline.Options, error) {
	opts := s.cfg.Options
	if raw := r.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return pipeline.Options{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid options")
		}
	}
	opts.Logger = nil
	return opts, opts.Validate()
}

func uploads(form *multipart.Form, field string) []*source.File {
	if form == nil {
		return nil
	}
	headers := form.File[field]
	files := make([]*source.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, source.FromMultipart(fh))
	}
	return files
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	variant, err := present.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := sess.Download(r.Context(), variant)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, downloadResponse{
		Handle:    a.Handle,
		Filename:  a.Filename,
		MediaType: a.MediaType,
		Size:      len(a.Data),
		URL:       "/api/artifacts/" + a.Handle,
	}, http.StatusCreated)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if err := errors.ValidateID(handle); err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := s.artifacts.Get(r.Context(), handle)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	filename := a.Filename
	if err := errors.ValidateFilename(filename); err != nil {
		s.logger.Debug("unsafe artifact filename", "filename", filename, "err", err)
		filename = fallbackFilename
	}
	w.Header().Set("Content-Type", a.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}

// session resolves the {id} URL parameter.
func (s *Server) session(r *http.Request) (*session.Session, error) {
	id := chi.URLParam(r, "id")
	if err := errors.ValidateID(id); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.New(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	return sess, nil
}

// =============================================================================
// Responses
// =============================================================================

// statusFor maps error codes to HTTP status codes.
var statusFor = map[errors.Code]int{
	errors.ErrCodeInputRejected:    http.StatusUnsupportedMediaType,
	errors.ErrCodeReadError:        http.StatusUnprocessableEntity,
	errors.ErrCodeImageLoadError:   http.StatusUnprocessableEntity,
	errors.ErrCodeInvalidInput:     http.StatusBadRequest,
	errors.ErrCodeInvalidVariant:   http.StatusBadRequest,
	errors.ErrCodeInvalidFilename:  http.StatusBadRequest,
	errors.ErrCodeNotFound:         http.StatusNotFound,
	errors.ErrCodeSessionNotFound:  http.StatusNotFound,
	errors.ErrCodeArtifactNotFound: http.StatusNotFound,
	errors.ErrCodeNoResult:         http.StatusConflict,
	errors.ErrCodeTimeout:          http.StatusGatewayTimeout,
	errors.ErrCodeUnsupported:      http.StatusNotImplemented,
}

// StatusCode returns the HTTP status for err.
func StatusCode(err error) int {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if status, ok := statusFor[errors.GetCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	msg := errors.UserMessage(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "code", code, "err", err)
	}
	respondJSON(w, errorBody{Code: code, Error: msg}, status)
}

type errorBody struct {
	Code  errors.Code `json:"code"`
	Error string      `json:"error"`
}

func respondError(w http.ResponseWriter, code errors.Code, message string, status int) {
	respondJSON(w, errorBody{Code: code, Error: message}, status)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
