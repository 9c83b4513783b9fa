package templates

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/templio/shield"
)

// RateLimitRule names the limit applied to thumbnail-generating routes.
const RateLimitRule = "thumbnail"

// Routes returns the /api/templates route tree. rl may be nil; otherwise
// create and update are limited under RateLimitRule.
func (s *Service) Routes(rl *shield.RateLimiter) func(chi.Router) {
	limited := func(next http.Handler) http.Handler { return next }
	if rl != nil {
		limited = rl.Limit(RateLimitRule)
	}
	preview := shield.SecurityHeaders(shield.PreviewHeaders())

	return func(r chi.Router) {
		r.Get("/", s.handleList)
		r.With(limited).Post("/", s.handleCreate)
		r.With(preview).Post("/preview", s.handlePreviewDraft)
		r.Get("/activity", s.handleActivity)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.With(limited).Put("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Patch("/title", s.handleRename)
			r.Post("/favorite", s.handleToggleFavorite)
			r.With(preview).Get("/preview", s.handlePreview)
			r.Get("/markdown", s.handleMarkdown)
		})
	}
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	p, err := s.List(r.Context(), r.URL.Query().Get("sort"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	saved, err := s.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if !decodeBody(w, r, &in) {
		return
	}
	saved, err := s.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Service) handleRename(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	t, err := s.UpdateTitle(r.Context(), chi.URLParam(r, "id"), in.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Service) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	t, err := s.ToggleFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHTML(w, doc)
}

func (s *Service) handlePreviewDraft(w http.ResponseWriter, r *http.Request) {
	if _, err := userFrom(r.Context(), "preview"); err != nil {
		writeError(w, r, err)
		return
	}
	var in CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	doc, err := s.SanitizePreview(in.HTMLCode, in.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHTML(w, doc)
}

func (s *Service) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	md, err := s.ExportMarkdown(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(md))
}

func (s *Service) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	evs, err := s.Activity(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

// writeError maps service errors to status codes. Storage and unexpected
// errors are logged and answered with a generic retry message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *ValidationError
		ae *AuthError
		se *StorageError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ve)
	case errors.As(err, &ae):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "template not found"})
	case errors.Is(err, ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "template was changed elsewhere, reload and retry"})
	case errors.As(err, &se):
		shield.GetLogger(r.Context()).Error("templates: storage failure", "op", se.Op, "error", se.Err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not save your changes, please retry"})
	default:
		shield.GetLogger(r.Context()).Error("templates: request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "something went wrong, please retry"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}
