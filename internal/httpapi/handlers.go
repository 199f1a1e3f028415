package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CZERTAINLY/Atelier/internal/model"
	"github.com/CZERTAINLY/Atelier/internal/service"
)

type uploadResponse struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

type generateRequest struct {
	Style    string      `json:"style"`
	Strength json.Number `json:"strength"`
	Prompt   string      `json:"prompt"`
}

type generateResponse struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"job_id"`
}

type galleryResponse struct {
	Images []model.Artifact `json:"images"`
	Total  int              `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, model.ErrTooLarge)
			return
		}
		writeError(w, r, model.NewValidationError("image", "malformed upload: %v", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, model.NewValidationError("image", "no file uploaded"))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	job, err := a.orc.SubmitUpload(r.Context(), service.Upload{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Body:     file,
	}, model.Params{
		Style:    r.FormValue("style"),
		Strength: r.FormValue("strength"),
		Prompt:   r.FormValue("prompt"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{JobID: job.ID, Filename: job.Input})
}

func (a *API) Generate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var params *model.Params
	var req generateRequest
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		writeError(w, r, model.NewValidationError("body", "invalid JSON: %v", err))
		return
	default:
		params = &model.Params{
			Style:    req.Style,
			Strength: req.Strength.String(),
			Prompt:   req.Prompt,
		}
	}

	if err := a.orc.Start(r.Context(), id, params); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{Accepted: true, JobID: id})
}

func (a *API) Progress(w http.ResponseWriter, r *http.Request) {
	rec := a.orc.Poll(r.Context(), chi.URLParam(r, "id"))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) Gallery(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	images, err := a.orc.Gallery(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if images == nil {
		images = []model.Artifact{}
	}
	writeJSON(w, http.StatusOK, galleryResponse{Images: images, Total: len(images)})
}

func (a *API) Download(w http.ResponseWriter, r *http.Request) {
	f, info, err := a.orc.OpenArtifact(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() {
		_ = f.Close()
	}()
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the sentinels of internal/model to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}

	var code int
	switch {
	case errors.Is(err, model.ErrTooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, model.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyStarted):
		code = http.StatusConflict
	default:
		code = http.StatusInternalServerError
		slog.ErrorContext(r.Context(), "request failed", "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, code, resp)
}
