// Package httpapi exposes the Orchestrator over HTTP.
package httpapi

import (
	"context"
	"io/fs"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CZERTAINLY/Atelier/internal/model"
	"github.com/CZERTAINLY/Atelier/internal/service"
)

// Orchestrator is the subset of service.Orchestrator served over HTTP.
type Orchestrator interface {
	SubmitUpload(ctx context.Context, up service.Upload, params model.Params) (model.Job, error)
	Start(ctx context.Context, id string, params *model.Params) error
	Poll(ctx context.Context, id string) model.Progress
	Gallery(ctx context.Context, limit int) ([]model.Artifact, error)
	OpenArtifact(name string) (*os.File, fs.FileInfo, error)
}

// multipartOverhead is the allowance for multipart framing and form fields
// on top of the image itself.
const multipartOverhead = 1 << 20

type API struct {
	orc      Orchestrator
	maxBytes int64
}

// NewRouter mounts every endpoint. maxBytes bounds the uploaded image.
func NewRouter(orc Orchestrator, maxBytes int64) http.Handler {
	api := &API{orc: orc, maxBytes: maxBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, Logger, middleware.Recoverer)

	r.Get("/v1/healthz", api.Health)
	r.Post("/v1/uploads", api.Upload)
	r.Route("/v1/jobs/{id}", func(r chi.Router) {
		r.Post("/generate", api.Generate)
		r.Get("/progress", api.Progress)
	})
	r.Route("/v1/gallery", func(r chi.Router) {
		r.Get("/", api.Gallery)
		r.Get("/{name}", api.Download)
	})
	return r
}
