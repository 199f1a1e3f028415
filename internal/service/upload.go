package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/CZERTAINLY/Atelier/internal/fsx"
	"github.com/CZERTAINLY/Atelier/internal/model"
)

const defaultExt = "jpg"

var allowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
}

var allowedExts = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"gif":  {},
}

// Upload is an image sent by a client.
type Upload struct {
	// Name is the client side file name, used only for its extension.
	Name string
	// MimeType is the declared content type, may be empty.
	MimeType string
	Body     io.Reader
}

// SubmitUpload validates and stores the image then submits it as a new Job.
func (o *Orchestrator) SubmitUpload(ctx context.Context, up Upload, params model.Params) (model.Job, error) {
	if up.Body == nil {
		return model.Job{}, model.NewValidationError("image", "no file uploaded")
	}
	if up.MimeType != "" {
		declared, _, err := mime.ParseMediaType(up.MimeType)
		if err != nil || (declared != "application/octet-stream" && !allowed(declared)) {
			return model.Job{}, model.NewValidationError("image", "invalid file type %q", up.MimeType)
		}
	}

	limit := o.maxBytes
	if limit <= 0 {
		limit = model.DefaultConfig().Upload.MaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(up.Body, limit+1))
	if err != nil {
		return model.Job{}, fmt.Errorf("reading upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return model.Job{}, model.NewValidationError("image", "uploaded file is empty")
	case int64(len(data)) > limit:
		return model.Job{}, fmt.Errorf("%w: %w", model.ErrTooLarge,
			model.NewValidationError("image", "file exceeds %d bytes", limit))
	}

	detected := mimetype.Detect(data)
	if !allowed(detected.String()) {
		return model.Job{}, model.NewValidationError("image", "invalid file type %q", detected.String())
	}

	id := model.NewJobID(o.now())
	filename := id + "." + extension(up.Name, detected)
	if err := fsx.WriteAtomic(filepath.Join(o.inputs, filename), data); err != nil {
		return model.Job{}, fmt.Errorf("storing upload: %w", err)
	}

	sub := model.Submission{
		Filename:     filename,
		OriginalName: filepath.Base(up.Name),
		MimeType:     detected.String(),
		Size:         int64(len(data)),
		UploadedAt:   o.now(),
	}
	return o.submit(ctx, sub, params)
}

func allowed(mimeType string) bool {
	m, _, _ := strings.Cut(mimeType, ";")
	m = strings.ToLower(strings.TrimSpace(m))
	return slices.Contains(allowedTypes, m)
}

// extension prefers the client name, then the sniffed type.
func extension(name string, detected *mimetype.MIME) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := allowedExts[ext]; ok {
		return ext
	}
	ext = strings.TrimPrefix(detected.Extension(), ".")
	if _, ok := allowedExts[ext]; ok {
		return ext
	}
	return defaultExt
}
