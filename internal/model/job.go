package model

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultStrength = 0.75

	jobIDPrefix = "img_"
	outPrefix   = "gen_"
	outExt      = ".png"
)

// Job is one request to transform a stored input into a styled output.
// ID is immutable and every derived name (progress, output, metadata) is
// computed from it.
type Job struct {
	ID           string    `json:"id"`
	Input        string    `json:"input"`
	OriginalName string    `json:"original_name,omitempty"`
	Style        Style     `json:"style"`
	Strength     float64   `json:"strength"`
	Prompt       string    `json:"prompt"`
	CreatedAt    time.Time `json:"created_at"`
}

// Params are the user tunables of a generation.
type Params struct {
	Style    string
	Strength string
	Prompt   string
}

// NewJobID returns a filesystem safe name built from the upload time and a
// random suffix, e.g. img_20261014_153000_4f1c2a9b0d3e7.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return jobIDPrefix + now.Format("20060102_150405") + "_" + suffix
}

// JobIDFromInput derives the job identity from a stored input name.
func JobIDFromInput(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidJobID reports whether id can be used to derive file names.
func ValidJobID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

// OutputName is the artifact name the worker must create.
func (j Job) OutputName() string {
	return OutputName(j.ID, j.Style)
}

func OutputName(id string, style Style) string {
	return outPrefix + id + "_" + string(style) + outExt
}

// ParseStrength parses s as a float and clamps it to [0,1]. Empty or
// malformed input yields DefaultStrength.
func ParseStrength(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultStrength
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return DefaultStrength
	}
	return ClampStrength(f)
}

func ClampStrength(f float64) float64 {
	switch {
	case f != f: // NaN
		return DefaultStrength
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// FormatStrength renders strength the way the worker contract expects.
func FormatStrength(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// Submission is the audit record persisted next to the stored input.
type Submission struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type,omitempty"`
	Size         int64     `json:"size"`
	Style        Style     `json:"style"`
	Strength     float64   `json:"strength"`
	Prompt       string    `json:"prompt"`
	UploadedAt   time.Time `json:"uploaded_at"`
	Status       Status    `json:"status"`
}

func (s Submission) Job() Job {
	return Job{
		ID:           JobIDFromInput(s.Filename),
		Input:        s.Filename,
		OriginalName: s.OriginalName,
		Style:        s.Style,
		Strength:     s.Strength,
		Prompt:       s.Prompt,
		CreatedAt:    s.UploadedAt,
	}
}
