package model

import "time"

// Artifact is one gallery entry; it is only ever built from an existing
// output file.
type Artifact struct {
	Output    string    `json:"output"`
	Input     string    `json:"input"`
	Style     Style     `json:"style"`
	CreatedAt time.Time `json:"date"`
	Size      int64     `json:"size"`
}

// ArtifactMeta is the sidecar record written when a job completes.
type ArtifactMeta struct {
	JobID     string    `json:"job_id,omitempty"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Style     Style     `json:"style"`
	Strength  float64   `json:"strength"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}
