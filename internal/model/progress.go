package model

import "time"

type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Progress is the durable status snapshot polled by clients.
type Progress struct {
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Unknown is returned for jobs without any record.
func Unknown() Progress {
	return Progress{Status: StatusUnknown, Progress: 0}
}

func Uploaded(now time.Time) Progress {
	return Progress{Status: StatusUploaded, Progress: 0, Message: "uploaded", UpdatedAt: now}
}

func Processing(now time.Time, percent int, message string) Progress {
	if message == "" {
		message = "processing"
	}
	return Progress{Status: StatusProcessing, Progress: ClampPercent(percent), Message: message, UpdatedAt: now}
}

func Complete(now time.Time) Progress {
	return Progress{Status: StatusComplete, Progress: 100, Message: "complete", UpdatedAt: now}
}

func Failed(now time.Time, reason string) Progress {
	return Progress{Status: StatusFailed, Progress: 0, Message: "failed", Error: reason, UpdatedAt: now}
}

func ClampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
