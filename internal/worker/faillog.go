package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CZERTAINLY/Atelier/internal/fsx"
)

// FailureLog keeps one plain text file per failed invocation.
type FailureLog struct {
	dir string
	now func() time.Time
}

func NewFailureLog(dir string) (*FailureLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating failure log directory: %w", err)
	}
	return &FailureLog{
		dir: dir,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (l *FailureLog) Dir() string {
	return l.dir
}

// Write stores the outcome and returns the path of the new file.
func (l *FailureLog) Write(out Outcome, cause error) (string, error) {
	name := "error_" + l.now().Format("20060102_150405")
	if n, err := fsx.CleanName(out.Command.Name); err == nil {
		name += "_" + n
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Command: %s\n", out.Command.String())
	if !out.Started.IsZero() {
		fmt.Fprintf(&sb, "Started: %s\n", out.Started.Format(time.RFC3339Nano))
		fmt.Fprintf(&sb, "Duration: %s\n", out.Duration())
	}
	fmt.Fprintf(&sb, "Return: %d\n", out.ExitCode)
	fmt.Fprintf(&sb, "Error: %v\n", cause)
	fmt.Fprintf(&sb, "Output:\n%s\n", out.Stdout)
	fmt.Fprintf(&sb, "Stderr:\n%s\n", out.Stderr)

	for i := 0; ; i++ {
		path := filepath.Join(l.dir, name+".log")
		if i > 0 {
			path = filepath.Join(l.dir, fmt.Sprintf("%s.%d.log", name, i))
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		_, err = f.WriteString(sb.String())
		return path, errors.Join(err, f.Close())
	}
}
