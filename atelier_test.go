package atelier_test

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	atelierPath string

	// tmpDir is a function used to create a tempdir
	// -test.keepdir flag says test to use os.MkdirTemp
	// default is t.TempDir, which will be cleaned up
	tmpDir func(t *testing.T) string
)

// worker follows the generator contract: it parses the flags, reports
// progress and copies the input image to the output path.
const worker = `
while [ $# -gt 0 ]; do
  case "$1" in
    --input) in="$2"; shift ;;
    --output) out="$2"; shift ;;
  esac
  shift
done
echo STATUS:loading
echo PROGRESS:10
sleep 0.1
echo PROGRESS:60
cp "$in" "$out"
echo PROGRESS:100
`

func TestMain(m *testing.M) {
	var keepTestDir bool
	flag.BoolVar(&keepTestDir, "test.keepdir", false, "use os.TempDir instead of t.TempDir to keep test artifacts")

	flag.Parse()

	if testing.Short() {
		slog.Warn("integration tests with -short are ignored")
		os.Exit(0)
	}
	if runtime.GOOS == "windows" {
		slog.Warn("integration tests require a POSIX shell")
		os.Exit(0)
	}

	if !keepTestDir {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			return t.TempDir()
		}
	} else {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			dir, err := os.MkdirTemp("", t.Name()+"*")
			require.NoError(t, err)
			_, err = fmt.Fprintf(t.Output(), "TEMPDIR %s: -test.keepdir used, so it won't be automatically deleted", dir)
			require.NoError(t, err)
			return dir
		}
	}

	if !isExecutable("atelier-ci") {
		slog.Warn("integration tests are ignored: run go build -race -cover -covermode=atomic -o atelier-ci ./cmd/atelier/ first")
		os.Exit(0)
	}

	var err error
	atelierPath, err = filepath.Abs("atelier-ci")
	if err != nil {
		slog.Error("can't get abspath for atelier-ci", "error", err)
		os.Exit(1)
	}
	coverDir, err := filepath.Abs("coverage")
	if err != nil {
		slog.Error("can't get value for GOCOVERDIR for atelier-ci", "error", err)
		os.Exit(1)
	}
	err = rmRfMkdirp(coverDir)
	if err != nil {
		slog.Error("can't reset GOCOVERDIR for atelier-ci", "error", err, "coverdir", coverDir)
		os.Exit(1)
	}
	err = os.Setenv("GOCOVERDIR", coverDir)
	if err != nil {
		slog.Error("can't set GOCOVERDIR env variable", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func TestRun(t *testing.T) {
	chDir(t)
	sh := shell(t)
	creat(t, "atelier.yaml", config(sh, worker, ":0"))
	creat(t, "cat.png", pngImage(t))

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, atelierPath, "run", "cat.png", "--style", "ghibli", "--prompt", "a cat", "--config", "atelier.yaml")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		t.Logf("%s", stderr.String())
		require.NoError(t, err)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.True(t, strings.HasPrefix(lines[0], "job img_"), stdout.String())
	require.Contains(t, stdout.String(), "complete")
	output := lines[len(lines)-1]
	require.True(t, strings.HasSuffix(output, "_ghibli.png"), output)
	require.FileExists(t, output)

	cmd = exec.CommandContext(ctx, atelierPath, "gallery", "--config", "atelier.yaml")
	out, err := cmd.Output()
	require.NoError(t, err)
	var gallery struct {
		Images []struct {
			Output string `json:"output"`
			Style  string `json:"style"`
		} `json:"images"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(out, &gallery))
	require.Equal(t, 1, gallery.Total)
	require.Equal(t, filepath.Base(output), gallery.Images[0].Output)
	require.Equal(t, "ghibli", gallery.Images[0].Style)
}

func TestRunFailure(t *testing.T) {
	chDir(t)
	sh := shell(t)
	creat(t, "atelier.yaml", config(sh, "echo 'ERROR: model not found' >&2; exit 2", ":0"))
	creat(t, "cat.png", pngImage(t))

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	cmd := exec.CommandContext(ctx, atelierPath, "run", "cat.png", "--config", "atelier.yaml")
	out, err := cmd.CombinedOutput()
	require.Error(t, err)
	require.Contains(t, string(out), "model not found")

	logs, err := filepath.Glob(filepath.Join("logs", "error_*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestServe(t *testing.T) {
	chDir(t)
	sh := shell(t)
	addr := freeAddr(t)
	creat(t, "atelier.yaml", config(sh, worker, addr))

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, atelierPath, "serve", "--config", "atelier.yaml")
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("%s", stderr.String())
		}
	})

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "cat.png")
	require.NoError(t, err)
	_, err = part.Write(pngImage(t))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("style", "comic"))
	require.NoError(t, w.Close())

	resp, err := http.Post(base+"/v1/uploads", w.FormDataContentType(), &body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var uploaded struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	_ = resp.Body.Close()

	resp, err = http.Post(base+"/v1/jobs/"+uploaded.JobID+"/generate", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/v1/jobs/" + uploaded.JobID + "/progress")
		if err != nil {
			return false
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		var rec struct {
			Status string `json:"status"`
		}
		return json.NewDecoder(resp.Body).Decode(&rec) == nil && rec.Status == "complete"
	}, 30*time.Second, 50*time.Millisecond)

	resp, err = http.Get(base + "/v1/gallery/gen_" + uploaded.JobID + "_comic.png")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	require.NoError(t, cmd.Process.Signal(os.Interrupt))
	require.NoError(t, cmd.Wait())
}

func config(sh, script, addr string) []byte {
	args, _ := json.Marshal([]string{"-c", script, "worker"})
	return fmt.Appendf(nil, `
version: 0
storage:
  inputs: uploads
  outputs: outputs
  logs: logs
worker:
  path: %s
  args: %s
  timeout: 30s
  poll_interval: 20ms
http:
  addr: %q
`, sh, args, addr)
}

func shell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	return sh
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

func rmRfMkdirp(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func chDir(t *testing.T) string {
	t.Helper()
	tempdir := tmpDir(t)
	t.Chdir(tempdir)
	return tempdir
}

func creat(t *testing.T, path string, content []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	_, err = f.Write(content)
	require.NoError(t, err)
	err = f.Sync()
	require.NoError(t, err)
}
