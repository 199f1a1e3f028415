package model

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ProgressBackendFile   = "file"
	ProgressBackendSQLite = "sqlite"
	ProgressBackendRedis  = "redis"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int           `json:"version" yaml:"version"`
	Log      Log           `json:"log" yaml:"log"`
	Storage  Storage       `json:"storage" yaml:"storage"`
	Progress ProgressStore `json:"progress" yaml:"progress"`
	Worker   Worker        `json:"worker" yaml:"worker"`
	Upload   Upload        `json:"upload" yaml:"upload"`
	Gallery  Gallery       `json:"gallery" yaml:"gallery"`
	HTTP     HTTP          `json:"http" yaml:"http"`
}

type Log struct {
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// Storage holds the directories shared by all jobs.
type Storage struct {
	Inputs  string `json:"inputs" yaml:"inputs"`
	Outputs string `json:"outputs" yaml:"outputs"`
	Logs    string `json:"logs" yaml:"logs"`
}

// ProgressStore selects the progress backend. Only the fields of the
// selected backend are meaningful.
type ProgressStore struct {
	Backend  string   `json:"backend" yaml:"backend"`
	Dir      string   `json:"dir,omitempty" yaml:"dir,omitempty"`           // file, defaults to storage.inputs
	Path     string   `json:"path,omitempty" yaml:"path,omitempty"`         // sqlite
	Addr     string   `json:"addr,omitempty" yaml:"addr,omitempty"`         // redis
	Password string   `json:"password,omitempty" yaml:"password,omitempty"` // redis
	DB       int      `json:"db,omitempty" yaml:"db,omitempty"`             // redis
	TTL      Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`           // redis
}

// Worker describes the external transformation program.
type Worker struct {
	Path          string            `json:"path" yaml:"path"`
	Args          []string          `json:"args" yaml:"args"`
	Env           map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout       Duration          `json:"timeout" yaml:"timeout"`
	PollInterval  Duration          `json:"poll_interval" yaml:"poll_interval"`
	MaxConcurrent int               `json:"max_concurrent" yaml:"max_concurrent"`
}

// Environ returns the worker environment on top of the current process
// environment. Values starting with $ are expanded.
func (w Worker) Environ() []string {
	env := os.Environ()
	for k, v := range w.Env {
		if strings.HasPrefix(v, "$") {
			v = os.ExpandEnv(v)
		}
		env = append(env, strings.ToUpper(k)+"="+v)
	}
	return env
}

type Upload struct {
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`
}

type Gallery struct {
	Limit int `json:"limit" yaml:"limit"`
}

type HTTP struct {
	Addr         string   `json:"addr" yaml:"addr"`
	ReadTimeout  Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// Duration is a time.ParseDuration string, the schema checks its format.
type Duration string

// Std returns the parsed duration or fallback when d is empty or invalid.
func (d Duration) Std(fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	v, err := time.ParseDuration(string(d))
	if err != nil {
		return fallback
	}
	return v
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	if out.Progress.Backend == ProgressBackendFile && out.Progress.Dir == "" {
		out.Progress.Dir = out.Storage.Inputs
	}

	return out, nil
}

// DefaultConfig returns the schema defaults.
func DefaultConfig() Config {
	cfg, err := LoadConfig(strings.NewReader("version: 0\n"))
	if err != nil {
		panic(fmt.Sprintf("default config does not validate: %v", err))
	}
	return cfg
}
