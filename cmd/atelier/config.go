package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/CZERTAINLY/Atelier/internal/fsx"
	"github.com/CZERTAINLY/Atelier/internal/model"
)

const configName = "atelier.yaml"

// findConfig returns the first config candidate: env, then flag, then
// atelier.yaml in each of dirs. An empty result means built-in defaults.
func findConfig(env, flag string, dirs ...string) string {
	switch {
	case env != "":
		return env
	case flag != "":
		return flag
	}
	for _, d := range dirs {
		path := filepath.Join(d, configName)
		if fsx.Exists(path) {
			return path
		}
	}
	return ""
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid configuration", d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// storeDefaultConfig writes cfg to path so users have a file to edit.
func storeDefaultConfig(cfg model.Config, path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("storing configuration: %w", err)
	}
	if err := fsx.WriteAtomic(path, data); err != nil {
		return "", fmt.Errorf("creating file %s: %w", path, err)
	}
	return path, nil
}
