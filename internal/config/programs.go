package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProgramConfig is a named, replayable description of a program and
// the expect sequence a prior session walked through it with —
// mirrors the original's save_program_config/list_configs/get_config.
type ProgramConfig struct {
	Name           string   `json:"name"`
	Command        string   `json:"command"`
	ExpectSequence []string `json:"expect_sequence"`
}

// Programs is a small on-disk directory of named ProgramConfig files.
type Programs struct {
	dir string
}

// NewPrograms returns a Programs backed by dir, creating it if absent.
func NewPrograms(dir string) *Programs {
	return &Programs{dir: dir}
}

func (p *Programs) pathFor(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("invalid program config name %q", name)
	}
	return filepath.Join(p.dir, name+".json"), nil
}

// Save writes cfg to the configs directory under cfg.Name, overwriting
// any existing config of the same name.
func (p *Programs) Save(cfg ProgramConfig) error {
	path, err := p.pathFor(cfg.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Get loads the named program config.
func (p *Programs) Get(name string) (ProgramConfig, error) {
	path, err := p.pathFor(name)
	if err != nil {
		return ProgramConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ProgramConfig{}, err
	}
	var cfg ProgramConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ProgramConfig{}, fmt.Errorf("program config %q: %w", name, err)
	}
	return cfg, nil
}

// List returns the names of every saved program config.
func (p *Programs) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

// Delete removes the named program config. It is not an error for the
// config to already be absent.
func (p *Programs) Delete(name string) error {
	path, err := p.pathFor(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
