// Package manifest handles deneb.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file deneb tooling looks for.
const FileName = "deneb.toml"

// Manifest represents a deneb.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Wrap    WrapConfig  `toml:"wrap"`
	Image   ImageConfig `toml:"image"`

	// Dir is the directory containing the deneb.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// WrapConfig configures binding generation.
type WrapConfig struct {
	// Output is the directory generated bindings land in, relative
	// to the manifest.
	Output   string        `toml:"output"`
	Packages []WrapPackage `toml:"packages"`
}

// WrapPackage names one Go package to generate bindings for.
type WrapPackage struct {
	// Import is the Go import path to introspect.
	Import string `toml:"import"`
	// Include limits generation to the named exported types; empty
	// means every exported struct.
	Include []string `toml:"include"`
	// Prefix is prepended to projected type names, "geo." style.
	Prefix string `toml:"prefix"`
}

// ImageConfig configures image output.
type ImageConfig struct {
	Output string `toml:"output"`
}

// Load parses a deneb.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if m.Wrap.Output == "" {
		m.Wrap.Output = "bindings"
	}
	if m.Image.Output == "" {
		if m.Project.Name != "" {
			m.Image.Output = m.Project.Name + ".dnb"
		} else {
			m.Image.Output = "out.dnb"
		}
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a deneb.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// WrapDir returns the absolute path bindings are generated into.
func (m *Manifest) WrapDir() string {
	return filepath.Join(m.Dir, m.Wrap.Output)
}

// ImagePath returns the absolute path images are written to.
func (m *Manifest) ImagePath() string {
	return filepath.Join(m.Dir, m.Image.Output)
}
