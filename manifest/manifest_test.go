package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a deneb.toml
	dir := t.TempDir()
	tomlContent := `
[project]
name = "atlas"
version = "0.3.0"

[wrap]
output = "internal/bindings"

[[wrap.packages]]
import = "example.com/atlas/geo"
include = ["Point", "Region"]
prefix = "geo."

[[wrap.packages]]
import = "example.com/atlas/units"

[image]
output = "atlas.dnb"
`
	if err := os.WriteFile(filepath.Join(dir, "deneb.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "atlas" {
		t.Errorf("project name = %q, want atlas", m.Project.Name)
	}
	if m.Project.Version != "0.3.0" {
		t.Errorf("project version = %q, want 0.3.0", m.Project.Version)
	}
	if m.Wrap.Output != "internal/bindings" {
		t.Errorf("wrap output = %q, want internal/bindings", m.Wrap.Output)
	}
	if len(m.Wrap.Packages) != 2 {
		t.Fatalf("wrap packages count = %d, want 2", len(m.Wrap.Packages))
	}
	pkg := m.Wrap.Packages[0]
	if pkg.Import != "example.com/atlas/geo" {
		t.Errorf("packages[0].import = %q, want example.com/atlas/geo", pkg.Import)
	}
	if len(pkg.Include) != 2 || pkg.Include[0] != "Point" || pkg.Include[1] != "Region" {
		t.Errorf("packages[0].include = %v, want [Point Region]", pkg.Include)
	}
	if pkg.Prefix != "geo." {
		t.Errorf("packages[0].prefix = %q, want geo.", pkg.Prefix)
	}
	if m.Wrap.Packages[1].Include != nil {
		t.Errorf("packages[1].include = %v, want empty", m.Wrap.Packages[1].Include)
	}
	if m.Image.Output != "atlas.dnb" {
		t.Errorf("image output = %q, want atlas.dnb", m.Image.Output)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[project]
name = "minimal"
`
	if err := os.WriteFile(filepath.Join(dir, "deneb.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Wrap.Output != "bindings" {
		t.Errorf("default wrap output = %q, want bindings", m.Wrap.Output)
	}
	// Image output defaults to the project name
	if m.Image.Output != "minimal.dnb" {
		t.Errorf("default image output = %q, want minimal.dnb", m.Image.Output)
	}
}

func TestLoadManifestNamelessDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deneb.toml"), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Image.Output != "out.dnb" {
		t.Errorf("default image output = %q, want out.dnb", m.Image.Output)
	}
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("Expected an error for a missing deneb.toml")
	}
	if !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("error = %q, want a read failure", err)
	}
}

func TestLoadBadManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deneb.toml"), []byte("[project\nname="), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Expected an error for malformed toml")
	}
	if !strings.Contains(err.Error(), "parse error in") {
		t.Errorf("error = %q, want a parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[project]
name = "found-project"
`
	if err := os.WriteFile(filepath.Join(dir, "deneb.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no deneb.toml exists")
	}
}

func TestManifestPaths(t *testing.T) {
	m := &Manifest{
		Dir:   "/app",
		Wrap:  WrapConfig{Output: "bindings"},
		Image: ImageConfig{Output: "app.dnb"},
	}

	if got := m.WrapDir(); got != "/app/bindings" {
		t.Errorf("WrapDir() = %q, want /app/bindings", got)
	}
	if got := m.ImagePath(); got != "/app/app.dnb" {
		t.Errorf("ImagePath() = %q, want /app/app.dnb", got)
	}
}
