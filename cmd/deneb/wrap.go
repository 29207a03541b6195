package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/deneb/manifest"
	"github.com/chazu/deneb/wrapgen"
)

// handleWrapCommand processes the `deneb wrap` subcommand.
// Usage:
//
//	deneb wrap                      # all packages from deneb.toml
//	deneb wrap net/url              # single package, ad-hoc
//	deneb wrap --output ./bindings  # custom output dir
func handleWrapCommand(args []string, verbose bool) {
	var outputDir string
	var targets []wrapTarget

	// Parse flags
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--output" || args[i] == "-o" {
			if i+1 < len(args) {
				outputDir = args[i+1]
				i++
			} else {
				fmt.Fprintln(os.Stderr, "Error: --output requires a directory path")
				os.Exit(1)
			}
		} else {
			remaining = append(remaining, args[i])
		}
	}

	if len(remaining) > 0 {
		// Ad-hoc package wrapping from command line
		for _, pkg := range remaining {
			targets = append(targets, wrapTarget{ImportPath: pkg})
		}
	} else {
		// Load from deneb.toml
		m, err := manifest.FindAndLoad(".")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
			os.Exit(1)
		}
		if m == nil {
			fmt.Fprintln(os.Stderr, "Error: no deneb.toml found and no packages specified")
			fmt.Fprintln(os.Stderr, "Usage: deneb wrap [packages...] or configure [wrap] in deneb.toml")
			os.Exit(1)
		}

		if len(m.Wrap.Packages) == 0 {
			fmt.Fprintln(os.Stderr, "No [[wrap.packages]] configured in deneb.toml")
			os.Exit(1)
		}

		if outputDir == "" {
			outputDir = m.WrapDir()
		}

		for _, pkg := range m.Wrap.Packages {
			targets = append(targets, wrapTarget{
				ImportPath: pkg.Import,
				Include:    pkg.Include,
				Prefix:     pkg.Prefix,
			})
		}
	}

	// Default output dir
	if outputDir == "" {
		outputDir = "bindings"
	}

	for _, target := range targets {
		if err := wrapPackage(target, outputDir, verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error wrapping %s: %v\n", target.ImportPath, err)
			os.Exit(1)
		}
	}

	if verbose {
		fmt.Printf("Wrapped %d package(s) to %s\n", len(targets), outputDir)
	}
}

type wrapTarget struct {
	ImportPath string
	Include    []string
	Prefix     string
}

func wrapPackage(target wrapTarget, outputDir string, verbose bool) error {
	if verbose {
		fmt.Printf("Wrapping %s...\n", target.ImportPath)
	}

	model, err := wrapgen.Introspect(target.ImportPath, target.Include)
	if err != nil {
		return fmt.Errorf("introspecting: %w", err)
	}

	if verbose {
		fmt.Printf("  Found %d types\n", len(model.Types))
	}

	pkgDir := filepath.Join(outputDir, model.Name)
	res, err := wrapgen.Generate(model, wrapgen.Options{
		Package: wrapgen.PackageNameFor(pkgDir),
		Prefix:  target.Prefix,
	})
	if err != nil {
		return fmt.Errorf("generating bindings: %w", err)
	}

	for _, s := range res.Skipped {
		fmt.Fprintf(os.Stderr, "Warning: skipping %s.%s: %s\n", s.Type, s.Member, s.Reason)
	}

	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	outPath := filepath.Join(pkgDir, "bindings.go")
	if err := os.WriteFile(outPath, []byte(res.Code), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	if verbose {
		fmt.Printf("  Wrote %s\n", outPath)
	}

	return nil
}
