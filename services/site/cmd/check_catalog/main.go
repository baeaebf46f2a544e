package main

import (
	"fmt"
	"io"
	"os"

	"aercd/pkg/registry"
	"aercd/services/site/internal/store"
)

func main() {
	if len(os.Args) > 3 {
		fmt.Fprintf(os.Stderr, "usage: %s [registry.yaml] [seed.yaml]\n", os.Args[0])
		os.Exit(2)
	}
	var registryPath, seedPath string
	if len(os.Args) > 1 {
		registryPath = os.Args[1]
	}
	if len(os.Args) > 2 {
		seedPath = os.Args[2]
	}
	issues, err := check(registryPath, seedPath)
	if err != nil {
		exitErr(err)
	}
	if report(os.Stdout, issues) {
		os.Exit(1)
	}
}

// check runs the subject/program pass. Empty paths select the compiled-in
// registry and seed.
func check(registryPath, seedPath string) ([]registry.Mismatch, error) {
	reg := registry.Default()
	if registryPath != "" {
		loaded, err := registry.LoadFile(registryPath)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		reg = loaded
	}
	seed := store.DefaultSeed()
	if seedPath != "" {
		loaded, err := store.LoadSeedFile(seedPath)
		if err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		seed = loaded
	}
	return reg.UnmatchedSubjects(seed.Resources), nil
}

// report prints the mismatches and reports whether there were any.
func report(w io.Writer, issues []registry.Mismatch) bool {
	if len(issues) == 0 {
		fmt.Fprintln(w, "Catalog check passed.")
		return false
	}
	for _, m := range issues {
		fmt.Fprintf(w, "%s [%s] %q: subject %q: %s\n", m.ResourceID, m.DepartmentID, m.Title, m.Subject, m.Reason)
	}
	fmt.Fprintf(w, "%d resource(s) need attention.\n", len(issues))
	return true
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
