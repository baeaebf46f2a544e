package store

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"aercd/pkg/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the initial state of a store.
type Seed struct {
	Content   domain.SiteContent      `yaml:"content"`
	Resources []domain.CourseResource `yaml:"resources"`
}

// DefaultSeed returns the compiled-in seed.
func DefaultSeed() Seed {
	seed, err := LoadSeed(bytes.NewReader(defaultSeed))
	if err != nil {
		panic(fmt.Sprintf("store: embedded seed: %v", err))
	}
	return seed
}

// DefaultSiteContent returns the site text of the compiled-in seed.
func DefaultSiteContent() domain.SiteContent {
	return DefaultSeed().Content
}

// LoadSeedFile reads a seed document from path.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed parses a YAML seed document. Resource ids must be unique.
func LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	seen := make(map[string]struct{}, len(seed.Resources))
	for _, res := range seed.Resources {
		if res.ID == "" {
			return Seed{}, fmt.Errorf("seed: resource %q has no id", res.Title)
		}
		if _, dup := seen[res.ID]; dup {
			return Seed{}, fmt.Errorf("seed: duplicate resource id %q", res.ID)
		}
		if res.Downloads < 0 {
			return Seed{}, fmt.Errorf("seed: resource %q has negative downloads", res.ID)
		}
		seen[res.ID] = struct{}{}
	}
	if seed.Content.DepartmentDescriptions == nil {
		seed.Content.DepartmentDescriptions = map[string]string{}
	}
	return seed, nil
}

// Options returns the MemoryStore options that apply the seed.
func (s Seed) Options() []Option {
	return []Option{WithResources(s.Resources), WithSiteContent(s.Content)}
}
