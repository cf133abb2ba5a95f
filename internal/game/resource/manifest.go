package resource

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest lists the asset ids a host has packaged, by kind.
type Manifest struct {
	Meshes   []string `yaml:"meshes"`
	Textures []string `yaml:"textures"`
	Models   []string `yaml:"models"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing resource manifest: %w", err)
	}
	for _, group := range [][]string{m.Meshes, m.Textures, m.Models} {
		for _, id := range group {
			if id == "" {
				return Manifest{}, fmt.Errorf("resource manifest: empty id")
			}
		}
	}
	return m, nil
}

// LoadManifest reads the manifest at path into a new MemoryCache.
//
// Postcondition: Every listed id is present and none is resident.
func LoadManifest(path string) (*MemoryCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resource manifest %q: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m.Cache(), nil
}

// Cache returns a MemoryCache holding an empty resource for every id.
func (m Manifest) Cache() *MemoryCache {
	c := NewMemoryCache()
	c.PutIDs(KindMesh, m.Meshes...)
	c.PutIDs(KindTexture, m.Textures...)
	c.PutIDs(KindModel, m.Models...)
	return c
}
