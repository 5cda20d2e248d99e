// Package scene loads the description of a space and its initial entities
// from YAML or TOML files.
package scene

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/ehwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeSceneInvalid = "scene_invalid"
)

const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Scene describes a space and the entities it starts with.
type Scene struct {
	Name     string        `yaml:"name"      toml:"name"`
	Region   octree.Region `yaml:"region"    toml:"region"`
	Capacity int           `yaml:"capacity"  toml:"capacity"`
	MaxDepth int           `yaml:"max_depth" toml:"max_depth"`
	Entities []Entity      `yaml:"entities"  toml:"entities"`
}

type Entity struct {
	Position octree.Vector3f `yaml:"position" toml:"position"`
}

// Load reads a scene file. The format is picked from the file extension.
func Load(path string) (Scene, error) {
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML

	case ".toml":
		format = FormatTOML

	default:
		return Scene{}, errors.New("unsupported scene file extension").
			WithType(ErrTypeSceneInvalid).
			WithTag("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Scene{}, errors.New("reading scene file failed").
			WithTag("path", path).
			Wrap(err)
	}

	s, err := Parse(data, format)
	if err != nil {
		return Scene{}, errors.New("loading scene failed").
			WithType(ErrTypeSceneInvalid).
			WithTag("path", path).
			Wrap(err)
	}
	return s, nil
}

// Parse decodes and validates a scene.
func Parse(data []byte, format string) (Scene, error) {
	var s Scene
	var err error

	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &s)

	case FormatTOML:
		err = toml.Unmarshal(data, &s)

	default:
		return Scene{}, errors.New("unsupported scene format").
			WithType(ErrTypeSceneInvalid).
			WithTag("format", format)
	}
	if err != nil {
		return Scene{}, errors.New("decoding scene failed").
			WithType(ErrTypeSceneInvalid).
			WithTag("format", format).
			Wrap(err)
	}

	if err := s.Validate(); err != nil {
		return Scene{}, err
	}
	return s, nil
}

// Validate checks that the scene region is valid and contains every entity.
func (s Scene) Validate() error {
	if _, err := octree.NewRegion(s.Region.Origin, s.Region.HalfExtent); err != nil {
		return errors.New("invalid scene region").
			WithType(ErrTypeSceneInvalid).
			Wrap(err)
	}

	if s.Capacity < 0 || s.MaxDepth < 0 {
		return errors.New("invalid scene octree settings").
			WithType(ErrTypeSceneInvalid).
			WithTag("capacity", s.Capacity).
			WithTag("max_depth", s.MaxDepth)
	}

	for i, e := range s.Entities {
		if !s.Region.Contains(e.Position) {
			return errors.New("scene entity is outside the region").
				WithType(ErrTypeSceneInvalid).
				WithTag("index", i).
				WithTag("position", e.Position)
		}
	}
	return nil
}

// OctreeConfig returns the octree configuration of the scene, falling back on
// defaults for the settings the scene leaves empty.
func (s Scene) OctreeConfig(defaults octree.Config) octree.Config {
	conf := defaults
	if s.Capacity != 0 {
		conf.Capacity = s.Capacity
	}
	if s.MaxDepth != 0 {
		conf.MaxDepth = s.MaxDepth
	}
	return conf
}

// Populate adds the scene entities to a space.
func (s Scene) Populate(space *models.Space) ([]*models.Entity, error) {
	entities := make([]*models.Entity, 0, len(s.Entities))
	for _, e := range s.Entities {
		entity, err := space.AddEntity(models.NewPoseAt(e.Position))
		if err != nil {
			return entities, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
