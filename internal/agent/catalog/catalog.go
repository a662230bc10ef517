// Package catalog loads the fixed graph schema that constrains query
// generation and validation.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hospital-graph-rag/server/internal/agent/model"
	errx "github.com/hospital-graph-rag/server/internal/core/error"
	logx "github.com/hospital-graph-rag/server/pkg/logger"
)

//go:embed schema/hospital.yaml
var hospitalSchema []byte

type propertyFile struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Allowed     []string `yaml:"allowed"`
}

type entityFile struct {
	Label       string         `yaml:"label"`
	Description string         `yaml:"description"`
	Properties  []propertyFile `yaml:"properties"`
}

type relationshipFile struct {
	Type        string         `yaml:"type"`
	From        string         `yaml:"from"`
	To          string         `yaml:"to"`
	Description string         `yaml:"description"`
	Properties  []propertyFile `yaml:"properties"`
}

type schemaFile struct {
	Name          string             `yaml:"name"`
	Entities      []entityFile       `yaml:"entities"`
	Relationships []relationshipFile `yaml:"relationships"`
}

// Catalog holds the schema descriptor for the process lifetime.
type Catalog struct {
	descriptor model.SchemaDescriptor
	source     string
}

// Load reads the schema at path, or the embedded hospital schema when path is
// empty. Any read, parse or consistency error is a configuration error: the
// engine must not start without a catalog.
func Load(path string) (*Catalog, error) {
	raw, source := hospitalSchema, "embedded:hospital"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errx.Configuration(err, fmt.Sprintf("read schema %s", path))
		}
		raw, source = b, path
	}

	c, err := Parse(raw)
	if err != nil {
		return nil, errx.Configuration(err, fmt.Sprintf("load schema %s", source))
	}
	c.source = source

	logx.Info().
		Str("source", source).
		Str("schema", c.descriptor.Name()).
		Int("entities", len(c.descriptor.Entities())).
		Int("relationships", len(c.descriptor.Relationships())).
		Msg("Schema catalog loaded")
	return c, nil
}

// Parse builds a catalog from raw YAML. Unknown keys are rejected so a typo in
// the schema file fails start-up instead of silently widening the schema.
func Parse(raw []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var f schemaFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	entities := make([]model.EntityType, 0, len(f.Entities))
	for _, e := range f.Entities {
		entities = append(entities, model.EntityType{
			Label:       e.Label,
			Description: e.Description,
			Properties:  toProperties(e.Properties),
		})
	}
	rels := make([]model.RelationshipType, 0, len(f.Relationships))
	for _, r := range f.Relationships {
		rels = append(rels, model.RelationshipType{
			Type:        r.Type,
			From:        r.From,
			To:          r.To,
			Description: r.Description,
			Properties:  toProperties(r.Properties),
		})
	}

	d, err := model.NewSchemaDescriptor(f.Name, entities, rels)
	if err != nil {
		return nil, err
	}
	return &Catalog{descriptor: d, source: "inline"}, nil
}

func toProperties(in []propertyFile) []model.Property {
	out := make([]model.Property, 0, len(in))
	for _, p := range in {
		out = append(out, model.Property{
			Name:        p.Name,
			Type:        p.Type,
			Description: p.Description,
			Allowed:     p.Allowed,
		})
	}
	return out
}

// Describe returns the immutable schema descriptor.
func (c *Catalog) Describe() model.SchemaDescriptor {
	return c.descriptor
}

// Source names where the schema was loaded from.
func (c *Catalog) Source() string {
	return c.source
}
