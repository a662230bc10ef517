package model

import (
	"fmt"
	"slices"
	"strings"
)

// Property describes one field of an entity or relationship. Allowed, when
// non-empty, is the closed value domain generated queries may compare against.
type Property struct {
	Name        string
	Type        string
	Description string
	Allowed     []string
}

// IsAllowed reports whether v is inside the property's value domain.
// Properties without a domain accept every value.
func (p Property) IsAllowed(v string) bool {
	return len(p.Allowed) == 0 || slices.Contains(p.Allowed, v)
}

type EntityType struct {
	Label       string
	Description string
	Properties  []Property
}

type RelationshipType struct {
	Type        string
	From        string
	To          string
	Description string
	Properties  []Property
}

// SchemaDescriptor is the immutable description of the graph model. It is
// built once by the catalog and shared read-only by every request; accessors
// hand out copies only.
type SchemaDescriptor struct {
	name          string
	entities      []EntityType
	relationships []RelationshipType

	entityIdx map[string]int
	relIdx    map[string]int
	propIdx   map[string]struct{}
}

// NewSchemaDescriptor deep-copies the provided definitions and indexes them.
func NewSchemaDescriptor(name string, entities []EntityType, relationships []RelationshipType) (SchemaDescriptor, error) {
	d := SchemaDescriptor{
		name:      name,
		entityIdx: make(map[string]int, len(entities)),
		relIdx:    make(map[string]int, len(relationships)),
		propIdx:   make(map[string]struct{}),
	}
	if len(entities) == 0 {
		return SchemaDescriptor{}, fmt.Errorf("schema %q declares no entity types", name)
	}

	for _, e := range entities {
		if strings.TrimSpace(e.Label) == "" {
			return SchemaDescriptor{}, fmt.Errorf("schema %q: entity with empty label", name)
		}
		if _, dup := d.entityIdx[e.Label]; dup {
			return SchemaDescriptor{}, fmt.Errorf("schema %q: duplicate entity %q", name, e.Label)
		}
		e.Properties = copyProperties(e.Properties)
		for _, p := range e.Properties {
			d.propIdx[p.Name] = struct{}{}
		}
		d.entityIdx[e.Label] = len(d.entities)
		d.entities = append(d.entities, e)
	}

	for _, r := range relationships {
		if strings.TrimSpace(r.Type) == "" {
			return SchemaDescriptor{}, fmt.Errorf("schema %q: relationship with empty type", name)
		}
		if _, dup := d.relIdx[r.Type]; dup {
			return SchemaDescriptor{}, fmt.Errorf("schema %q: duplicate relationship %q", name, r.Type)
		}
		if _, ok := d.entityIdx[r.From]; !ok {
			return SchemaDescriptor{}, fmt.Errorf("schema %q: relationship %q starts at unknown entity %q", name, r.Type, r.From)
		}
		if _, ok := d.entityIdx[r.To]; !ok {
			return SchemaDescriptor{}, fmt.Errorf("schema %q: relationship %q ends at unknown entity %q", name, r.Type, r.To)
		}
		r.Properties = copyProperties(r.Properties)
		for _, p := range r.Properties {
			d.propIdx[p.Name] = struct{}{}
		}
		d.relIdx[r.Type] = len(d.relationships)
		d.relationships = append(d.relationships, r)
	}

	return d, nil
}

func copyProperties(in []Property) []Property {
	out := make([]Property, len(in))
	for i, p := range in {
		p.Allowed = slices.Clone(p.Allowed)
		out[i] = p
	}
	return out
}

func (d SchemaDescriptor) Name() string { return d.name }

// Entities returns a copy of the entity definitions.
func (d SchemaDescriptor) Entities() []EntityType {
	out := make([]EntityType, len(d.entities))
	for i, e := range d.entities {
		e.Properties = copyProperties(e.Properties)
		out[i] = e
	}
	return out
}

// Relationships returns a copy of the relationship definitions.
func (d SchemaDescriptor) Relationships() []RelationshipType {
	out := make([]RelationshipType, len(d.relationships))
	for i, r := range d.relationships {
		r.Properties = copyProperties(r.Properties)
		out[i] = r
	}
	return out
}

func (d SchemaDescriptor) HasEntity(label string) bool {
	_, ok := d.entityIdx[label]
	return ok
}

func (d SchemaDescriptor) HasRelationship(relType string) bool {
	_, ok := d.relIdx[relType]
	return ok
}

// EntityProperty looks up a property on an entity type.
func (d SchemaDescriptor) EntityProperty(label, name string) (Property, bool) {
	i, ok := d.entityIdx[label]
	if !ok {
		return Property{}, false
	}
	return findProperty(d.entities[i].Properties, name)
}

// RelationshipProperty looks up a property on a relationship type.
func (d SchemaDescriptor) RelationshipProperty(relType, name string) (Property, bool) {
	i, ok := d.relIdx[relType]
	if !ok {
		return Property{}, false
	}
	return findProperty(d.relationships[i].Properties, name)
}

// AnyProperty reports whether some entity or relationship declares name.
func (d SchemaDescriptor) AnyProperty(name string) bool {
	_, ok := d.propIdx[name]
	return ok
}

// PropertiesNamed returns every declaration of a property name, used when a
// variable's label cannot be resolved statically.
func (d SchemaDescriptor) PropertiesNamed(name string) []Property {
	var out []Property
	for _, e := range d.entities {
		if p, ok := findProperty(e.Properties, name); ok {
			out = append(out, p)
		}
	}
	for _, r := range d.relationships {
		if p, ok := findProperty(r.Properties, name); ok {
			out = append(out, p)
		}
	}
	return out
}

func findProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Describe renders the schema in the compact form used inside prompts.
func (d SchemaDescriptor) Describe() string {
	var b strings.Builder
	b.WriteString("Node properties:\n")
	for _, e := range d.entities {
		writeProps(&b, e.Label, e.Properties)
	}
	b.WriteString("Relationship properties:\n")
	for _, r := range d.relationships {
		if len(r.Properties) > 0 {
			writeProps(&b, r.Type, r.Properties)
		}
	}
	b.WriteString("The relationships:\n")
	for _, r := range d.relationships {
		fmt.Fprintf(&b, "(:%s)-[:%s]->(:%s)\n", r.From, r.Type, r.To)
	}

	var domains []string
	for _, e := range d.entities {
		for _, p := range e.Properties {
			if len(p.Allowed) > 0 {
				domains = append(domains, fmt.Sprintf("%s.%s: %s", e.Label, p.Name, quoteAll(p.Allowed)))
			}
		}
	}
	if len(domains) > 0 {
		b.WriteString("Allowed values:\n")
		for _, line := range domains {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func writeProps(b *strings.Builder, owner string, props []Property) {
	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, p.Name+": "+strings.ToUpper(p.Type))
	}
	fmt.Fprintf(b, "%s {%s}\n", owner, strings.Join(parts, ", "))
}

func quoteAll(vs []string) string {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ", ")
}
