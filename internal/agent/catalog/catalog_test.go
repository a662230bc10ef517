package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/hospital-graph-rag/server/internal/core/error"
)

func TestLoad_Embedded(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "embedded:hospital", c.Source())

	d := c.Describe()
	for _, label := range []string{"Hospital", "Payer", "Physician", "Patient", "Visit", "Review"} {
		assert.True(t, d.HasEntity(label), label)
	}
	for _, rel := range []string{"HAS", "AT", "TREATS", "COVERED_BY", "WRITES", "EMPLOYS"} {
		assert.True(t, d.HasRelationship(rel), rel)
	}

	p, ok := d.RelationshipProperty("COVERED_BY", "billing_amount")
	require.True(t, ok)
	assert.Equal(t, "float", p.Type)

	status, ok := d.EntityProperty("Visit", "status")
	require.True(t, ok)
	assert.True(t, status.IsAllowed("DISCHARGED"))
	assert.False(t, status.IsAllowed("discharged"))
}

// Directions follow how the hospital graph is loaded; the query prompt only
// offers these.
func TestLoad_EmbeddedRelationshipDirections(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	got := map[string][2]string{}
	for _, r := range c.Describe().Relationships() {
		got[r.Type] = [2]string{r.From, r.To}
	}
	want := map[string][2]string{
		"HAS":        {"Patient", "Visit"},
		"AT":         {"Visit", "Hospital"},
		"TREATS":     {"Physician", "Visit"},
		"COVERED_BY": {"Visit", "Payer"},
		"WRITES":     {"Visit", "Review"},
		"EMPLOYS":    {"Physician", "Hospital"},
	}
	assert.Equal(t, want, got)
}

func TestLoad_MissingFileFailsFast(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errx.KindConfiguration, errx.KindOf(err))
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	raw := []byte(`name: tiny
entities:
  - label: Hospital
    properties:
      - {name: name, type: string}
relationships: []
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, c.Source())
	assert.Equal(t, "tiny", c.Describe().Name())
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no entities", raw: "name: empty\nentities: []\n"},
		{name: "unknown key", raw: "name: x\nentities:\n  - label: A\n    colour: red\n"},
		{name: "dangling relationship", raw: "name: x\nentities:\n  - label: A\nrelationships:\n  - {type: R, from: A, to: B}\n"},
		{name: "duplicate label", raw: "name: x\nentities:\n  - label: A\n  - label: A\n"},
		{name: "not yaml", raw: "entities: [::"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestDescribe_IsImmutable(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	entities := c.Describe().Entities()
	entities[0].Label = "Mutated"
	entities[0].Properties[0].Name = "mutated"

	assert.True(t, c.Describe().HasEntity("Hospital"))
	p, ok := c.Describe().EntityProperty("Hospital", "id")
	require.True(t, ok)
	assert.Equal(t, "id", p.Name)
}

func TestDescribe_PromptText(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	text := c.Describe().Describe()
	assert.Contains(t, text, "(:Visit)-[:AT]->(:Hospital)")
	assert.Contains(t, text, "COVERED_BY {service_date: STRING, billing_amount: FLOAT}")
	assert.Contains(t, text, "Visit.admission_type: 'Elective', 'Emergency', 'Urgent'")
}
