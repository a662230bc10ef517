package model

import (
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentTrace_Budget(t *testing.T) {
	tr := NewAgentTrace(2)
	require.NoError(t, tr.Append(TraceStep{Tool: ToolStructured, Observation: RowsObservation(ToolStructured, QueryResult{})}))
	require.NoError(t, tr.Append(TraceStep{Tool: ToolPassage, Observation: PassagesObservation(ToolPassage, []Passage{{ID: "r1"}})}))
	assert.True(t, tr.Full())
	assert.ErrorIs(t, tr.Append(TraceStep{Tool: ToolPassage}), ErrTraceFull)

	steps := tr.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Index)
	assert.Equal(t, 2, steps[1].Index)
	assert.Equal(t, []ToolName{ToolStructured, ToolPassage}, tr.ToolSequence())

	steps[0].Thought = "mutated"
	assert.Empty(t, tr.Steps()[0].Thought)
}

func TestAgentTrace_DefaultBudget(t *testing.T) {
	assert.Equal(t, DefaultMaxSteps, NewAgentTrace(0).Max())
}

func TestToolObservation_Evidence(t *testing.T) {
	tests := []struct {
		name     string
		obs      ToolObservation
		empty    bool
		evidence bool
	}{
		{"empty rows", RowsObservation(ToolStructured, QueryResult{}), true, false},
		{"rows", RowsObservation(ToolStructured, QueryResult{Rows: []Row{{"n": 1}}}), false, true},
		{"no passages", PassagesObservation(ToolPassage, nil), true, false},
		{"passages", PassagesObservation(ToolPassage, []Passage{{ID: "r1"}}), false, true},
		{"error", ErrorObservation(ToolPassage, errors.New("down")), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, tt.obs.Empty())
			assert.Equal(t, tt.evidence, tt.obs.HasEvidence())
		})
	}

	tr := NewAgentTrace(3)
	require.NoError(t, tr.Append(TraceStep{Observation: ErrorObservation(ToolStructured, errors.New("x"))}))
	assert.False(t, tr.HasEvidence())
	require.NoError(t, tr.Append(TraceStep{Observation: PassagesObservation(ToolPassage, []Passage{{ID: "r1"}})}))
	assert.True(t, tr.HasEvidence())
}

func TestAction_Tool(t *testing.T) {
	assert.Equal(t, ToolStructured, ActionStructured.Tool())
	assert.Equal(t, ToolPassage, ActionPassage.Tool())
	assert.Empty(t, ActionFinish.Tool())
	assert.Empty(t, ActionFail.Tool())
}

func TestSchemaDescriptor(t *testing.T) {
	d, err := NewSchemaDescriptor("test",
		[]EntityType{
			{Label: "Hospital", Properties: []Property{{Name: "name", Type: "STRING"}}},
			{Label: "Payer", Properties: []Property{{Name: "name", Type: "STRING", Allowed: []string{"Aetna", "Cigna"}}}},
		},
		[]RelationshipType{{Type: "COVERED_BY", From: "Hospital", To: "Payer"}},
	)
	require.NoError(t, err)
	assert.True(t, d.HasEntity("Payer"))
	assert.False(t, d.HasEntity("Nurse"))
	assert.True(t, d.HasRelationship("COVERED_BY"))

	p, ok := d.EntityProperty("Payer", "name")
	require.True(t, ok)
	assert.True(t, p.IsAllowed("Cigna"))
	assert.False(t, p.IsAllowed("Medicaid"))

	d.Entities()[1].Properties[0].Allowed[0] = "changed"
	p, _ = d.EntityProperty("Payer", "name")
	assert.Equal(t, "Aetna", p.Allowed[0])
}

func TestNewSchemaDescriptor_Rejects(t *testing.T) {
	hospital := EntityType{Label: "Hospital"}
	tests := []struct {
		name     string
		entities []EntityType
		rels     []RelationshipType
	}{
		{"no entities", nil, nil},
		{"duplicate entity", []EntityType{hospital, hospital}, nil},
		{"unknown endpoint", []EntityType{hospital}, []RelationshipType{{Type: "AT", From: "Visit", To: "Hospital"}}},
		{"empty relationship type", []EntityType{hospital}, []RelationshipType{{From: "Hospital", To: "Hospital"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchemaDescriptor("bad", tt.entities, tt.rels)
			assert.Error(t, err)
		})
	}
}

func TestPricing(t *testing.T) {
	assert.Equal(t, Pricing{InputPerM: 0.10, OutputPerM: 0.40}, PricingFor("gemini-2.5-flash-lite"))
	assert.Equal(t, Pricing{InputPerM: 0.30, OutputPerM: 2.50}, PricingFor("models/gemini-2.5-flash-001"))
	assert.Zero(t, PricingFor("local-llm"))

	c := PricingFor("gemini-2.5-pro").Cost(&schema.TokenUsage{PromptTokens: 2_000_000, CompletionTokens: 100_000})
	assert.InDelta(t, 2.50, c.Input, 1e-9)
	assert.InDelta(t, 1.00, c.Output, 1e-9)
	assert.InDelta(t, 3.50, c.Total(), 1e-9)
	assert.Zero(t, Pricing{}.Cost(nil).Total())
}

func TestEngineConfig_Normalized(t *testing.T) {
	c := EngineConfig{MaxSteps: -1, MaxRows: 10}.Normalized()
	assert.Equal(t, DefaultMaxSteps, c.MaxSteps)
	assert.Equal(t, DefaultMaxSynthesisAttempts, c.MaxSynthesisAttempts)
	assert.Equal(t, DefaultMaxToolFailures, c.MaxToolFailures)
	assert.Equal(t, 10, c.MaxRows)
}
