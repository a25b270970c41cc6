package dsl

import (
	"testing"

	"costsense-go/pkg/icon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	vocab, err := icon.DefaultVocabulary()
	require.NoError(t, err)
	return NewInterpreter(icon.NewResolver(vocab), "Gemini")
}

func TestInterpretStructuredJSON(t *testing.T) {
	in := newTestInterpreter(t)

	r, err := in.Interpret(`{"dsl":"Node: ec2 [name=Web]","explanation":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, StructuredDiagram, r.Kind)
	require.NotNil(t, r.DSL)
	assert.Equal(t, "Node: EC2 [name=Web]", *r.DSL)
	assert.Equal(t, "ok", r.Explanation)
}

func TestInterpretJSONSurroundedByProse(t *testing.T) {
	in := newTestInterpreter(t)

	raw := "Sure! Here you go:\n```json\n{\"dsl\": \"Cluster: app\\nNode: mysql [name=DB]\", \"explanation\": \"A database.\"}\n```"
	r, err := in.Interpret(raw)
	require.NoError(t, err)
	assert.Equal(t, StructuredDiagram, r.Kind)
	require.NotNil(t, r.DSL)
	assert.Equal(t, "Cluster: app\nNode: RDS [name=DB]", *r.DSL)
	assert.Equal(t, "A database.", r.Explanation)
}

func TestInterpretNonStringDSLIsStringified(t *testing.T) {
	in := newTestInterpreter(t)

	r, err := in.Interpret(`{"dsl": {"nodes":2}, "explanation": "object"}`)
	require.NoError(t, err)
	assert.Equal(t, StructuredDiagram, r.Kind)
	require.NotNil(t, r.DSL)
	assert.Equal(t, `{"nodes":2}`, *r.DSL)
}

func TestInterpretNullDSLIsConversational(t *testing.T) {
	in := newTestInterpreter(t)

	r, err := in.Interpret(`{"dsl": null, "explanation": "What should the diagram contain?"}`)
	require.NoError(t, err)
	assert.Equal(t, Conversational, r.Kind)
	assert.Nil(t, r.DSL)
	assert.Equal(t, "What should the diagram contain?", r.Explanation)
}

func TestInterpretTextDiagram(t *testing.T) {
	in := newTestInterpreter(t)

	raw := "Here is the diagram:\n```\nCluster: web\nNode: lb [name=LB]\nNode: webserver [name=A]\nLB -> A\n```\nEnjoy."
	r, err := in.Interpret(raw)
	require.NoError(t, err)
	assert.Equal(t, TextDiagram, r.Kind)
	require.NotNil(t, r.DSL)
	assert.Equal(t, "Cluster: web\nNode: ELB [name=LB]\nNode: EC2 [name=A]\nLB -> A", *r.DSL)
	assert.Equal(t, "Diagram generated by Gemini", r.Explanation)
}

func TestInterpretUnfencedTextDiagram(t *testing.T) {
	in := newTestInterpreter(t)

	r, err := in.Interpret("  Node: k8s [name=Cluster]\n")
	require.NoError(t, err)
	assert.Equal(t, TextDiagram, r.Kind)
	require.NotNil(t, r.DSL)
	assert.Equal(t, "Node: EKS [name=Cluster]", *r.DSL)
}

func TestInterpretMalformedJSONDemotes(t *testing.T) {
	in := newTestInterpreter(t)

	r, err := in.Interpret("{\"dsl\": \"Node: ec2\nNode: s3 [name=Bucket]")
	require.NoError(t, err)
	assert.Equal(t, TextDiagram, r.Kind)
	require.NotNil(t, r.DSL)
	assert.Contains(t, *r.DSL, "Node: S3 [name=Bucket]")
}

func TestInterpretConversational(t *testing.T) {
	in := newTestInterpreter(t)

	r, err := in.Interpret("Hello, how can I help?")
	require.NoError(t, err)
	assert.Equal(t, Conversational, r.Kind)
	assert.Nil(t, r.DSL)
	assert.False(t, r.IsDiagram())
	assert.Equal(t, "Hello, how can I help?", r.Explanation)

	r, err = in.Interpret("  I can draw {anything} you like.  ")
	require.NoError(t, err)
	assert.Equal(t, Conversational, r.Kind)
	assert.Equal(t, "I can draw {anything} you like.", r.Explanation)
}

func TestInterpretEmpty(t *testing.T) {
	in := newTestInterpreter(t)

	for _, raw := range []string{"", "   ", "\n\t"} {
		_, err := in.Interpret(raw)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	}
}
