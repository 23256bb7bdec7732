package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/schema"
)

type widgetInput struct {
	Name     string   `schema:"nameId=widget_name"`
	Count    int      `schema:"nameId=widget_count"`
	Tags     []string `schema:"nameId=widget_tags,optional"`
	Priority string   `schema:"enum=low|medium|high"`
}

func TestGetSchemaFieldOrder(t *testing.T) {
	r := schema.NewRegistry()
	s, err := r.GetSchema(widgetInput{})
	require.NoError(t, err)
	require.Len(t, s.Properties, 4)
	assert.Equal(t, "Name", s.Properties[0].Name)
	assert.Equal(t, "Count", s.Properties[1].Name)
	assert.Equal(t, "Tags", s.Properties[2].Name)
	assert.Equal(t, "Priority", s.Properties[3].Name)
	assert.True(t, s.Properties[0].Required)
	assert.False(t, s.Properties[2].Required)
	assert.Equal(t, schema.PropertyTypeEnum, s.Properties[3].Type)
}

func TestInstantiateExtractPropertiesRoundTrip(t *testing.T) {
	r := schema.NewRegistry()
	values := map[string]string{
		"Name":     "gizmo",
		"Count":    "3",
		"Tags":     "a,b,c",
		"Priority": "high",
	}
	out, err := r.Instantiate(widgetInput{}, values)
	require.NoError(t, err)

	w, ok := out.(*widgetInput)
	require.True(t, ok)
	assert.Equal(t, "gizmo", w.Name)
	assert.Equal(t, 3, w.Count)
	assert.Equal(t, []string{"a", "b", "c"}, w.Tags)
	assert.Equal(t, "high", w.Priority)

	back, err := r.ExtractProperties(w)
	require.NoError(t, err)
	assert.Equal(t, "gizmo", back["Name"])
	assert.Equal(t, "3", back["Count"])
	assert.Equal(t, "high", back["Priority"])
}

func TestInstantiateMissingRequiredField(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Instantiate(widgetInput{}, map[string]string{"Count": "1", "Priority": "low"})
	require.Error(t, err)
	var bindErr *schema.BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "Name", bindErr.Field)
}

func TestInstantiateInvalidEnum(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Instantiate(widgetInput{}, map[string]string{
		"Name": "x", "Count": "1", "Priority": "urgent",
	})
	require.Error(t, err)
}

func TestToJSONSchemaAndValidate(t *testing.T) {
	r := schema.NewRegistry()
	s, err := r.GetSchema(widgetInput{})
	require.NoError(t, err)

	err = s.ValidateJSON([]byte(`{"Name":"gizmo","Count":3,"Priority":"high"}`))
	assert.NoError(t, err)

	err = s.ValidateJSON([]byte(`{"Count":3,"Priority":"high"}`))
	assert.Error(t, err, "missing required Name should fail validation")
}
