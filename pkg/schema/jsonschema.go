package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ToJSONSchema renders s as a JSON Schema document (draft 2020-12 subset)
// suitable for a model provider's JSON-schema response-format mode. The
// Agent Layer's executeStructured mode uses this to force conformant output
// and to validate the model's response before decoding it into the target Go
// type (see Compile).
func (s *Schema) ToJSONSchema() map[string]any {
	return propertiesToJSONSchema(s.Properties, s.Description)
}

func propertiesToJSONSchema(props []Property, description string) map[string]any {
	required := make([]string, 0, len(props))
	fields := make(map[string]any, len(props))
	for _, p := range props {
		fields[p.Name] = propertyToJSONSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": fields,
	}
	if description != "" {
		doc["description"] = description
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func propertyToJSONSchema(p Property) map[string]any {
	doc := map[string]any{}
	if p.Description != "" {
		doc["description"] = p.Description
	}
	switch p.Type {
	case PropertyTypeString:
		doc["type"] = "string"
	case PropertyTypeInteger:
		doc["type"] = "integer"
	case PropertyTypeNumber:
		doc["type"] = "number"
	case PropertyTypeBoolean:
		doc["type"] = "boolean"
	case PropertyTypeEnum:
		doc["type"] = "string"
		enum := make([]any, len(p.EnumValues))
		for i, v := range p.EnumValues {
			enum[i] = v
		}
		doc["enum"] = enum
	case PropertyTypeArray:
		doc["type"] = "array"
		if p.ArrayItem != nil {
			doc["items"] = propertyToJSONSchema(*p.ArrayItem)
		}
	case PropertyTypeObject:
		nested := propertiesToJSONSchema(p.Properties, "")
		for k, v := range nested {
			doc[k] = v
		}
	}
	return doc
}

// Compile compiles s's JSON Schema representation into a validator usable to
// check a candidate JSON document (e.g. a model's structured-output
// response) before decoding it into a typed Go value.
func (s *Schema) Compile() (*jsonschema.Schema, error) {
	doc := s.ToJSONSchema()
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal %s: %w", s.SchemaID, err)
	}
	unmarshaled, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("schema: unmarshal %s: %w", s.SchemaID, err)
	}
	c := jsonschema.NewCompiler()
	resourceURL := "mem://" + s.SchemaID + ".json"
	if err := c.AddResource(resourceURL, unmarshaled); err != nil {
		return nil, fmt.Errorf("schema: add resource %s: %w", s.SchemaID, err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", s.SchemaID, err)
	}
	return compiled, nil
}

// ValidateJSON validates raw JSON against s's compiled schema, returning a
// descriptive error when validation fails. Used by the Agent Layer to
// classify non-conformant structured output as StructuredParseError rather
// than silently accepting malformed JSON.
func (s *Schema) ValidateJSON(raw []byte) error {
	compiled, err := s.Compile()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("schema: invalid JSON: %w", err)
	}
	return compiled.Validate(v)
}
