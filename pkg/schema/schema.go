// Package schema implements the Schema Registry: a reflective description of
// input/output record types (fields, required flags, enums, nesting) used to
// bind property bags from chat requests into typed Go values and back.
//
// Schemas are derived once per Go type via reflection and cached; each record
// type yields a single Schema. Per-field schemas for composable records are
// not produced, and Schema.Composable is never set by the registry.
package schema

import (
	"fmt"
	"reflect"
	"sync"
)

type (
	// PropertyType enumerates the primitive and structural kinds a Property
	// can take.
	PropertyType string

	// Property describes a single field of a Schema.
	Property struct {
		// Name is the human-facing field name (declaration order is preserved
		// at the Schema level).
		Name string
		// NameID is a stable, language-independent identifier for the field,
		// used to correlate properties across historical messages
		// (dataNameId resolution in the chat layer).
		NameID string
		// Type is the field's declared PropertyType.
		Type PropertyType
		// Description is human-readable documentation surfaced to UIs/prompts.
		Description string
		// Required reports whether the field must be present to instantiate
		// the owning record.
		Required bool
		// MultiSelect indicates an enum field accepts more than one value.
		MultiSelect bool
		// EnumValues lists the accepted symbols when Type is PropertyTypeEnum.
		EnumValues []string
		// Properties lists nested fields when Type is PropertyTypeObject.
		Properties []Property
		// ArrayItem describes the element schema when Type is
		// PropertyTypeArray.
		ArrayItem *Property
	}

	// Schema is a language-independent description of a record type.
	Schema struct {
		// SchemaID is a stable name unique across the registry.
		SchemaID string
		// Description documents the record's purpose.
		Description string
		// Composable indicates each Property should be drivable as an
		// independent workflow step.
		Composable bool
		// System marks a schema as system-generated rather than user-facing.
		System bool
		// Properties lists the record's fields in declaration order.
		Properties []Property
	}
)

const (
	PropertyTypeString  PropertyType = "string"
	PropertyTypeInteger PropertyType = "integer"
	PropertyTypeNumber  PropertyType = "number"
	PropertyTypeBoolean PropertyType = "boolean"
	PropertyTypeEnum    PropertyType = "enum"
	PropertyTypeArray   PropertyType = "array"
	PropertyTypeObject  PropertyType = "object"
)

// Registry converts declared record types into Schemas and back, caching the
// reflective work by Go type. A Registry is safe for concurrent use; its
// maps are guarded by a read-write mutex, so a registration briefly blocks
// readers.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Schema
	byID    map[string]reflect.Type
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*Schema),
		byID:   make(map[string]reflect.Type),
	}
}

// GetSchema returns the Schema describing typeRef, building and caching it on
// first use. The schemaID defaults to the type's short name unless overridden
// by a `schema:"id=..."` tag on a `_` marker field; field order mirrors
// Go struct declaration order.
func (r *Registry) GetSchema(typeRef any) (*Schema, error) {
	t := reflect.TypeOf(typeRef)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %s is not a struct type", t)
	}

	r.mu.RLock()
	if s, ok := r.byType[t]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	s, err := buildSchema(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under write lock: concurrent callers may have raced to build
	// the same schema. Keep the earliest winner so SchemaID stays unique.
	if existing, ok := r.byType[t]; ok {
		return existing, nil
	}
	if other, dup := r.byID[s.SchemaID]; dup && other != t {
		return nil, fmt.Errorf("schema: schemaId %q already registered for a different type", s.SchemaID)
	}
	r.byType[t] = s
	r.byID[s.SchemaID] = t
	return s, nil
}

// SchemaByID reverse-looks-up the Go type registered for schemaID. It returns
// an error if no type has been registered under that ID yet (schemas are
// registered lazily via GetSchema).
func (r *Registry) SchemaByID(schemaID string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[schemaID]
	if !ok {
		return nil, fmt.Errorf("schema: unknown schemaId %q", schemaID)
	}
	return t, nil
}

// SchemaStructByID reverse-looks-up the Schema registered for schemaID,
// combining SchemaByID's lookup with the cached Schema itself so callers
// (e.g. the Public API Surface's getWorkflowSchemas) don't need to hold a
// reflect.Type just to re-fetch its Schema.
func (r *Registry) SchemaStructByID(schemaID string) (*Schema, error) {
	t, err := r.SchemaByID(schemaID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t], nil
}

// buildSchema reflects over t's exported fields, honoring `schema:"..."`
// struct tags for nameId, description, enum values, and required/optional
// overrides. Field order follows Go declaration order, matching the spec's
// "field order is declaration order" invariant.
func buildSchema(t reflect.Type) (*Schema, error) {
	s := &Schema{SchemaID: t.Name()}
	if s.SchemaID == "" {
		return nil, fmt.Errorf("schema: anonymous struct types must be named")
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := parseTag(f.Tag.Get("schema"))
		if f.Name == "_" {
			if tag.schemaID != "" {
				s.SchemaID = tag.schemaID
			}
			if tag.description != "" {
				s.Description = tag.description
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if tag.skip {
			continue
		}
		if tag.schemaID != "" {
			s.SchemaID = tag.schemaID
			continue
		}
		prop, err := propertyFromField(f, tag)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s.%s: %w", t.Name(), f.Name, err)
		}
		s.Properties = append(s.Properties, prop)
	}
	return s, nil
}

func propertyFromField(f reflect.StructField, tag fieldTag) (Property, error) {
	name := f.Name
	if tag.name != "" {
		name = tag.name
	}
	nameID := tag.nameID
	if nameID == "" {
		nameID = toSnakeCase(name)
	}

	ft := f.Type
	optional := ft.Kind() == reflect.Ptr
	for ft.Kind() == reflect.Ptr {
		ft = ft.Elem()
	}

	p := Property{
		Name:        name,
		NameID:      nameID,
		Description: tag.description,
		Required:    !optional && !tag.optional,
		MultiSelect: tag.multiSelect,
		EnumValues:  tag.enumValues,
	}

	switch {
	case len(tag.enumValues) > 0:
		p.Type = PropertyTypeEnum
	case ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array:
		p.Type = PropertyTypeArray
		elemType := ft.Elem()
		itemTag := fieldTag{}
		if elemType.Kind() == reflect.Struct {
			nested, err := structProperties(elemType)
			if err != nil {
				return Property{}, err
			}
			p.ArrayItem = &Property{Type: PropertyTypeObject, Properties: nested}
		} else {
			itemProp, err := propertyFromKind(elemType.Kind(), itemTag)
			if err != nil {
				return Property{}, err
			}
			p.ArrayItem = &itemProp
		}
	case ft.Kind() == reflect.Struct:
		p.Type = PropertyTypeObject
		nested, err := structProperties(ft)
		if err != nil {
			return Property{}, err
		}
		p.Properties = nested
	default:
		kindProp, err := propertyFromKind(ft.Kind(), tag)
		if err != nil {
			return Property{}, err
		}
		p.Type = kindProp.Type
	}
	return p, nil
}

func structProperties(t reflect.Type) ([]Property, error) {
	var props []Property
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := parseTag(f.Tag.Get("schema"))
		if tag.skip {
			continue
		}
		p, err := propertyFromField(f, tag)
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

func propertyFromKind(k reflect.Kind, tag fieldTag) (Property, error) {
	switch k {
	case reflect.String:
		return Property{Type: PropertyTypeString}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Property{Type: PropertyTypeInteger}, nil
	case reflect.Float32, reflect.Float64:
		return Property{Type: PropertyTypeNumber}, nil
	case reflect.Bool:
		return Property{Type: PropertyTypeBoolean}, nil
	default:
		return Property{}, fmt.Errorf("unsupported field kind %s", k)
	}
}
