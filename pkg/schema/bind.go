package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// BindError reports a failure to instantiate or extract a record from a
// property bag, naming the offending field.
type BindError struct {
	// SchemaID identifies the schema being bound.
	SchemaID string
	// Field is the property name that failed to bind.
	Field string
	// Reason is a human-readable explanation.
	Reason string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("schema: bind %s.%s: %s", e.SchemaID, e.Field, e.Reason)
}

// Instantiate parses values (a property-name -> string-value bag) into a new
// value of typeRef's type using the Schema previously registered for it.
// Enums are parsed by symbol name, numerics by standard parsing, booleans by
// literal ("true"/"false"), and arrays as JSON arrays or comma-separated
// lists. Instantiate fails with *BindError naming the offending field when a
// required value is missing or a type is unparseable.
func (r *Registry) Instantiate(typeRef any, values map[string]string) (any, error) {
	s, err := r.GetSchema(typeRef)
	if err != nil {
		return nil, err
	}

	t := reflect.TypeOf(typeRef)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	out := reflect.New(t).Elem()

	for _, prop := range s.Properties {
		raw, present := values[prop.Name]
		if !present {
			if prop.Required {
				return nil, &BindError{SchemaID: s.SchemaID, Field: prop.Name, Reason: "required field missing"}
			}
			continue
		}
		fv := out.FieldByName(prop.Name)
		if !fv.IsValid() {
			continue
		}
		if err := setField(fv, prop, raw); err != nil {
			return nil, &BindError{SchemaID: s.SchemaID, Field: prop.Name, Reason: err.Error()}
		}
	}
	return out.Addr().Interface(), nil
}

func setField(fv reflect.Value, prop Property, raw string) error {
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	switch prop.Type {
	case PropertyTypeString, PropertyTypeEnum:
		if prop.Type == PropertyTypeEnum && len(prop.EnumValues) > 0 && !contains(prop.EnumValues, raw) {
			return fmt.Errorf("value %q is not one of %v", raw, prop.EnumValues)
		}
		fv.SetString(raw)
		return nil
	case PropertyTypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("not an integer: %w", err)
		}
		fv.SetInt(n)
		return nil
	case PropertyTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("not a number: %w", err)
		}
		fv.SetFloat(n)
		return nil
	case PropertyTypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("not a boolean: %w", err)
		}
		fv.SetBool(b)
		return nil
	case PropertyTypeArray:
		items, err := parseArray(raw)
		if err != nil {
			return err
		}
		slice := reflect.MakeSlice(fv.Type(), len(items), len(items))
		for i, item := range items {
			elemProp := Property{Type: PropertyTypeString}
			if prop.ArrayItem != nil {
				elemProp = *prop.ArrayItem
			}
			if err := setField(slice.Index(i), elemProp, item); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		fv.Set(slice)
		return nil
	case PropertyTypeObject:
		return json.Unmarshal([]byte(raw), fv.Addr().Interface())
	default:
		return fmt.Errorf("unsupported property type %q", prop.Type)
	}
}

// parseArray accepts either a JSON array literal ("[\"a\",\"b\"]") or a
// comma-separated list ("a,b") per the spec's stated array-binding edge case.
func parseArray(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var items []string
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		return items, nil
	}
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ExtractProperties is the inverse of Instantiate: it renders record's
// exported fields back into a property-name -> string-value bag. Null-valued
// (nil pointer, empty optional) fields are omitted, matching the spec's
// round-trip invariant extractProperties(instantiate(x)) == x for supported
// types.
func (r *Registry) ExtractProperties(record any) (map[string]string, error) {
	s, err := r.GetSchema(record)
	if err != nil {
		return nil, err
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return map[string]string{}, nil
		}
		v = v.Elem()
	}

	out := make(map[string]string, len(s.Properties))
	for _, prop := range s.Properties {
		fv := v.FieldByName(prop.Name)
		if !fv.IsValid() {
			continue
		}
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		rendered, omit, err := renderField(fv, prop)
		if err != nil {
			return nil, &BindError{SchemaID: s.SchemaID, Field: prop.Name, Reason: err.Error()}
		}
		if omit {
			continue
		}
		out[prop.Name] = rendered
	}
	return out, nil
}

func renderField(fv reflect.Value, prop Property) (string, bool, error) {
	switch prop.Type {
	case PropertyTypeString, PropertyTypeEnum:
		s := fv.String()
		return s, s == "" && !prop.Required, nil
	case PropertyTypeInteger:
		return strconv.FormatInt(fv.Int(), 10), false, nil
	case PropertyTypeNumber:
		return strconv.FormatFloat(fv.Float(), 'g', -1, 64), false, nil
	case PropertyTypeBoolean:
		return strconv.FormatBool(fv.Bool()), false, nil
	case PropertyTypeArray:
		if fv.Len() == 0 {
			return "", !prop.Required, nil
		}
		items := make([]string, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			elemProp := Property{Type: PropertyTypeString}
			if prop.ArrayItem != nil {
				elemProp = *prop.ArrayItem
			}
			rendered, _, err := renderField(fv.Index(i), elemProp)
			if err != nil {
				return "", false, err
			}
			items[i] = rendered
		}
		b, err := json.Marshal(items)
		if err != nil {
			return "", false, err
		}
		return string(b), false, nil
	case PropertyTypeObject:
		b, err := json.Marshal(fv.Interface())
		if err != nil {
			return "", false, err
		}
		return string(b), false, nil
	default:
		return "", false, fmt.Errorf("unsupported property type %q", prop.Type)
	}
}
