package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"structured-router/internal/schema"
)

// openAIStringFormats lists the string formats accepted by the strict
// json_schema response format. Other formats are dropped.
var openAIStringFormats = map[string]struct{}{
	"date-time": {},
	"time":      {},
	"date":      {},
	"duration":  {},
	"email":     {},
	"hostname":  {},
	"ipv4":      {},
	"ipv6":      {},
	"uuid":      {},
}

// StrictModeError reports an object the strict dialect cannot accept:
// every property must be required and additional properties must be off.
type StrictModeError struct {
	Path    string
	Reason  string
	Missing []string
}

func (e *StrictModeError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("strict schema violation at %s: %s: %s", e.Path, e.Reason, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("strict schema violation at %s: %s", e.Path, e.Reason)
}

// JSONSchema is a JSON Schema node in the strict structured-output dialect.
// It marshals object properties in declaration order.
type JSONSchema struct {
	Type                 string
	Description          string
	Properties           []NamedSchema
	Required             []string
	AdditionalProperties *bool
	Items                *JSONSchema
	AnyOf                []*JSONSchema
	Enum                 []string
	Pattern              string
	Format               string
	MinLength            *int
	MaxLength            *int
	Minimum              *float64
	Maximum              *float64
	MultipleOf           *float64
	MinItems             *int
	MaxItems             *int
}

// NamedSchema is one entry of JSONSchema.Properties.
type NamedSchema struct {
	Name   string
	Schema *JSONSchema
}

// Property returns the named property schema.
func (s *JSONSchema) Property(name string) (*JSONSchema, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// ToOpenAI converts a canonical tree into the strict dialect. Objects whose
// required list does not cover every property, or that allow additional
// properties, are rejected rather than rewritten.
func ToOpenAI(n schema.Node) (*JSONSchema, error) {
	if _, ok := n.(*schema.Object); !ok {
		if n == nil {
			return nil, &schema.UnsupportedTypeError{Type: schema.TypeTag(n), Path: schema.RootPath}
		}
		return nil, &StrictModeError{Path: schema.RootPath, Reason: fmt.Sprintf("root must be an object, got %s", schema.TypeTag(n))}
	}
	return toOpenAI(n, schema.RootPath)
}

func toOpenAI(n schema.Node, path string) (*JSONSchema, error) {
	switch t := n.(type) {
	case *schema.Object:
		if t == nil {
			break
		}
		return openAIObject(t, path)
	case *schema.Array:
		if t == nil {
			break
		}
		items, err := toOpenAI(t.Items, schema.ItemsPath(path))
		if err != nil {
			return nil, err
		}
		return &JSONSchema{
			Type:        "array",
			Description: t.Description,
			Items:       items,
			MinItems:    t.MinItems,
			MaxItems:    t.MaxItems,
		}, nil
	case *schema.String:
		if t == nil {
			break
		}
		out := &JSONSchema{
			Type:        "string",
			Description: t.Description,
			Pattern:     t.Pattern,
			MinLength:   t.MinLength,
			MaxLength:   t.MaxLength,
			Enum:        slices.Clone(t.Enum),
		}
		if _, ok := openAIStringFormats[t.Format]; ok {
			out.Format = t.Format
		}
		return out, nil
	case *schema.Number:
		if t == nil {
			break
		}
		return &JSONSchema{
			Type:        string(t.Kind()),
			Description: t.Description,
			Minimum:     t.Minimum,
			Maximum:     t.Maximum,
			MultipleOf:  t.MultipleOf,
		}, nil
	case *schema.Boolean:
		if t == nil {
			break
		}
		return &JSONSchema{Type: "boolean", Description: t.Description}, nil
	case *schema.Union:
		if t == nil {
			break
		}
		out := &JSONSchema{Description: t.Description, AnyOf: make([]*JSONSchema, 0, len(t.AnyOf))}
		for i, alt := range t.AnyOf {
			converted, err := toOpenAI(alt, schema.AlternativePath(path, i))
			if err != nil {
				return nil, err
			}
			out.AnyOf = append(out.AnyOf, converted)
		}
		return out, nil
	}
	return nil, &schema.UnsupportedTypeError{Type: schema.TypeTag(n), Path: path}
}

func openAIObject(o *schema.Object, path string) (*JSONSchema, error) {
	if o.AdditionalProperties {
		return nil, &StrictModeError{Path: path, Reason: "additionalProperties must be false"}
	}

	var missing []string
	for _, name := range o.PropertyNames() {
		if !o.IsRequired(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &StrictModeError{Path: path, Reason: "properties must all be required", Missing: missing}
	}

	closed := false
	out := &JSONSchema{
		Type:                 "object",
		Description:          o.Description,
		Properties:           make([]NamedSchema, 0, len(o.Properties)),
		Required:             make([]string, 0, len(o.Properties)),
		AdditionalProperties: &closed,
	}
	for _, p := range o.Properties {
		converted, err := toOpenAI(p.Schema, schema.PropertyPath(path, p.Name))
		if err != nil {
			return nil, err
		}
		out.Properties = append(out.Properties, NamedSchema{Name: p.Name, Schema: converted})
		out.Required = append(out.Required, p.Name)
	}
	return out, nil
}

// MarshalJSON writes the schema with a stable key order and properties in
// declaration order.
func (s JSONSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	w := objectWriter{buf: &buf}
	buf.WriteByte('{')

	if s.Type != "" {
		w.field("type", s.Type)
	}
	if s.Description != "" {
		w.field("description", s.Description)
	}
	if s.Type == "object" {
		w.key("properties")
		buf.WriteByte('{')
		for i, p := range s.Properties {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(&buf, p.Name); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := writeJSON(&buf, p.Schema); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
		required := s.Required
		if required == nil {
			required = []string{}
		}
		w.field("required", required)
	}
	if s.AdditionalProperties != nil {
		w.field("additionalProperties", *s.AdditionalProperties)
	}
	if s.Items != nil {
		w.field("items", s.Items)
	}
	if len(s.AnyOf) > 0 {
		w.field("anyOf", s.AnyOf)
	}
	if s.Enum != nil {
		w.field("enum", s.Enum)
	}
	if s.Pattern != "" {
		w.field("pattern", s.Pattern)
	}
	if s.Format != "" {
		w.field("format", s.Format)
	}
	if s.MinLength != nil {
		w.field("minLength", *s.MinLength)
	}
	if s.MaxLength != nil {
		w.field("maxLength", *s.MaxLength)
	}
	if s.Minimum != nil {
		w.field("minimum", *s.Minimum)
	}
	if s.Maximum != nil {
		w.field("maximum", *s.Maximum)
	}
	if s.MultipleOf != nil {
		w.field("multipleOf", *s.MultipleOf)
	}
	if s.MinItems != nil {
		w.field("minItems", *s.MinItems)
	}
	if s.MaxItems != nil {
		w.field("maxItems", *s.MaxItems)
	}

	if w.err != nil {
		return nil, w.err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type objectWriter struct {
	buf    *bytes.Buffer
	fields int
	err    error
}

func (w *objectWriter) key(name string) {
	if w.fields > 0 {
		w.buf.WriteByte(',')
	}
	w.fields++
	if err := writeJSON(w.buf, name); err != nil && w.err == nil {
		w.err = err
	}
	w.buf.WriteByte(':')
}

func (w *objectWriter) field(name string, value any) {
	w.key(name)
	if err := writeJSON(w.buf, value); err != nil && w.err == nil {
		w.err = err
	}
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
