package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type rawSchema struct {
	Type                 json.RawMessage   `json:"type"`
	Description          string            `json:"description"`
	Pattern              string            `json:"pattern"`
	Format               string            `json:"format"`
	MinLength            *int              `json:"minLength"`
	MaxLength            *int              `json:"maxLength"`
	Enum                 []any             `json:"enum"`
	Minimum              *float64          `json:"minimum"`
	Maximum              *float64          `json:"maximum"`
	MultipleOf           *float64          `json:"multipleOf"`
	Items                json.RawMessage   `json:"items"`
	MinItems             *int              `json:"minItems"`
	MaxItems             *int              `json:"maxItems"`
	Properties           json.RawMessage   `json:"properties"`
	Required             []string          `json:"required"`
	AdditionalProperties json.RawMessage   `json:"additionalProperties"`
	AnyOf                []json.RawMessage `json:"anyOf"`
}

// Parse reads a JSON Schema document into a canonical tree. Property order
// is taken from the document. An absent additionalProperties keeps the JSON
// Schema default of true.
func Parse(data []byte) (Node, error) {
	n, err := parseNode(data, RootPath)
	if err != nil {
		return nil, err
	}
	if err := Validate(n); err != nil {
		return nil, err
	}
	return n, nil
}

func parseNode(data []byte, path string) (Node, error) {
	var raw rawSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode schema at %s: %v", ErrInvalidSchema, path, err)
	}

	typeTag, err := parseTypeTag(raw.Type, path)
	if err != nil {
		return nil, err
	}

	if len(raw.Enum) > 0 && enumRejected(typeTag) {
		return nil, &ValidationError{Path: path, Reason: "enum is only supported on string schemas"}
	}

	switch typeTag {
	case "":
		if len(raw.AnyOf) == 0 {
			return nil, &UnsupportedTypeError{Type: "<missing>", Path: path}
		}
		return parseUnion(raw, path)
	case "string":
		enum, err := stringEnum(raw.Enum, path)
		if err != nil {
			return nil, err
		}
		return &String{
			Description: raw.Description,
			Pattern:     raw.Pattern,
			Format:      raw.Format,
			MinLength:   raw.MinLength,
			MaxLength:   raw.MaxLength,
			Enum:        enum,
		}, nil
	case "number", "integer":
		return &Number{
			Integer:     typeTag == "integer",
			Description: raw.Description,
			Minimum:     raw.Minimum,
			Maximum:     raw.Maximum,
			MultipleOf:  raw.MultipleOf,
		}, nil
	case "boolean":
		return &Boolean{Description: raw.Description}, nil
	case "array":
		if len(raw.Items) == 0 {
			return nil, &ValidationError{Path: path, Reason: "array items must be set"}
		}
		items, err := parseNode(raw.Items, ItemsPath(path))
		if err != nil {
			return nil, err
		}
		return &Array{
			Description: raw.Description,
			Items:       items,
			MinItems:    raw.MinItems,
			MaxItems:    raw.MaxItems,
		}, nil
	case "object":
		return parseObject(raw, path)
	default:
		return nil, &UnsupportedTypeError{Type: typeTag, Path: path}
	}
}

// enumRejected reports whether an enum on the tag would be silently lost.
// Unknown tags fall through to UnsupportedTypeError instead.
func enumRejected(typeTag string) bool {
	switch typeTag {
	case "", "number", "integer", "boolean", "array", "object":
		return true
	}
	return false
}

func parseTypeTag(raw json.RawMessage, path string) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return "", &UnsupportedTypeError{Type: strings.TrimSpace(string(raw)), Path: path}
	}
	return tag, nil
}

func parseUnion(raw rawSchema, path string) (Node, error) {
	u := &Union{Description: raw.Description, AnyOf: make([]Node, 0, len(raw.AnyOf))}
	for i, alt := range raw.AnyOf {
		n, err := parseNode(alt, AlternativePath(path, i))
		if err != nil {
			return nil, err
		}
		u.AnyOf = append(u.AnyOf, n)
	}
	return u, nil
}

func parseObject(raw rawSchema, path string) (Node, error) {
	additional := true
	if len(raw.AdditionalProperties) > 0 {
		if err := json.Unmarshal(raw.AdditionalProperties, &additional); err != nil {
			return nil, &ValidationError{Path: path, Reason: "additionalProperties must be a boolean"}
		}
	}

	members, err := orderedMembers(raw.Properties)
	if err != nil {
		return nil, fmt.Errorf("%w: decode properties at %s: %v", ErrInvalidSchema, path, err)
	}

	obj := &Object{
		Description:          raw.Description,
		Properties:           make([]Property, 0, len(members)),
		Required:             raw.Required,
		AdditionalProperties: additional,
	}
	for _, m := range members {
		n, err := parseNode(m.value, PropertyPath(path, m.key))
		if err != nil {
			return nil, err
		}
		obj.Properties = append(obj.Properties, Property{Name: m.key, Schema: n})
	}
	return obj, nil
}

type member struct {
	key   string
	value json.RawMessage
}

// orderedMembers splits a JSON object into its members in document order.
func orderedMembers(raw json.RawMessage) ([]member, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var members []member
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected property name, got %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		members = append(members, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}

func stringEnum(values []any, path string) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("enum value %v is not a string", v)}
		}
		out = append(out, s)
	}
	return out, nil
}
