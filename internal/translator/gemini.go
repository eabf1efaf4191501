package translator

import (
	"slices"

	"google.golang.org/genai"

	"structured-router/internal/schema"
)

// geminiStringFormats lists the string formats the controlled generation
// dialect honours besides "enum".
var geminiStringFormats = map[string]struct{}{
	"date-time": {},
}

// ToGemini converts a canonical tree into a genai response schema.
//
// Property order is carried in PropertyOrdering. Required defaults to an
// empty list. Keywords the dialect has no field for (multipleOf,
// additionalProperties, unsupported string formats) are dropped.
func ToGemini(n schema.Node) (*genai.Schema, error) {
	return toGemini(n, schema.RootPath)
}

func toGemini(n schema.Node, path string) (*genai.Schema, error) {
	switch t := n.(type) {
	case *schema.Object:
		if t == nil {
			break
		}
		out := &genai.Schema{
			Type:             genai.TypeObject,
			Description:      t.Description,
			Properties:       make(map[string]*genai.Schema, len(t.Properties)),
			Required:         make([]string, 0, len(t.Required)),
			PropertyOrdering: t.PropertyNames(),
		}
		out.Required = append(out.Required, t.Required...)
		for _, p := range t.Properties {
			converted, err := toGemini(p.Schema, schema.PropertyPath(path, p.Name))
			if err != nil {
				return nil, err
			}
			out.Properties[p.Name] = converted
		}
		return out, nil
	case *schema.Array:
		if t == nil {
			break
		}
		items, err := toGemini(t.Items, schema.ItemsPath(path))
		if err != nil {
			return nil, err
		}
		return &genai.Schema{
			Type:        genai.TypeArray,
			Description: t.Description,
			Items:       items,
			MinItems:    int64Ptr(t.MinItems),
			MaxItems:    int64Ptr(t.MaxItems),
		}, nil
	case *schema.String:
		if t == nil {
			break
		}
		out := &genai.Schema{
			Type:        genai.TypeString,
			Description: t.Description,
			Pattern:     t.Pattern,
			MinLength:   int64Ptr(t.MinLength),
			MaxLength:   int64Ptr(t.MaxLength),
		}
		switch {
		case len(t.Enum) > 0:
			out.Format = "enum"
			out.Enum = slices.Clone(t.Enum)
		case t.Format != "":
			if _, ok := geminiStringFormats[t.Format]; ok {
				out.Format = t.Format
			}
		}
		return out, nil
	case *schema.Number:
		if t == nil {
			break
		}
		kind := genai.TypeNumber
		if t.Integer {
			kind = genai.TypeInteger
		}
		return &genai.Schema{
			Type:        kind,
			Description: t.Description,
			Minimum:     t.Minimum,
			Maximum:     t.Maximum,
		}, nil
	case *schema.Boolean:
		if t == nil {
			break
		}
		return &genai.Schema{Type: genai.TypeBoolean, Description: t.Description}, nil
	case *schema.Union:
		if t == nil {
			break
		}
		out := &genai.Schema{Description: t.Description, AnyOf: make([]*genai.Schema, 0, len(t.AnyOf))}
		for i, alt := range t.AnyOf {
			converted, err := toGemini(alt, schema.AlternativePath(path, i))
			if err != nil {
				return nil, err
			}
			out.AnyOf = append(out.AnyOf, converted)
		}
		return out, nil
	}
	return nil, &schema.UnsupportedTypeError{Type: schema.TypeTag(n), Path: path}
}

func int64Ptr(v *int) *int64 {
	if v == nil {
		return nil
	}
	out := int64(*v)
	return &out
}
